package utils

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryWithLimitEventuallySucceeds(t *testing.T) {
	attempts := 0
	err := RetryWithLimit(3, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	}, nil)
	assert.Nil(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithLimitGivesUp(t *testing.T) {
	attempts := 0
	err := RetryWithLimit(3, time.Millisecond, func() error {
		attempts++
		return fmt.Errorf("permanent")
	}, nil)
	assert.NotNil(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithLimitStopsOnExemptError(t *testing.T) {
	exempt := errors.New("do not retry")
	attempts := 0
	err := RetryWithLimit(5, time.Millisecond, func() error {
		attempts++
		return exempt
	}, exempt)
	assert.Equal(t, exempt, err)
	assert.Equal(t, 1, attempts)
}

func TestRandStringRunes(t *testing.T) {
	s := RandStringRunes(8)
	assert.Equal(t, 8, len(s))
	assert.NotEqual(t, s, RandStringRunes(8))
}
