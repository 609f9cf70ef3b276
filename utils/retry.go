package utils

import (
	"errors"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
)

// RetryWithLimit keeps calling attempt until it succeeds, the limit is
// reached, or the exempt error shows up.
func RetryWithLimit(limit int, interval time.Duration, attempt func() error, exempt error) error {
	var err error
	for i := 0; i < limit; i++ {
		err = attempt()
		if err == nil {
			return nil
		}
		if exempt != nil && errors.Is(err, exempt) {
			return err
		}
		pc, file, line, ok := runtime.Caller(1)
		if ok {
			log.Errorf("%s Called from %s, line #%d, func: %v", err,
				file, line, runtime.FuncForPC(pc).Name())
		}
		time.Sleep(interval)
	}
	return err
}
