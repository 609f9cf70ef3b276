package api

import (
	"errors"
	"fmt"
)

var invalidRequestErr = errors.New("400-")

func makeInvalidRequestError(message string) error {
	return fmt.Errorf("%winvalid request: %s", invalidRequestErr, message)
}

func makeInvalidResourceError(resource string) error {
	return fmt.Errorf("%winvalid %s", invalidRequestErr, resource)
}
