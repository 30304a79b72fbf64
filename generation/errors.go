package generation

import (
	"errors"
	"fmt"
)

// ExhaustedError is returned once every attempt for a request has failed.
// LastErr is the error from the final attempt.
type ExhaustedError struct {
	Component string
	Attempts  int
	LastErr   error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("generation of %s exhausted after %d attempts: %v", e.Component, e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// IsExhausted returns true if err is (or wraps) an ExhaustedError.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}
