package orchestrator

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FoundationFailedError is returned by a full run under FoundationAbort when
// no foundation component could be generated.
type FoundationFailedError struct {
	Failures map[string]error
}

func (e *FoundationFailedError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Failures[name]))
	}
	return "all foundation components failed: " + strings.Join(parts, "; ")
}

// Unwrap returns the per-component errors.
func (e *FoundationFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}

// IsFoundationFailed returns true if err is (or wraps) a FoundationFailedError.
func IsFoundationFailed(err error) bool {
	var fe *FoundationFailedError
	return errors.As(err, &fe)
}
