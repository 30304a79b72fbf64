package llm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure reported by the generative backend.
type ErrorKind string

const (
	// KindTransport covers connection, DNS and read failures.
	KindTransport ErrorKind = "transport"
	// KindRateLimit is an HTTP 429 from the provider.
	KindRateLimit ErrorKind = "rate_limit"
	// KindServer is any 5xx from the provider.
	KindServer ErrorKind = "server"
	// KindAuth is a 401/403 from the provider.
	KindAuth ErrorKind = "auth"
	// KindBadRequest is a 400 or an unusable response envelope.
	KindBadRequest ErrorKind = "bad_request"
	// KindUnavailable means no endpoint could take the request.
	KindUnavailable ErrorKind = "unavailable"
)

// BackendError is a transport, auth or rate-limit failure from the
// generative backend.
type BackendError struct {
	Kind       ErrorKind
	StatusCode int
	err        error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s error: %v", e.Kind, e.err)
}

func (e *BackendError) Unwrap() error {
	return e.err
}

// Transient reports whether a retry has a reasonable chance of succeeding.
func (e *BackendError) Transient() bool {
	switch e.Kind {
	case KindTransport, KindRateLimit, KindServer, KindUnavailable:
		return true
	}
	return false
}

// NewBackendError wraps err as a backend failure of the given kind.
func NewBackendError(kind ErrorKind, statusCode int, err error) error {
	return &BackendError{Kind: kind, StatusCode: statusCode, err: err}
}

// MalformedResponseError is returned when the model output does not parse
// as JSON after fence stripping. Raw holds the offending text.
type MalformedResponseError struct {
	Raw string
	err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: %v", e.err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.err
}

// NewMalformedResponseError wraps a parse failure together with the raw text.
func NewMalformedResponseError(raw string, err error) error {
	return &MalformedResponseError{Raw: raw, err: err}
}

// IsBackend returns true if err is (or wraps) a BackendError.
func IsBackend(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// IsTransient returns true if the error is a backend failure worth retrying.
func IsTransient(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Transient()
}

// IsFatal returns true if the error is a backend failure that will not go
// away on retry (auth, bad request).
func IsFatal(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && !be.Transient()
}

// IsMalformed returns true if err is (or wraps) a MalformedResponseError.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

// RawText extracts the offending model output from a malformed-response
// error chain. Returns "" if err carries none.
func RawText(err error) string {
	var me *MalformedResponseError
	if errors.As(err, &me) {
		return me.Raw
	}
	return ""
}
