// File: internal/api/errors.go
package api

import "fmt"

type ErrorType string

const (
	ErrTypeNetwork    ErrorType = "NETWORK"
	ErrTypeServer     ErrorType = "SERVER"
	ErrTypeNotFound   ErrorType = "NOT_FOUND"
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypeAuth       ErrorType = "AUTH"
)

// Error is the typed error returned by the REST client. The server surfaces
// failures as an {"error": "..."} body with an HTTP status; both are kept.
type Error struct {
	Type      ErrorType
	Operation string
	Code      int
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("API %s error in %s: %s (caused by: %v)", e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("API %s error in %s: %s", e.Type, e.Operation, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsNotFound reports whether err is a clean miss rather than a failure.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*Error)
	return ok && apiErr.Type == ErrTypeNotFound
}
