// Package errors provides the vmdash error taxonomy.
//
// Every failure reaching a component boundary is one of:
// AuthExpired (purge session + redirect), StructuredFailure (backend envelope with
// success=false), TransportFailure (network or decode problem) or UserDeclined
// (confirmation rejected, silent).
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors, matched through AppError.Unwrap.
var (
	ErrAuthExpired       = errors.New("authentication expired")
	ErrStructuredFailure = errors.New("backend reported failure")
	ErrTransportFailure  = errors.New("transport failure")
	ErrUserDeclined      = errors.New("declined by user")
	ErrValidation        = errors.New("validation failed")
)

// AppError is a structured application error with an error code and,
// when it came from the backend, the HTTP status.
type AppError struct {
	// Code is a machine-readable error code (e.g., "AUTH_EXPIRED").
	Code string `json:"code"`

	// Message is the human-readable text; for structured failures it is the
	// backend's own error text.
	Message string `json:"message"`

	// HTTPStatus is the response status, 0 when no response was received.
	HTTPStatus int `json:"-"`

	// Err is the wrapped underlying error.
	Err error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error into an AppError.
func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// AuthExpired reports a 401/422 or an embedded token-error message.
func AuthExpired(httpStatus int, message string) *AppError {
	return Wrap(ErrAuthExpired, CodeAuthExpired, message, httpStatus)
}

// Structured reports an envelope with success=false. message is the backend text.
func Structured(httpStatus int, message string) *AppError {
	return Wrap(ErrStructuredFailure, CodeStructuredFailure, message, httpStatus)
}

// Transport reports a failure to reach the backend or to decode its answer.
func Transport(err error, message string) *AppError {
	return Wrap(fmt.Errorf("%w: %w", ErrTransportFailure, err), CodeTransportFailure, message, 0)
}

// Declined reports a rejected confirmation.
func Declined(message string) *AppError {
	return Wrap(ErrUserDeclined, CodeUserDeclined, message, 0)
}

// Validation reports locally rejected input.
func Validation(code, message string) *AppError {
	return Wrap(ErrValidation, code, message, http.StatusBadRequest)
}

// IsAppError checks if an error is an AppError and returns it.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func IsAuthExpired(err error) bool { return errors.Is(err, ErrAuthExpired) }

func IsStructured(err error) bool { return errors.Is(err, ErrStructuredFailure) }

func IsTransport(err error) bool { return errors.Is(err, ErrTransportFailure) }

func IsDeclined(err error) bool { return errors.Is(err, ErrUserDeclined) }

// Message returns the user-facing text of err: the AppError message when there is
// one, err.Error() otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := IsAppError(err); ok && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}
