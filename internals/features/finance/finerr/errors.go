// file: internals/features/finance/finerr/errors.go
package finerr

import (
	"errors"
	"fmt"
	"net/http"
)

/* ===============================
   Error kinds
=================================*/

var (
	ErrValidation           = errors.New("validation error")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrGateway              = errors.New("gateway error")
	ErrGatewayTimeout       = errors.New("gateway timeout: outcome unconfirmed")
	ErrNotImplemented       = errors.New("not implemented")
	ErrConfigurationMissing = errors.New("configuration missing")
)

// Error carries a kind, a message that is safe to show to callers and an
// optional cause that is only logged.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func New(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind error, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func Validation(format string, args ...any) *Error { return New(ErrValidation, format, args...) }
func NotFound(format string, args ...any) *Error   { return New(ErrNotFound, format, args...) }
func Conflict(format string, args ...any) *Error   { return New(ErrConflict, format, args...) }
func Forbidden(format string, args ...any) *Error  { return New(ErrForbidden, format, args...) }

// Status maps an error to the HTTP status it should surface with.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, ErrConfigurationMissing):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrGatewayTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe for API consumers. Causes and
// unclassified errors never leak.
func PublicMessage(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		switch {
		case errors.Is(fe.Kind, ErrGateway):
			return "payment provider error"
		case errors.Is(fe.Kind, ErrGatewayTimeout):
			return "payment provider did not respond in time; payment status is unconfirmed"
		}
		return fe.Message
	}
	switch Status(err) {
	case http.StatusInternalServerError:
		return "internal server error"
	default:
		return err.Error()
	}
}
