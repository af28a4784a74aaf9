package core

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// ErrorKind classifies domain errors so the transport layer can map them mechanically.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindAccessDenied
	KindInactiveTenant
	KindUnauthenticated
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindAccessDenied:
		return "access_denied"
	case KindInactiveTenant:
		return "inactive_tenant"
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Detail carries optional structured data about a domain error.
type Detail map[string]interface{}

// Error is a domain error raised by aggregates and services.
type Error struct {
	Kind    ErrorKind
	Message string
	Detail  Detail
}

func newError(kind ErrorKind, msg string, detail []Detail) *Error {
	err := &Error{Kind: kind, Message: msg}
	if len(detail) > 0 {
		err.Detail = detail[0]
	}
	return err
}

func NewConflictError(msg string, detail ...Detail) *Error {
	return newError(KindConflict, msg, detail)
}

func NewNotFoundError(msg string, detail ...Detail) *Error {
	return newError(KindNotFound, msg, detail)
}

func NewAccessDeniedError(msg string, detail ...Detail) *Error {
	return newError(KindAccessDenied, msg, detail)
}

func NewInactiveTenantError(msg string, detail ...Detail) *Error {
	return newError(KindInactiveTenant, msg, detail)
}

func NewUnauthenticatedError(msg string) *Error {
	return newError(KindUnauthenticated, msg, nil)
}

func (err *Error) Error() string {
	return err.Message
}

// Is reports whether target is an *Error of the same kind and message,
// so sentinels still match after WithDetail.
func (err *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == err.Kind && t.Message == err.Message
}

// WithDetail returns a copy of err carrying detail.
func (err *Error) WithDetail(detail Detail) *Error {
	return &Error{Kind: err.Kind, Message: err.Message, Detail: detail}
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// KindOf returns the ErrorKind of err's root cause.
func KindOf(err error) ErrorKind {
	switch cause := errors.Cause(err).(type) {
	case nil:
		return KindUnknown
	case *Error:
		return cause.Kind
	case *ValidationError, validator.ValidationErrors:
		return KindValidation
	default:
		return KindUnknown
	}
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
