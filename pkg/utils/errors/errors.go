package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of an error
type ErrorType uint

const (
	// ErrorTypeUnknown represents an unknown error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeInvalidParameter represents an out-of-range or malformed parameter
	ErrorTypeInvalidParameter
	// ErrorTypeDimensionMismatch represents inputs whose shapes do not line up
	ErrorTypeDimensionMismatch
	// ErrorTypeEmptyInput represents a return series or table with no data
	ErrorTypeEmptyInput
	// ErrorTypeNotFound represents a not found error
	ErrorTypeNotFound
	// ErrorTypeUnavailable represents a sink or source that cannot be reached
	ErrorTypeUnavailable
	// ErrorTypeInternal represents an internal error
	ErrorTypeInternal
)

// String returns the name of the error type
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeInvalidParameter:
		return "InvalidParameter"
	case ErrorTypeDimensionMismatch:
		return "DimensionMismatch"
	case ErrorTypeEmptyInput:
		return "EmptyInputError"
	case ErrorTypeNotFound:
		return "NotFound"
	case ErrorTypeUnavailable:
		return "Unavailable"
	case ErrorTypeInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	// Param names the offending parameter for InvalidParameter errors
	Param string
	Err   error
}

// Error returns the error message
func (e *AppError) Error() string {
	msg := e.Message
	if e.Param != "" {
		msg = fmt.Sprintf("%s: %s", e.Param, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another AppError of the same type, so sentinel values like
// ErrEmptyInput can be used with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Type == e.Type && t.Message == "" && t.Param == ""
}

// New creates a new error with the given message
func New(message string) error {
	return &AppError{
		Type:    ErrorTypeUnknown,
		Message: message,
	}
}

// Newf creates a new error with the given format and arguments
func Newf(format string, args ...interface{}) error {
	return &AppError{
		Type:    ErrorTypeUnknown,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with a message, keeping the type of the wrapped error
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Type:    TypeOf(err),
		Message: message,
		Err:     err,
	}
}

// Wrapf wraps an error with a formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithType returns a copy of err carrying the given type
func WithType(err error, errType ErrorType) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Type:    errType,
		Message: err.Error(),
		Err:     errors.Unwrap(err),
	}
}

// TypeOf returns the type of the first AppError in err's chain
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err or any error in its chain is an AppError of the given type
func IsType(err error, errType ErrorType) bool {
	return err != nil && TypeOf(err) == errType
}

// Is reports whether err or any of the errors in its chain is target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// InvalidParameter creates a new InvalidParameter error naming the offending parameter
func InvalidParameter(param, message string) error {
	return &AppError{
		Type:    ErrorTypeInvalidParameter,
		Message: message,
		Param:   param,
	}
}

// InvalidParameterf creates a new InvalidParameter error with a formatted message
func InvalidParameterf(param, format string, args ...interface{}) error {
	return InvalidParameter(param, fmt.Sprintf(format, args...))
}

// DimensionMismatch creates a new DimensionMismatch error
func DimensionMismatch(format string, args ...interface{}) error {
	return &AppError{
		Type:    ErrorTypeDimensionMismatch,
		Message: fmt.Sprintf(format, args...),
	}
}

// EmptyInput creates a new EmptyInputError
func EmptyInput(message string) error {
	return &AppError{
		Type:    ErrorTypeEmptyInput,
		Message: message,
	}
}

// NotFound creates a new NotFound error
func NotFound(message string) error {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// Unavailable creates a new Unavailable error wrapping the cause
func Unavailable(message string, err error) error {
	return &AppError{
		Type:    ErrorTypeUnavailable,
		Message: message,
		Err:     err,
	}
}

// Internal creates a new Internal error
func Internal(message string) error {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
	}
}

// Sentinels for use with errors.Is
var (
	ErrInvalidParameter  = &AppError{Type: ErrorTypeInvalidParameter}
	ErrDimensionMismatch = &AppError{Type: ErrorTypeDimensionMismatch}
	ErrEmptyInput        = &AppError{Type: ErrorTypeEmptyInput}
	ErrNotFound          = &AppError{Type: ErrorTypeNotFound}
)
