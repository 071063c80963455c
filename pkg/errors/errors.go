// Package errors provides structured error handling for tickstore
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeData represents data processing errors
	ErrorTypeData ErrorType = "data"
	// ErrorTypeNoFieldsDetected is returned when no canonical field can be
	// matched against a source header set
	ErrorTypeNoFieldsDetected ErrorType = "no_fields_detected"
	// ErrorTypePartialFieldLoss marks rows whose canonical fields degraded
	// to null during standardization; non-fatal, surfaced in reports
	ErrorTypePartialFieldLoss ErrorType = "partial_field_loss"
	// ErrorTypeUnsupportedEncoding is returned for unknown encoding identifiers
	ErrorTypeUnsupportedEncoding ErrorType = "unsupported_encoding"
	// ErrorTypePoolExhausted is returned when connection acquisition times out
	ErrorTypePoolExhausted ErrorType = "pool_exhausted"
	// ErrorTypeInvalidFilter is returned when a filter references a column
	// outside the canonical or passthrough column set
	ErrorTypeInvalidFilter ErrorType = "invalid_filter"
	// ErrorTypeTableNotFound is returned when a stored table does not exist
	ErrorTypeTableNotFound ErrorType = "table_not_found"
	// ErrorTypeIO represents underlying read/write failures, wrapped with
	// the source path
	ErrorTypeIO ErrorType = "io"
	// ErrorTypeCanceled is returned when an operation observes cancellation
	ErrorTypeCanceled ErrorType = "canceled"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// WrapIO wraps a read/write failure with its source path
func WrapIO(err error, path string) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, ErrorTypeIO, "io failure").WithDetail("path", path)
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the error type, or ErrorTypeInternal for foreign errors
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
