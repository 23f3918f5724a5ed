package luastack

import (
	"context"
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// Error type constants for classification and matching
const (
	// ErrorTypeAll acts as a wildcard that matches any error
	ErrorTypeAll = "all"

	// ErrorTypeStackOverflow means the operand stack or the interpreter call
	// stack could not grow.
	ErrorTypeStackOverflow = "stack_overflow"

	// ErrorTypeStackUnderflow means a pop found no slot to take.
	ErrorTypeStackUnderflow = "stack_underflow"

	// ErrorTypeInvalidIndex means a stack index names no slot.
	ErrorTypeInvalidIndex = "invalid_index"

	// ErrorTypeTypeMismatch means a slot's runtime type does not match the
	// requested host type.
	ErrorTypeTypeMismatch = "type_mismatch"

	// ErrorTypeSyntax is returned by Load for chunks that do not compile.
	ErrorTypeSyntax = "syntax_error"

	// ErrorTypeRuntime is an error raised inside the interpreter during a
	// protected call.
	ErrorTypeRuntime = "runtime_error"

	// ErrorTypeOutOfMemory means the configured memory limit was reached.
	ErrorTypeOutOfMemory = "out_of_memory"

	// ErrorTypeUseAfterRelease means a Reference was used after Release.
	ErrorTypeUseAfterRelease = "use_after_release"

	// ErrorTypeHandleClosed means the owning Runtime was closed.
	ErrorTypeHandleClosed = "handle_closed"

	// ErrorTypeForeignReference means a Reference was used with a Runtime
	// other than the one that created it.
	ErrorTypeForeignReference = "foreign_reference"
)

// Sentinels for use with errors.Is. A sentinel matches any *Error of the
// same type.
var (
	ErrStackOverflow    = &Error{Type: ErrorTypeStackOverflow}
	ErrStackUnderflow   = &Error{Type: ErrorTypeStackUnderflow}
	ErrInvalidIndex     = &Error{Type: ErrorTypeInvalidIndex}
	ErrTypeMismatch     = &Error{Type: ErrorTypeTypeMismatch}
	ErrSyntax           = &Error{Type: ErrorTypeSyntax}
	ErrRuntime          = &Error{Type: ErrorTypeRuntime}
	ErrOutOfMemory      = &Error{Type: ErrorTypeOutOfMemory}
	ErrUseAfterRelease  = &Error{Type: ErrorTypeUseAfterRelease}
	ErrHandleClosed     = &Error{Type: ErrorTypeHandleClosed}
	ErrForeignReference = &Error{Type: ErrorTypeForeignReference}
)

// Location is a position inside a chunk.
type Location struct {
	Chunk  string `json:"chunk"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

func (l Location) String() string {
	switch {
	case l.Line <= 0:
		return fmt.Sprintf("%s:EOF", l.Chunk)
	case l.Column <= 0:
		return fmt.Sprintf("%s:%d", l.Chunk, l.Line)
	default:
		return fmt.Sprintf("%s:%d:%d", l.Chunk, l.Line, l.Column)
	}
}

// Error is the structured error returned by every bridge operation.
// It supports Go's error wrapping patterns with Unwrap() method
type Error struct {
	Type      string    `json:"type"`
	Cause     string    `json:"cause"`
	Traceback string    `json:"traceback,omitempty"`
	Location  *Location `json:"location,omitempty"`
	// Value is the interpreter error value of a failed call, when it is a
	// scalar that can be copied out.
	Value   Value `json:"-"`
	Wrapped error `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause == "" {
		return e.Type
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Cause)
}

// Unwrap implements the error unwrapping interface for Go's errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is the sentinel for this error's type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Cause == "" && t.Type == e.Type
}

// NewError creates a new Error with the specified type and cause.
func NewError(errorType, cause string) *Error {
	return &Error{
		Type:  errorType,
		Cause: cause,
	}
}

func newErrorf(errorType, format string, args ...any) *Error {
	return &Error{
		Type:  errorType,
		Cause: fmt.Sprintf(format, args...),
	}
}

// ClassifyError converts any error into an *Error. Errors raised by the
// interpreter are classified by their API error type.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}
	// If the error is already an Error, return it
	var bridgeError *Error
	if errors.As(err, &bridgeError) {
		return bridgeError
	}
	var apiError *lua.ApiError
	if errors.As(err, &apiError) {
		errorType := ErrorTypeRuntime
		if apiError.Type == lua.ApiErrorSyntax {
			errorType = ErrorTypeSyntax
		}
		return &Error{
			Type:      errorType,
			Cause:     apiErrorMessage(apiError),
			Traceback: apiError.StackTrace,
			Wrapped:   err,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{
			Type:    ErrorTypeRuntime,
			Cause:   err.Error(),
			Wrapped: err,
		}
	}
	// Default to a runtime error
	return &Error{
		Type:    ErrorTypeRuntime,
		Cause:   err.Error(),
		Wrapped: err,
	}
}

// MatchesErrorType checks if an error matches a specified error type pattern
func MatchesErrorType(err error, errorType string) bool {
	if err == nil {
		return false
	}
	if errorType == ErrorTypeAll {
		return true
	}
	return ClassifyError(err).Type == errorType
}

func apiErrorMessage(apiError *lua.ApiError) string {
	if apiError.Object == nil {
		if apiError.Cause != nil {
			return apiError.Cause.Error()
		}
		return "unknown error"
	}
	return apiError.Object.String()
}
