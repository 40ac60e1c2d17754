// Package errors defines the structured error taxonomy for table operations.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies every failure a table operation can surface.
type Code string

const (
	// CodeAlreadyExists is returned when create targets a table that already has content.
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	// CodeNotFound is returned when an operation targets a table that does not exist.
	CodeNotFound Code = "NOT_FOUND"
	// CodeUnknownColumn is returned when a projection, filter or assignment names an undefined column.
	CodeUnknownColumn Code = "UNKNOWN_COLUMN"
	// CodeBadFilter is returned when a filter expression has neither '=' nor '~', or its pattern does not compile.
	CodeBadFilter Code = "BAD_FILTER"
	// CodeBadValue is returned when a value cannot be stored in the row format.
	CodeBadValue Code = "BAD_VALUE"
	// CodeLockTimeout is returned when the table lock is not acquired within the bounded wait.
	CodeLockTimeout Code = "LOCK_TIMEOUT"
	// CodeIO is returned when an underlying read, write or rename fails.
	CodeIO Code = "IO_FAILURE"

	// CodeUnauthorized is returned by the HTTP layer when a request lacks
	// valid credentials. It is never produced by table operations.
	CodeUnauthorized Code = "UNAUTHORIZED"
	// CodeForbidden is returned by the HTTP layer when the authenticated
	// user lacks the required role. It is never produced by table operations.
	CodeForbidden Code = "FORBIDDEN"
	// CodeRateLimited is returned by the HTTP layer when a client exceeds
	// its request budget. It is never produced by table operations.
	CodeRateLimited Code = "RATE_LIMITED"
)

// Error is a classified failure with an optional wrapped cause.
type Error struct {
	code       Code
	message    string
	wrappedErr error
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches an underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// Code returns the classification of this error.
func (e *Error) Code() Code {
	return e.code
}

// Unwrap returns the wrapped cause if any.
func (e *Error) Unwrap() error {
	return e.wrappedErr
}

// Constructors, one per code.

// AlreadyExists reports that a table already has content.
func AlreadyExists(table string) *Error {
	return New(CodeAlreadyExists, fmt.Sprintf("table %q already exists", table))
}

// NotFound reports that a table does not exist.
func NotFound(table string) *Error {
	return New(CodeNotFound, fmt.Sprintf("table %q not found", table))
}

// UnknownColumn reports a reference to a column absent from the header.
func UnknownColumn(column string) *Error {
	return New(CodeUnknownColumn, fmt.Sprintf("unknown column %q", column))
}

// BadFilter reports an unparsable filter expression.
func BadFilter(expr, reason string) *Error {
	return New(CodeBadFilter, fmt.Sprintf("bad filter %q: %s", expr, reason))
}

// BadValue reports a value that cannot be stored in the row format.
func BadValue(message string) *Error {
	return New(CodeBadValue, message)
}

// LockTimeout reports that the table lock was not acquired in time.
func LockTimeout(path string) *Error {
	return New(CodeLockTimeout, fmt.Sprintf("timed out waiting for lock on %s", path))
}

// IO wraps an underlying filesystem failure.
func IO(op string, err error) *Error {
	return New(CodeIO, "failed to "+op).Wrap(err)
}

// Unauthorized reports missing or invalid credentials.
func Unauthorized(message string) *Error {
	return New(CodeUnauthorized, message)
}

// Forbidden reports insufficient privileges.
func Forbidden(message string) *Error {
	return New(CodeForbidden, message)
}

// RateLimited reports an exhausted request budget.
func RateLimited() *Error {
	return New(CodeRateLimited, "rate limit exceeded, retry later")
}

// CodeOf extracts the Code from err, or "" if err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return ""
}

// exitStatuses assigns each code a distinct non-zero process exit status.
// Status 1 is reserved for unclassified failures.
var exitStatuses = map[Code]int{
	CodeAlreadyExists: 2,
	CodeNotFound:      3,
	CodeUnknownColumn: 4,
	CodeBadFilter:     5,
	CodeBadValue:      6,
	CodeLockTimeout:   7,
	CodeIO:            8,
}

// ExitStatus maps err to its process exit status. nil maps to 0,
// unclassified errors to 1.
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	if s, ok := exitStatuses[CodeOf(err)]; ok {
		return s
	}
	return 1
}

// httpStatuses maps codes to HTTP response statuses. The response body
// carries the code itself, so statuses need not be unique.
var httpStatuses = map[Code]int{
	CodeAlreadyExists: http.StatusConflict,
	CodeNotFound:      http.StatusNotFound,
	CodeUnknownColumn: http.StatusBadRequest,
	CodeBadFilter:     http.StatusBadRequest,
	CodeBadValue:      http.StatusBadRequest,
	CodeLockTimeout:   http.StatusServiceUnavailable,
	CodeIO:            http.StatusInternalServerError,
	CodeUnauthorized:  http.StatusUnauthorized,
	CodeForbidden:     http.StatusForbidden,
	CodeRateLimited:   http.StatusTooManyRequests,
}

// HTTPStatus maps err to an HTTP status code. Unclassified errors map to 500.
func HTTPStatus(err error) int {
	if s, ok := httpStatuses[CodeOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}
