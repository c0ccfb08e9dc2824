package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// Code is a stable, machine-readable error identifier.
type Code string

const (
	// CodeNotFound means a media item, job or artifact does not exist.
	CodeNotFound Code = "NOT_FOUND"
	// CodeForbidden is returned by the media resolver when the user may not access an item.
	CodeForbidden Code = "FORBIDDEN"
	// CodeInvalidArgument flags malformed caller input.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	// CodeUnsupportedOperation means the media type cannot support the requested operation.
	CodeUnsupportedOperation Code = "UNSUPPORTED_OPERATION"
	// CodeSourceMissing means the input file vanished between cataloging and invocation.
	CodeSourceMissing Code = "SOURCE_MISSING"
	// CodeEncodingFailed means the external tool exited non-zero or produced no output.
	CodeEncodingFailed Code = "ENCODING_FAILED"
	// CodeTimeout means the external tool exceeded its allotted wall-clock time.
	CodeTimeout Code = "TIMEOUT"
	// CodeQueueFull means the dispatcher has no room to enqueue another job.
	CodeQueueFull Code = "QUEUE_FULL"
	// CodeStorageFailed means a job or catalog write failed.
	CodeStorageFailed Code = "STORAGE_FAILED"
	// CodeCancelled means the job was cancelled before producing output.
	CodeCancelled Code = "CANCELLED"
	// CodeInternal covers everything without a more specific code.
	CodeInternal Code = "INTERNAL"
)

// DefaultDiagnosticLimit caps encoder diagnostics stored on jobs.
const DefaultDiagnosticLimit = 2048

// Error is a coded pipeline error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports a match when target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is matching.
var (
	ErrNotFound             = &Error{Code: CodeNotFound}
	ErrForbidden            = &Error{Code: CodeForbidden}
	ErrInvalidArgument      = &Error{Code: CodeInvalidArgument}
	ErrUnsupportedOperation = &Error{Code: CodeUnsupportedOperation}
	ErrSourceMissing        = &Error{Code: CodeSourceMissing}
	ErrEncodingFailed       = &Error{Code: CodeEncodingFailed}
	ErrTimeout              = &Error{Code: CodeTimeout}
	ErrQueueFull            = &Error{Code: CodeQueueFull}
	ErrStorageFailed        = &Error{Code: CodeStorageFailed}
	ErrCancelled            = &Error{Code: CodeCancelled}
)

// New builds a coded error with a formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the code from err. Context errors map to Timeout and
// Cancelled; anything else without a code is Internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	}
	return CodeInternal
}

// MessageOf returns the human readable part of err, without the code prefix.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message == "" && e.Err != nil {
			return e.Err.Error()
		}
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// HTTPStatus maps a code onto an HTTP response status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeUnsupportedOperation:
		return http.StatusUnprocessableEntity
	case CodeSourceMissing:
		return http.StatusGone
	case CodeQueueFull:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeCancelled:
		return http.StatusConflict
	case CodeEncodingFailed, CodeStorageFailed, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Truncate keeps at most limit bytes of s. The tail is kept because encoders
// print the fatal error last. The cut never splits a UTF-8 sequence, so the
// result may be a few bytes shorter than limit.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	const marker = "..."
	if limit <= len(marker) {
		return tail(s, limit)
	}
	return marker + tail(s, limit-len(marker))
}

// tail returns the last n bytes of s, moved forward to a rune boundary.
func tail(s string, n int) string {
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
