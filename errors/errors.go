package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies a failure by the phase of a validation run it belongs to.
type Code string

const (
	// CodeUsage indicates malformed command-line arguments.
	CodeUsage Code = "usage"
	// CodeCacheLoad indicates the grammar cache could not be read or decoded.
	CodeCacheLoad Code = "cache-load"
	// CodeCacheSave indicates the grammar cache could not be encoded or written.
	CodeCacheSave Code = "cache-save"
	// CodeTransport indicates the document could not be read or parsed at all.
	CodeTransport Code = "transport"
	// CodeConfig indicates an invalid configuration file or override.
	CodeConfig Code = "config"
	// CodeHistory indicates the run history store failed.
	CodeHistory Code = "history"
)

// Error is a classified failure with the operation and path it concerns.
//
//nolint:errname // public API name mirrors the package.
type Error struct {
	Err  error
	Code Code
	Op   string
	Path string
}

// Error formats the failure as "[code] op path: cause".
func (e *Error) Error() string {
	if e == nil {
		return "error <nil>"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s]", e.Code))
	if e.Op != "" {
		b.WriteString(" " + e.Op)
	}
	if e.Path != "" {
		b.WriteString(" " + e.Path)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New builds a classified error with a plain message as its cause.
func New(code Code, op, path, msg string) error {
	return &Error{Code: code, Op: op, Path: path, Err: errors.New(msg)}
}

// Newf formats a message and builds a classified error.
func Newf(code Code, op, path, format string, args ...any) error {
	return &Error{Code: code, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(err error, code Code, op, path string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Path: path, Err: err}
}

// CodeOf reports the code of the outermost classified error in err's chain.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Code, true
	}
	return "", false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}

// Message returns the most specific human-readable text for err: the cause of
// a classified error, or the full error text otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e != nil && e.Err != nil {
		return e.Err.Error()
	}
	return err.Error()
}
