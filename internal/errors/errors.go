package errors

import (
	stderrors "errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeConfig    ErrorType = "CONFIG"
	ErrorTypeTransient ErrorType = "TRANSIENT"
	ErrorTypeParse     ErrorType = "PARSE"
	ErrorTypeIO        ErrorType = "IO"
	ErrorTypeLocked    ErrorType = "LOCKED"
)

// Error classifies a failure so the watch loop can decide whether an event
// is skipped quietly, dropped with an error log, or fatal at startup.
type Error struct {
	Type    ErrorType `json:"type"`
	Op      string    `json:"op,omitempty"`
	Path    string    `json:"path,omitempty"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Path)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func ConfigError(message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeConfig,
		Message: message,
		Err:     err,
	}
}

func TransientError(path, message string) *Error {
	return &Error{
		Type:    ErrorTypeTransient,
		Path:    path,
		Message: message,
	}
}

func ParseError(name, message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeParse,
		Path:    name,
		Message: message,
		Err:     err,
	}
}

func IOError(op, path string, err error) *Error {
	return &Error{
		Type:    ErrorTypeIO,
		Op:      op,
		Path:    path,
		Message: "file operation failed",
		Err:     err,
	}
}

// LockedError reports a resource held by another ck3watch process.
func LockedError(path string, err error) *Error {
	return &Error{
		Type:    ErrorTypeLocked,
		Path:    path,
		Message: "in use by another ck3watch process",
		Err:     err,
	}
}

// IsType reports whether any error in err's chain is an *Error of type t.
func IsType(err error, t ErrorType) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type == t
	}
	return false
}
