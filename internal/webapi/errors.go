package webapi

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Error names used by host operations.
const (
	ErrorName                 = "Error"
	TypeErrorName             = "TypeError"
	RangeErrorName            = "RangeError"
	SyntaxErrorName           = "SyntaxError"
	SecurityErrorName         = "SecurityError"
	HierarchyRequestErrorName = "HierarchyRequestError"
	QuotaExceededErrorName    = "QuotaExceededError"
	InvalidCharacterErrorName = "InvalidCharacterError"
	NotSupportedErrorName     = "NotSupportedError"
	ReferenceErrorName        = "ReferenceError"
)

// Error is a host error object. It is both a Go error and a value guests can
// hold a handle to.
type Error struct {
	Name    string
	Message string
	Stack   string
}

// NewError creates an error object with a captured host stack.
func NewError(name, message string) *Error {
	return &Error{Name: name, Message: message, Stack: captureStack(2)}
}

// Errorf formats the message of a new error object.
func Errorf(name, format string, args ...any) *Error {
	return &Error{Name: name, Message: fmt.Sprintf(format, args...), Stack: captureStack(2)}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return e.Name + ": " + e.Message
}

// Property implements PropertyGetter.
func (e *Error) Property(name string) (any, bool) {
	switch name {
	case "name":
		return e.Name, true
	case "message":
		return e.Message, true
	case "stack":
		return e.Stack, true
	}
	return nil, false
}

// Exception carries an arbitrary thrown value through Go error returns.
type Exception struct {
	Value any
}

func (e *Exception) Error() string {
	if err, ok := e.Value.(error); ok {
		return "uncaught " + err.Error()
	}
	return "uncaught " + DebugString(e.Value)
}

func (e *Exception) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Throw wraps v so it can travel as an error.
func Throw(v any) error {
	if err, ok := v.(*Error); ok {
		return err
	}
	return &Exception{Value: v}
}

// ThrownValue converts an error back into the value a catcher observes.
// Exceptions yield their payload, error objects yield themselves, and any
// other error becomes an Error object with its message.
func ThrownValue(err error) any {
	var exc *Exception
	if errors.As(err, &exc) {
		return exc.Value
	}
	var obj *Error
	if errors.As(err, &obj) {
		return obj
	}
	return &Error{Name: ErrorName, Message: err.Error(), Stack: captureStack(2)}
}

// captureStack renders the Go call stack as function names only. File
// paths stay on the host side.
func captureStack(skip int) string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(skip+1, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		frame, more := frames.Next()
		if frame.Function != "" {
			fmt.Fprintf(&b, "    at %s\n", shortFunction(frame.Function))
		}
		if !more {
			break
		}
	}
	return b.String()
}

// shortFunction drops the import path from a qualified function name.
func shortFunction(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}
