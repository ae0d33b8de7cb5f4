package actor

import (
	"errors"
	"fmt"
)

// Code is the framework's error taxonomy, mirroring the source's ERR_* enum.
type Code int

const (
	ErrOK        Code = 0
	ErrParam     Code = -1
	ErrContext   Code = -2
	ErrBusy      Code = -3
	ErrTerminate Code = -4
	ErrResource  Code = -5
	ErrSystem    Code = -6
)

func (c Code) String() string {
	switch c {
	case ErrOK:
		return "OK"
	case ErrParam:
		return "PARAM"
	case ErrContext:
		return "CONTEXT"
	case ErrBusy:
		return "BUSY"
	case ErrTerminate:
		return "TERMINATE"
	case ErrResource:
		return "RESOURCE"
	case ErrSystem:
		return "SYSTEM"
	default:
		return fmt.Sprintf("CODE(%d)", int(c))
	}
}

// Error wraps a Code as a Go error, optionally carrying an underlying cause.
type Error struct {
	Code  Code
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("actor: %s: %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("actor: %s", e.Code)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an *Error for the given code, optionally wrapping cause.
func NewError(code Code, cause error) *Error {
	return &Error{Code: code, Cause: cause}
}

// CodeOf extracts the Code from err if it is (or wraps) an *Error, otherwise
// reports ErrSystem for any non-nil opaque error and ErrOK for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ErrOK
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrSystem
}
