package pcnt

import "errors"

// Code is the kind of a driver failure.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

const (
	OK                Code = "ok"
	InvalidArgument   Code = "invalid_argument"
	InvalidState      Code = "invalid_state"
	ResourceExhausted Code = "resource_exhausted"
	Propagated        Code = "propagated" // collaborator failure passed through
)

// Error keeps the failing operation and an optional cause next to the Code.
type Error struct {
	Code Code
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := string(e.Code)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a bare Code, so errors.Is(err, pcnt.InvalidState) works.
func (e *Error) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.Code
}

// CodeOf extracts the Code from an error, defaulting to Propagated for
// errors the driver did not produce.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Propagated
}

// Messages logged and returned by the validation checks.
const (
	msgPort      = "port error"
	msgUnit      = "unit number error"
	msgChannel   = "channel error"
	msgNotInit   = "driver not initialized"
	msgInitTwice = "driver already initialized"
	msgPulsePin  = "pulse input io error"
	msgCtrlPin   = "control io error"
	msgCountMode = "count mode error"
	msgCtrlMode  = "control mode error"
	msgEvent     = "event type error"
	msgLimit     = "limit value error"
	msgParam     = "param value error"
	msgNoService = "isr service is not installed"
	msgInstalled = "isr service already installed"
	msgHandler   = "handler must not be nil"
)
