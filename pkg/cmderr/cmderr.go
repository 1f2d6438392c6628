// Package cmderr defines the command error taxonomy for the controller.
//
// No command failure is fatal: dispatchers turn these errors into a single
// diagnostic line on the output transport and leave all axis state
// untouched. The code categorizes the failure so logs and tests can match
// on it without string comparison.
package cmderr

import "fmt"

// Code is the category of a rejected command.
type Code string

const (
	// ErrUnknownCommand is an unrecognized short-form sub-command.
	ErrUnknownCommand Code = "UNKNOWN_COMMAND"

	// ErrUnknownCode is an unrecognized G or M code.
	ErrUnknownCode Code = "UNKNOWN_CODE"

	// ErrMissingParam is a required operand that was absent.
	ErrMissingParam Code = "MISSING_PARAM"

	// ErrUnsupported is a recognized command the hardware cannot perform.
	ErrUnsupported Code = "UNSUPPORTED"
)

// Error is a rejected command with its offending input echoed back.
type Error struct {
	Code    Code
	Message string
	Input   string
}

func (e *Error) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("error [%s]: %s: %q", e.Code, e.Message, e.Input)
	}
	return fmt.Sprintf("error [%s]: %s", e.Code, e.Message)
}

// New creates an Error with the given code and message.
func New(code Code, input, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Input:   input,
	}
}

// Unknown reports an unrecognized command line or sub-command.
func Unknown(input string) *Error {
	return New(ErrUnknownCommand, input, "unrecognized command")
}

// UnknownCode reports an unrecognized G/M code.
func UnknownCode(input, code string) *Error {
	return New(ErrUnknownCode, input, "unrecognized code %s", code)
}

// MissingParam reports a required operand that was not supplied.
func MissingParam(input string, letter byte) *Error {
	return New(ErrMissingParam, input, "missing required %c parameter", letter)
}

// Unsupported reports a command the hardware cannot carry out.
func Unsupported(input, reason string) *Error {
	return New(ErrUnsupported, input, "%s", reason)
}
