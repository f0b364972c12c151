package rpc

import (
	"errors"
	"fmt"
)

// Error codes carried in responses.
const (
	CodeUnknownProcedure       = "UNKNOWN_PROCEDURE"
	CodeMissingArgument        = "MISSING_ARGUMENT"
	CodeTypeMismatch           = "TYPE_MISMATCH"
	CodeDuplicateProcedureName = "DUPLICATE_PROCEDURE_NAME"
	CodeReceiverClosed         = "RECEIVER_CLOSED"
	CodeInvocationFailure      = "INVOCATION_FAILURE"
	CodeInvalidRequest         = "INVALID_REQUEST"
	CodeInvalidArgument        = "INVALID_ARGUMENT"
	CodeInvalidDescriptor      = "INVALID_DESCRIPTOR"
	CodeIncompatibleVersion    = "INCOMPATIBLE_VERSION"
	CodeInternal               = "INTERNAL_ERROR"
)

// Error is a structured RPC error. Only its code, message and details cross the wire.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// NewError creates a new Error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code string) bool {
	var rpcErr *Error
	return errors.As(err, &rpcErr) && rpcErr.Code == code
}

// ErrUnknownProcedure reports a procedure name with no registry entry.
func ErrUnknownProcedure(name string) *Error {
	return &Error{
		Code:    CodeUnknownProcedure,
		Message: fmt.Sprintf("Unknown procedure: %s", name),
		Details: map[string]interface{}{"procedure": name},
	}
}

// ErrMissingArgument reports a required parameter with no supplied value.
func ErrMissingArgument(procedure, param string) *Error {
	return &Error{
		Code:    CodeMissingArgument,
		Message: fmt.Sprintf("Missing required argument %q for %s", param, procedure),
		Details: map[string]interface{}{"procedure": procedure, "parameter": param},
	}
}

// ErrTypeMismatch reports a wire value that cannot be coerced to the declared type.
func ErrTypeMismatch(param string, expected Type, actual string) *Error {
	return &Error{
		Code:    CodeTypeMismatch,
		Message: fmt.Sprintf("Argument %q: expected %s, got %s", param, expected, actual),
		Details: map[string]interface{}{"parameter": param, "expected": expected.String(), "actual": actual},
	}
}

// ErrDuplicateProcedureName reports a procedure name declared by two receivers.
func ErrDuplicateProcedureName(name, existing, incoming string) *Error {
	return &Error{
		Code:    CodeDuplicateProcedureName,
		Message: fmt.Sprintf("Procedure %s declared by both %s and %s", name, existing, incoming),
		Details: map[string]interface{}{"procedure": name, "receivers": []string{existing, incoming}},
	}
}

// ErrReceiverClosed reports a call against a receiver that has been shut down.
func ErrReceiverClosed(receiver string) *Error {
	return &Error{
		Code:    CodeReceiverClosed,
		Message: fmt.Sprintf("Receiver %s is closed", receiver),
		Details: map[string]interface{}{"receiver": receiver},
	}
}

// ErrInvocationFailure wraps a failure raised by a procedure body. Only the message is kept.
func ErrInvocationFailure(procedure, message string) *Error {
	return &Error{
		Code:    CodeInvocationFailure,
		Message: fmt.Sprintf("%s failed: %s", procedure, message),
		Details: map[string]interface{}{"procedure": procedure, "cause": message},
	}
}

// ErrInvalidArgument reports a malformed argument bag.
func ErrInvalidArgument(message string) *Error {
	return &Error{Code: CodeInvalidArgument, Message: message}
}

// ErrIncompatibleVersion reports a procedure whose signature version falls outside the requested range.
func ErrIncompatibleVersion(procedure, version, rangeStr string) *Error {
	return &Error{
		Code:    CodeIncompatibleVersion,
		Message: fmt.Sprintf("%s is version %s, which does not satisfy %s", procedure, version, rangeStr),
		Details: map[string]interface{}{"procedure": procedure, "version": version, "range": rangeStr},
	}
}

// ErrInvalidDescriptor reports a malformed procedure or receiver declaration.
func ErrInvalidDescriptor(message string) *Error {
	return &Error{Code: CodeInvalidDescriptor, Message: message}
}
