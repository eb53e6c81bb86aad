package protocol

import (
	"errors"
	"fmt"
)

// JSON-RPC 2.0 standard error codes. These are part of the wire contract.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Error is a protocol-level failure. It aborts the single request it answers;
// the session stays usable.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("MCP error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// CodeName returns the symbolic name of the error code
func (e *Error) CodeName() string {
	return CodeName(e.Code)
}

// CodeName returns the symbolic name of a JSON-RPC error code
func CodeName(code int) string {
	switch code {
	case ParseError:
		return "ParseError"
	case InvalidRequest:
		return "InvalidRequest"
	case MethodNotFound:
		return "MethodNotFound"
	case InvalidParams:
		return "InvalidParams"
	case InternalError:
		return "InternalError"
	default:
		return fmt.Sprintf("Code(%d)", code)
	}
}

// NewInvalidRequest creates an InvalidRequest error
func NewInvalidRequest(format string, args ...any) *Error {
	return &Error{Code: InvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// NewMethodNotFound creates a MethodNotFound error
func NewMethodNotFound(format string, args ...any) *Error {
	return &Error{Code: MethodNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewInternalError creates an InternalError error
func NewInternalError(format string, args ...any) *Error {
	return &Error{Code: InternalError, Message: fmt.Sprintf(format, args...)}
}

// NewParseError creates a ParseError error
func NewParseError(format string, args ...any) *Error {
	return &Error{Code: ParseError, Message: fmt.Sprintf(format, args...)}
}

// AsError returns the *Error carried by err unchanged, or wraps any other
// error as an InternalError carrying its message. A nil err returns nil.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var protoErr *Error
	if errors.As(err, &protoErr) {
		return protoErr
	}
	return &Error{Code: InternalError, Message: err.Error()}
}
