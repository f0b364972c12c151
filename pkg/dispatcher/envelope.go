// Package dispatcher turns untyped RPC envelopes into typed procedure calls.
package dispatcher

import "encoding/json"

// Request is the JSON envelope of an incoming procedure call.
//
// Params is either a JSON array of positional values or a JSON object of named
// values. Named carries additional named values; a named value wins over a
// positional value for the same parameter.
type Request struct {
	ID      string                     `json:"id"`
	Session string                     `json:"session,omitempty"`
	Method  string                     `json:"method"`
	Params  json.RawMessage            `json:"params,omitempty"`
	Named   map[string]json.RawMessage `json:"named,omitempty"`
	Ctx     *InvocationContext         `json:"ctx,omitempty"`
}

// Response is the JSON envelope of a procedure call result. Exactly one of
// Result and Error is set; a void procedure answers with "result": null.
type Response struct {
	ID     string          `json:"id"`
	Ok     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorDetail    `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable"`
}

// InvocationContext holds context from the caller.
type InvocationContext struct {
	RequestID     string `json:"requestId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	Caller        string `json:"caller,omitempty"`
	TimeoutMs     int    `json:"timeoutMs,omitempty"`
}

// SessionOpenResponse answers a session open request.
type SessionOpenResponse struct {
	Ok      bool         `json:"ok"`
	Session string       `json:"session,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// SessionCloseRequest asks for a session to be shut down.
type SessionCloseRequest struct {
	Session string `json:"session"`
}

// SessionCloseResponse answers a session close request.
type SessionCloseResponse struct {
	Ok     bool         `json:"ok"`
	Closed bool         `json:"closed"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// nullResult is the result of a void procedure.
var nullResult = json.RawMessage("null")
