// Package jsonrpc implements the JSON-RPC envelope used by the /rpc,
// /events and /log endpoints.
//
// The browser client posts {"method": ..., "params": [...]} bodies. The
// "jsonrpc" version member is accepted but not required. Responses carry
// either a result or an error object, never both.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Version is the JSON-RPC version written on responses.
const Version = "2.0"

// Standard JSON-RPC error codes
const (
	ParseError     = -32700 // Invalid JSON was received
	InvalidRequest = -32600 // The JSON sent is not a valid Request object
	MethodNotFound = -32601 // The method does not exist / is not available
	InvalidParams  = -32602 // Invalid method parameter(s)
	InternalError  = -32603 // Internal JSON-RPC error
)

// Server error codes
const (
	Unauthorized = -32001 // No valid session identity
	Forbidden    = -32002 // Identity not permitted
	Unavailable  = -32003 // Back-end session unreachable
	Timeout      = -32004 // Back-end session did not answer in time
)

// DefaultMaxBodyBytes bounds request bodies read by ReadRequest.
const DefaultMaxBodyBytes = 4 << 20

// Request is a JSON-RPC request.
type Request struct {
	JSONRPC  string          `json:"jsonrpc,omitempty"`
	ID       json.RawMessage `json:"id,omitempty"`
	Method   string          `json:"method"`
	Params   json.RawMessage `json:"params,omitempty"`
	ClientID string          `json:"clientId,omitempty"`
}

// Response is a JSON-RPC response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("JSON-RPC error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// NewError creates an error object.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// ParseRequest parses a request body.
func ParseRequest(data []byte) (*Request, *Error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, NewError(InvalidRequest, "empty request body")
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &Error{
			Code:    ParseError,
			Message: "failed to parse JSON-RPC request",
			Data:    err.Error(),
		}
	}
	if req.Method == "" {
		return nil, NewError(InvalidRequest, "missing method")
	}
	if req.JSONRPC != "" && req.JSONRPC != Version {
		return nil, NewError(InvalidRequest, fmt.Sprintf("invalid JSON-RPC version: %s", req.JSONRPC))
	}
	return &req, nil
}

// ReadRequest reads and parses the body of r, bounded by maxBytes (or
// DefaultMaxBodyBytes when zero). Non-POST requests are rejected.
func ReadRequest(r *http.Request, maxBytes int64) (*Request, *Error) {
	if r.Method != http.MethodPost {
		return nil, NewError(InvalidRequest, "JSON-RPC requests must use POST")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		return nil, &Error{Code: ParseError, Message: "failed to read request body", Data: err.Error()}
	}
	if int64(len(body)) > maxBytes {
		return nil, NewError(InvalidRequest, "request body too large")
	}
	return ParseRequest(body)
}

// UnmarshalParams decodes the request params into v.
func (r *Request) UnmarshalParams(v any) *Error {
	if len(r.Params) == 0 {
		return NewError(InvalidParams, "missing params")
	}
	if err := json.Unmarshal(r.Params, v); err != nil {
		return &Error{Code: InvalidParams, Message: "invalid params", Data: err.Error()}
	}
	return nil
}

// NewResult creates a successful response.
func NewResult(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id json.RawMessage, rpcErr *Error) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: rpcErr}
}

// Marshal encodes resp. Encoding failures fall back to an internal error
// body so a response is always produced.
func Marshal(resp *Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(NewErrorResponse(resp.ID, NewError(InternalError, "failed to encode response")))
	}
	return data
}

// ErrorBody returns an encoded error response without an id.
func ErrorBody(code int, message string) []byte {
	return Marshal(NewErrorResponse(nil, NewError(code, message)))
}

// WriteResult writes a 200 result response to w.
func WriteResult(w http.ResponseWriter, id json.RawMessage, result any) {
	write(w, http.StatusOK, NewResult(id, result))
}

// WriteError writes an error response with the given HTTP status to w.
func WriteError(w http.ResponseWriter, status int, id json.RawMessage, rpcErr *Error) {
	write(w, status, NewErrorResponse(id, rpcErr))
}

func write(w http.ResponseWriter, status int, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(Marshal(resp))
}
