// Package jsonrpc defines the JSON-RPC 2.0 wire envelopes exchanged with the
// MCP subprocess and the mailbox gateway.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the protocol version carried in every envelope.
const Version = "2.0"

// Error codes used by the bridge and relay. -32700 and -32603 are the
// standard JSON-RPC codes; the -320xx range is the server-defined block.
const (
	CodeParseError    = -32700
	CodeInternalError = -32603
	CodeGatewayError  = -32000
	CodeTimeout       = -32001
	CodeProcessExited = -32002
)

// Request is an outbound JSON-RPC request. A nil ID makes it a notification.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewRequest builds a request envelope with the protocol version filled in.
func NewRequest(id any, method string, params any) Request {
	return Request{JSONRPC: Version, ID: id, Method: method, Params: params}
}

// Notification builds a request envelope with no id.
func Notification(method string, params any) Request {
	return Request{JSONRPC: Version, Method: method, Params: params}
}

// Response is a JSON-RPC response. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// ErrorResponse builds a response envelope carrying an error object.
func ErrorResponse(id any, code int, message string) Response {
	return Response{JSONRPC: Version, ID: id, Error: &Error{Code: code, Message: message}}
}

// Message decodes any incoming JSON-RPC message: request, response, or
// notification. Classification follows from which fields are present.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

func (m *Message) IsResponse() bool     { return m.ID != nil && m.Method == "" }
func (m *Message) IsRequest() bool      { return m.ID != nil && m.Method != "" }
func (m *Message) IsNotification() bool { return m.ID == nil && m.Method != "" }

// AsResponse converts a decoded message back into a response envelope.
func (m *Message) AsResponse() *Response {
	return &Response{JSONRPC: m.JSONRPC, ID: m.ID, Result: m.Result, Error: m.Error}
}
