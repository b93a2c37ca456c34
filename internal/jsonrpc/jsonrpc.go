// Copyright 2025 mcpkit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package jsonrpc holds the JSON-RPC 2.0 message envelopes and the error
// codes used across transports.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// JSONRPC_VERSION is the version of JSON-RPC used by MCP.
const JSONRPC_VERSION = "2.0"

// Standard JSON-RPC error codes.
const (
	PARSE_ERROR      = -32700
	INVALID_REQUEST  = -32600
	METHOD_NOT_FOUND = -32601
	INVALID_PARAMS   = -32602
	INTERNAL_ERROR   = -32603
)

// MCP extension error codes.
const (
	// SERVER_ERROR is the generic application error.
	SERVER_ERROR = -32000
	// NOT_FOUND indicates an unknown tool, resource, or prompt name.
	NOT_FOUND = -32001
	// NOT_INITIALIZED indicates a method arrived before the initialize
	// handshake completed.
	NOT_INITIALIZED = -32002
	// SAMPLING_TIMEOUT indicates a server-initiated request exceeded its
	// deadline.
	SAMPLING_TIMEOUT = -32010
	// CANCELLED indicates an in-flight operation was cancelled.
	CANCELLED = -32011
	// AUTH_REQUIRED indicates the authentication stage rejected the request.
	AUTH_REQUIRED = -32401
	// AUTH_FORBIDDEN indicates the authorization stage denied the action.
	AUTH_FORBIDDEN = -32403
)

// RequestId is a uniquely identifying ID for a request in JSON-RPC.
// It can be any JSON-serializable value, typically a number or string.
type RequestId interface{}

// BaseMessage is the decodable subset shared by requests, notifications, and
// responses; the dispatcher classifies a frame by which fields are present.
type BaseMessage struct {
	Jsonrpc string          `json:"jsonrpc"`
	Id      RequestId       `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *McpError       `json:"error,omitempty"`
}

// IsRequest reports whether the frame expects a response.
func (m *BaseMessage) IsRequest() bool { return m.Id != nil && m.Method != "" }

// IsNotification reports whether the frame is a one-way notification.
func (m *BaseMessage) IsNotification() bool { return m.Id == nil && m.Method != "" }

// IsResponse reports whether the frame answers an outbound request.
func (m *BaseMessage) IsResponse() bool { return m.Id != nil && m.Method == "" }

// JSONRPCRequest represents a request that expects a response.
type JSONRPCRequest struct {
	Jsonrpc string    `json:"jsonrpc"`
	Id      RequestId `json:"id"`
	Method  string    `json:"method"`
	Params  any       `json:"params,omitempty"`
}

// JSONRPCNotification represents a notification which does not expect a response.
type JSONRPCNotification struct {
	Jsonrpc string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// JSONRPCResponse represents a successful (non-error) response to a request.
type JSONRPCResponse struct {
	Jsonrpc string      `json:"jsonrpc"`
	Id      RequestId   `json:"id"`
	Result  interface{} `json:"result"`
}

// McpError represents the error content.
type McpError struct {
	// The error type that occurred.
	Code int `json:"code"`
	// A short description of the error. The message SHOULD be limited
	// to a concise single sentence.
	Message string `json:"message"`
	// Additional information about the error. The value of this member
	// is defined by the sender (e.g. detailed error information).
	Data interface{} `json:"data,omitempty"`
}

// JSONRPCError represents a non-successful (error) response to a request.
type JSONRPCError struct {
	Jsonrpc string    `json:"jsonrpc"`
	Id      RequestId `json:"id"`
	Error   McpError  `json:"error"`
}

// NewResponse returns a response envelope for the given id and result.
func NewResponse(id RequestId, result interface{}) JSONRPCResponse {
	return JSONRPCResponse{
		Jsonrpc: JSONRPC_VERSION,
		Id:      id,
		Result:  result,
	}
}

// NewNotification returns a notification envelope.
func NewNotification(method string, params any) JSONRPCNotification {
	return JSONRPCNotification{
		Jsonrpc: JSONRPC_VERSION,
		Method:  method,
		Params:  params,
	}
}

// NewRequest returns a request envelope.
func NewRequest(id RequestId, method string, params any) JSONRPCRequest {
	return JSONRPCRequest{
		Jsonrpc: JSONRPC_VERSION,
		Id:      id,
		Method:  method,
		Params:  params,
	}
}

// NewError returns an error response envelope.
func NewError(id RequestId, code int, message string, data interface{}) JSONRPCError {
	return JSONRPCError{
		Jsonrpc: JSONRPC_VERSION,
		Id:      id,
		Error: McpError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// ProtocolError is the error carrier raised by handlers and middleware; the
// dispatcher attaches the inbound id and surfaces it as a JSONRPCError.
type ProtocolError struct {
	Code    int
	Message string
	Data    interface{}
	Id      RequestId
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewProtocolError returns a ProtocolError with the given code and message.
func NewProtocolError(code int, message string, data interface{}) *ProtocolError {
	return &ProtocolError{Code: code, Message: message, Data: data}
}

// Envelope converts the protocol error into a response envelope for id.
func (e *ProtocolError) Envelope(id RequestId) JSONRPCError {
	if e.Id != nil {
		id = e.Id
	}
	return NewError(id, e.Code, e.Message, e.Data)
}
