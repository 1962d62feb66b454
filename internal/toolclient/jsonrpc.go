// Package toolclient owns the long-lived child processes that speak
// JSON-RPC 2.0 over stdio to external tool servers: the wire types, the
// process manager, the per-server client, and the pool that ties them
// together behind a circuit breaker.
package toolclient

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

const (
	JSONRPCVersion      = "2.0"
	MCPProtocolVersion  = "2024-11-05"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Request is an outbound JSON-RPC call or notification (ID == nil).
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id,omitempty"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// IsNotification reports whether this request carries no ID and
// therefore expects no response.
func (r *Request) IsNotification() bool { return r.ID == nil }

// Response is an inbound JSON-RPC result or error.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// IsError reports whether the response carries an error member.
func (r *Response) IsError() bool { return r.Error != nil }

// RPCError is the JSON-RPC error object, and also implements error so
// parse/transport failures can be returned directly.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("JSON-RPC error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// RequestIDGenerator produces a monotonically increasing sequence of
// request IDs, one per client.
type RequestIDGenerator struct {
	counter int64
}

func NewRequestIDGenerator() *RequestIDGenerator { return &RequestIDGenerator{} }

func (g *RequestIDGenerator) Next() int64 { return atomic.AddInt64(&g.counter, 1) }

func NewRequest(id any, method string, params map[string]any) *Request {
	return &Request{JSONRPC: JSONRPCVersion, ID: id, Method: method, Params: params}
}

func NewNotification(method string, params map[string]any) *Request {
	return &Request{JSONRPC: JSONRPCVersion, Method: method, Params: params}
}

func NewResponse(id any, result any) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}

func NewErrorResponse(id any, code int, message string, data any) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Error: &RPCError{Code: code, Message: message, Data: data}}
}

func Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func UnmarshalRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &RPCError{Code: ParseError, Message: "failed to parse request", Data: err.Error()}
	}
	if req.JSONRPC != JSONRPCVersion {
		return nil, &RPCError{Code: InvalidRequest, Message: "unsupported jsonrpc version"}
	}
	return &req, nil
}

func UnmarshalResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &RPCError{Code: ParseError, Message: "failed to parse response", Data: err.Error()}
	}
	if resp.JSONRPC != JSONRPCVersion {
		return nil, &RPCError{Code: InvalidRequest, Message: "unsupported jsonrpc version"}
	}
	return &resp, nil
}
