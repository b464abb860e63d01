// Package mcp implements the JSON-RPC 2.0 / MCP dispatcher: a method
// table, session lifecycle keyed by the Mcp-Session-Id header, and
// resumable Server-Sent Events for server-initiated messages, layered
// over the httpserver package's request/response types.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// ProtocolVersion is the MCP protocol version this dispatcher speaks.
const ProtocolVersion = "2025-06-18"

// MethodHandler implements one JSON-RPC method. A nil result with a nil
// error is valid for methods with no meaningful return value (e.g.
// notifications/initialized).
type MethodHandler func(ctx context.Context, sess *Session, params json.RawMessage) (result any, rpcErr *jsonrpc.Error)

// Dispatcher routes JSON-RPC requests to registered method handlers.
type Dispatcher struct {
	methods map[string]MethodHandler
}

// NewDispatcher creates a dispatcher with the standard MCP methods
// registered; callers add application-specific methods with Register.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{methods: make(map[string]MethodHandler)}
	registerStandardMethods(d)
	return d
}

// Register adds or replaces the handler for method.
func (d *Dispatcher) Register(method string, h MethodHandler) {
	d.methods[method] = h
}

// Dispatch handles one decoded request. For a notification (req.ID is
// invalid, i.e. IsCall() is false) it runs the handler for its side
// effect and returns nil: the caller must answer with 202 Accepted and
// no body per the Streamable HTTP transport. For a call it always
// returns a non-nil *jsonrpc.Response, carrying either Result or Error.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *Session, req *jsonrpc.Request) *jsonrpc.Response {
	handler, ok := d.methods[req.Method]
	if !ok {
		if !req.IsCall() {
			return nil
		}
		return errorResponse(req.ID, -32601, fmt.Sprintf("method not found: %s", req.Method))
	}

	result, rpcErr := handler(ctx, sess, req.Params)
	if !req.IsCall() {
		return nil
	}
	if rpcErr != nil {
		return &jsonrpc.Response{ID: req.ID, Error: rpcErr}
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, -32603, "internal error: "+err.Error())
	}
	return &jsonrpc.Response{ID: req.ID, Result: raw}
}

func errorResponse(id jsonrpc.ID, code int, message string) *jsonrpc.Response {
	return &jsonrpc.Response{ID: id, Error: &jsonrpc.Error{Code: code, Message: message}}
}
