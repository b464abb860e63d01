package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// serverInfo describes this server in the initialize handshake.
type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerName and ServerVersion identify this process in "initialize"
// results; applications embedding the core may override them by
// assigning to these variables before serving.
var (
	ServerName    = "sentinelcore"
	ServerVersion = "0.1.0"
)

func registerStandardMethods(d *Dispatcher) {
	d.Register("initialize", handleInitialize)
	d.Register("notifications/initialized", handleInitialized)
	d.Register("ping", handlePing)
	d.Register("tools/list", handleToolsList)
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      serverInfo     `json:"serverInfo"`
}

// handleInitialize negotiates the protocol version and describes this
// server's capabilities. The HTTP-layer endpoint is responsible for
// creating the session before this handler runs and for attaching
// Mcp-Session-Id to the response; this handler only fills in the wire
// reply body.
func handleInitialize(_ context.Context, sess *Session, params json.RawMessage) (any, *jsonrpc.Error) {
	var p initializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &jsonrpc.Error{Code: -32602, Message: "invalid params: " + err.Error()}
		}
	}
	version := p.ProtocolVersion
	if version == "" {
		version = ProtocolVersion
	}
	if sess != nil {
		sess.ProtocolVer = version
	}
	return initializeResult{
		ProtocolVersion: version,
		Capabilities:    map[string]any{"tools": map[string]any{"listChanged": false}},
		ServerInfo:      serverInfo{Name: ServerName, Version: ServerVersion},
	}, nil
}

// handleInitialized acknowledges the client's post-initialize
// notification. It is always a notification (no response expected), so
// the returned result is never marshaled.
func handleInitialized(_ context.Context, _ *Session, _ json.RawMessage) (any, *jsonrpc.Error) {
	return nil, nil
}

func handlePing(_ context.Context, _ *Session, _ json.RawMessage) (any, *jsonrpc.Error) {
	return struct{}{}, nil
}

type toolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`
}

type toolsListResult struct {
	Tools []toolDescriptor `json:"tools"`
}

// handleToolsList answers with no tools by default; an embedding
// application registers its own "tools/list" handler via
// Dispatcher.Register to replace this one.
func handleToolsList(_ context.Context, _ *Session, _ json.RawMessage) (any, *jsonrpc.Error) {
	return toolsListResult{Tools: []toolDescriptor{}}, nil
}
