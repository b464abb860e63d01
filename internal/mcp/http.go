package mcp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sentinelcore/sentinelcore/internal/httpserver"
	"github.com/sentinelcore/sentinelcore/internal/telemetry"
)

// SessionHeader and LastEventIDHeader are the transport-level headers
// the Streamable HTTP binding uses for session affinity and SSE resume.
const (
	SessionHeader     = "Mcp-Session-Id"
	LastEventIDHeader = "Last-Event-ID"
)

// DefaultMaxMessageSize bounds one JSON-RPC message body.
const DefaultMaxMessageSize = 4 << 20 // 4 MiB

// EndpointConfig configures an Endpoint.
type EndpointConfig struct {
	SessionTimeout     time.Duration
	MaxMessageSize     int
	CORSOrigin         string // empty disables CORS headers entirely
	EnableResumability bool
	Tracer             *telemetry.Provider // nil uses a no-op provider
}

// DefaultEndpointConfig matches the core specification's MCP defaults.
func DefaultEndpointConfig() EndpointConfig {
	return EndpointConfig{
		SessionTimeout:     DefaultSessionTimeout,
		MaxMessageSize:     DefaultMaxMessageSize,
		EnableResumability: true,
	}
}

// Endpoint is the Streamable HTTP transport binding for a Dispatcher: a
// single httpserver.HandlerFunc implementing POST (RPC), GET (SSE
// listen), DELETE (session termination), and OPTIONS (CORS preflight).
type Endpoint struct {
	cfg        EndpointConfig
	dispatcher *Dispatcher
	sessions   SessionStore

	logsMu sync.Mutex
	logs   map[string]*EventLog
}

// NewEndpoint wires a Dispatcher and SessionStore into an HTTP handler.
func NewEndpoint(dispatcher *Dispatcher, sessions SessionStore, cfg EndpointConfig) *Endpoint {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.Tracer == nil {
		cfg.Tracer, _ = telemetry.New(telemetry.Config{})
	}
	return &Endpoint{cfg: cfg, dispatcher: dispatcher, sessions: sessions, logs: make(map[string]*EventLog)}
}

// Handle implements httpserver.HandlerFunc.
func (e *Endpoint) Handle(ctx *httpserver.Context) *httpserver.Response {
	var resp *httpserver.Response
	switch ctx.Request.Method {
	case "POST":
		resp = e.handlePost(ctx)
	case "GET":
		resp = e.handleGet(ctx)
	case "DELETE":
		resp = e.handleDelete(ctx)
	case "OPTIONS":
		resp = e.handleOptions()
	default:
		resp = httpserver.NewResponse(405, []byte("method not allowed"))
		resp.Headers.Set("Content-Type", "text/plain; charset=utf-8")
	}
	e.applyCORS(resp)
	return resp
}

func (e *Endpoint) applyCORS(resp *httpserver.Response) {
	if e.cfg.CORSOrigin == "" {
		return
	}
	resp.Headers.Set("Access-Control-Allow-Origin", e.cfg.CORSOrigin)
	resp.Headers.Set("Vary", "Origin")
}

func (e *Endpoint) handleOptions() *httpserver.Response {
	resp := httpserver.NewResponse(204, nil)
	resp.Headers.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	resp.Headers.Set("Access-Control-Allow-Headers", "Content-Type, "+SessionHeader+", "+LastEventIDHeader+", Authorization")
	resp.Headers.Set("Access-Control-Max-Age", "86400")
	return resp
}

func (e *Endpoint) handlePost(ctx *httpserver.Context) *httpserver.Response {
	req := ctx.Request

	if ct, ok := req.Headers.Get("Content-Type"); !ok || !strings.HasPrefix(ct, "application/json") {
		return jsonRPCError(jsonrpc.ID{}, -32600, "Content-Type must be application/json")
	}
	if len(req.Body) > e.cfg.MaxMessageSize {
		return jsonRPCError(jsonrpc.ID{}, -32600, "message exceeds maximum size")
	}
	if !json.Valid(req.Body) {
		return jsonRPCError(jsonrpc.ID{}, -32700, "parse error")
	}

	msg, err := jsonrpc.DecodeMessage(req.Body)
	if err != nil {
		return jsonRPCError(jsonrpc.ID{}, -32700, "parse error: "+err.Error())
	}
	rpcReq, ok := msg.(*jsonrpc.Request)
	if !ok {
		return jsonRPCError(jsonrpc.ID{}, -32600, "expected a JSON-RPC request")
	}

	var sess *Session
	isInit := rpcReq.Method == "initialize"
	if isInit {
		sess, err = e.sessions.Create(e.cfg.SessionTimeout)
		if err != nil {
			return jsonRPCError(rpcReq.ID, -32603, "failed to create session: "+err.Error())
		}
	} else {
		sessionID, ok := req.Headers.Get(SessionHeader)
		if !ok {
			return e.missingSession(rpcReq.ID)
		}
		sess, ok = e.sessions.Get(sessionID)
		if !ok || sess.IsExpired() {
			return e.unknownSession(rpcReq.ID)
		}
		e.sessions.Refresh(sessionID, e.cfg.SessionTimeout)
	}

	spanCtx, span := e.cfg.Tracer.StartSpan(ctx.Ctx, "mcp.dispatch", attribute.String("mcp.method", rpcReq.Method))
	rpcResp := e.dispatcher.Dispatch(spanCtx, sess, rpcReq)
	if rpcResp != nil && rpcResp.Error != nil {
		telemetry.EndSpan(span, fmt.Errorf("%s", rpcResp.Error.Message))
	} else {
		telemetry.EndSpan(span, nil)
	}
	if rpcResp == nil {
		// Notification: no body, per the Streamable HTTP transport.
		out := httpserver.NewResponse(202, nil)
		return out
	}

	raw, encErr := jsonrpc.EncodeMessage(rpcResp)
	if encErr != nil {
		return jsonRPCError(rpcReq.ID, -32603, "failed to encode response: "+encErr.Error())
	}
	out := httpserver.NewResponse(200, raw)
	out.Headers.Set("Content-Type", "application/json")
	if isInit {
		out.Headers.Set(SessionHeader, sess.ID)
	}
	return out
}

// handleGet opens an SSE listen stream for server-initiated messages. It
// replays any buffered events after Last-Event-ID, then closes the
// stream: a reconnecting client resumes with a fresh GET carrying the
// last ID it saw. Holding the stream open indefinitely for as-yet-unsent
// events is left to a future push-aware reactor wake, not wired here.
func (e *Endpoint) handleGet(ctx *httpserver.Context) *httpserver.Response {
	if !e.cfg.EnableResumability {
		resp := httpserver.NewResponse(405, []byte("SSE listening disabled"))
		resp.Headers.Set("Content-Type", "text/plain; charset=utf-8")
		return resp
	}

	sessionID, ok := ctx.Request.Headers.Get(SessionHeader)
	if !ok {
		return e.missingSession(jsonrpc.ID{})
	}
	sess, ok := e.sessions.Get(sessionID)
	if !ok || sess.IsExpired() {
		return e.unknownSession(jsonrpc.ID{})
	}
	e.sessions.Refresh(sessionID, e.cfg.SessionTimeout)

	var backlog []Replayable
	if lastID, ok := ctx.Request.Headers.Get(LastEventIDHeader); ok {
		backlog = e.eventLogFor(sessionID).Since(ParseEventID(lastID))
	}

	sentPreamble := false
	resp := httpserver.NewStreamingResponse(200, func() ([]byte, error) {
		if sentPreamble {
			return nil, nil
		}
		sentPreamble = true
		out := []byte(": connected\n\n")
		for _, ev := range backlog {
			out = append(out, httpserver.FormatSSEEvent(httpserver.SSEEvent{
				ID:   strconv.FormatUint(ev.ID, 10),
				Data: string(ev.Data),
			})...)
		}
		return out, nil
	})
	resp.SSE = true
	return resp
}

func (e *Endpoint) handleDelete(ctx *httpserver.Context) *httpserver.Response {
	sessionID, ok := ctx.Request.Headers.Get(SessionHeader)
	if !ok {
		return e.missingSession(jsonrpc.ID{})
	}
	if !e.sessions.Delete(sessionID) {
		resp := httpserver.NewResponse(404, []byte("unknown session"))
		resp.Headers.Set("Content-Type", "text/plain; charset=utf-8")
		return resp
	}
	e.logsMu.Lock()
	delete(e.logs, sessionID)
	e.logsMu.Unlock()
	return httpserver.NewResponse(204, nil)
}

// Publish appends a server-initiated message to a session's replay
// buffer. It is delivered by a later GET listen request on that session
// whose Last-Event-ID is below the returned ID; a GET without
// Last-Event-ID replays nothing.
func (e *Endpoint) Publish(sessionID string, data []byte) uint64 {
	return e.eventLogFor(sessionID).Append(data)
}

func (e *Endpoint) eventLogFor(sessionID string) *EventLog {
	e.logsMu.Lock()
	defer e.logsMu.Unlock()
	log, ok := e.logs[sessionID]
	if !ok {
		log = NewEventLog(DefaultEventWindow, DefaultMaxEvents)
		e.logs[sessionID] = log
	}
	return log
}

func (e *Endpoint) missingSession(id jsonrpc.ID) *httpserver.Response {
	return jsonRPCErrorStatus(id, 400, -32600, "missing "+SessionHeader+" header")
}

func (e *Endpoint) unknownSession(id jsonrpc.ID) *httpserver.Response {
	return jsonRPCErrorStatus(id, 404, -32001, "unknown or expired session")
}

// jsonRPCError answers with HTTP 200 and a JSON-RPC error body, per the
// Streamable HTTP transport's convention of keeping protocol errors at
// the JSON-RPC layer rather than the HTTP status line.
func jsonRPCError(id jsonrpc.ID, code int, message string) *httpserver.Response {
	return jsonRPCErrorStatus(id, 200, code, message)
}

func jsonRPCErrorStatus(id jsonrpc.ID, httpStatus, code int, message string) *httpserver.Response {
	body, err := jsonrpc.EncodeMessage(&jsonrpc.Response{ID: id, Error: &jsonrpc.Error{Code: code, Message: message}})
	if err != nil {
		body = []byte(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"internal error"}}`)
	}
	resp := httpserver.NewResponse(httpStatus, body)
	resp.Headers.Set("Content-Type", "application/json")
	return resp
}
