package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/stretchr/testify/require"

	"github.com/sentinelcore/sentinelcore/internal/httpserver"
)

func newReq(method, path string) *httpserver.Request {
	return &httpserver.Request{Method: method, Path: path, Headers: httpserver.NewHeader()}
}

func TestMemorySessionStore_CreateGetRefreshDelete(t *testing.T) {
	store := NewMemorySessionStore()
	sess, err := store.Create(time.Minute)
	require.NoError(t, err)
	require.Len(t, sess.ID, 64)

	got, ok := store.Get(sess.ID)
	require.True(t, ok)
	require.Equal(t, sess.ID, got.ID)

	require.True(t, store.Refresh(sess.ID, 2*time.Minute))
	require.False(t, store.Refresh("nonexistent", time.Minute))

	require.True(t, store.Delete(sess.ID))
	_, ok = store.Get(sess.ID)
	require.False(t, ok)
}

func TestMemorySessionStore_StartCleanupSweepsExpired(t *testing.T) {
	store := NewMemorySessionStore()
	sess, err := store.Create(time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.StartCleanup(ctx, 5*time.Millisecond)
	defer store.Stop()

	require.Eventually(t, func() bool {
		_, ok := store.Get(sess.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestEventLog_SinceReturnsOnlyNewerEvents(t *testing.T) {
	log := NewEventLog(time.Minute, 10)
	id1 := log.Append([]byte("one"))
	id2 := log.Append([]byte("two"))
	_ = log.Append([]byte("three"))

	replay := log.Since(id1)
	require.Len(t, replay, 2)
	require.Equal(t, id2, replay[0].ID)
	require.Equal(t, []byte("two"), replay[0].Data)
}

func TestEventLog_EvictsBeyondMaxSize(t *testing.T) {
	log := NewEventLog(time.Minute, 2)
	log.Append([]byte("a"))
	log.Append([]byte("b"))
	log.Append([]byte("c"))

	replay := log.Since(0)
	require.Len(t, replay, 2)
	require.Equal(t, []byte("b"), replay[0].Data)
	require.Equal(t, []byte("c"), replay[1].Data)
}

func TestParseEventID(t *testing.T) {
	require.Equal(t, uint64(42), ParseEventID("42"))
	require.Equal(t, uint64(0), ParseEventID("garbage"))
}

func TestDispatcher_InitializeAndPing(t *testing.T) {
	d := NewDispatcher()
	sess := &Session{ID: "s1"}

	id, err := jsonrpc.MakeID(1)
	require.NoError(t, err)
	resp := d.Dispatch(context.Background(), sess, &jsonrpc.Request{ID: id, Method: "initialize"})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	var result initializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Equal(t, ProtocolVersion, result.ProtocolVersion)
	require.Equal(t, ServerName, result.ServerInfo.Name)

	id2, err := jsonrpc.MakeID(2)
	require.NoError(t, err)
	pingResp := d.Dispatch(context.Background(), sess, &jsonrpc.Request{ID: id2, Method: "ping"})
	require.NotNil(t, pingResp)
	require.Nil(t, pingResp.Error)
}

func TestDispatcher_UnknownMethod(t *testing.T) {
	d := NewDispatcher()
	id, err := jsonrpc.MakeID(1)
	require.NoError(t, err)
	resp := d.Dispatch(context.Background(), nil, &jsonrpc.Request{ID: id, Method: "nonexistent"})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	require.Equal(t, -32601, resp.Error.Code)
}

func TestDispatcher_NotificationReturnsNil(t *testing.T) {
	d := NewDispatcher()
	resp := d.Dispatch(context.Background(), nil, &jsonrpc.Request{Method: "notifications/initialized"})
	require.Nil(t, resp)
}

func TestEndpoint_InitializeThenCallRoundTrip(t *testing.T) {
	endpoint := NewEndpoint(NewDispatcher(), NewMemorySessionStore(), DefaultEndpointConfig())

	initBody, err := jsonrpc.EncodeMessage(&jsonrpc.Request{ID: mustID(t, 1), Method: "initialize"})
	require.NoError(t, err)
	req := newReq("POST", "/mcp")
	req.Headers.Set("Content-Type", "application/json")
	req.Body = initBody

	resp := endpoint.Handle(&httpserver.Context{Ctx: context.Background(), Request: req})
	require.Equal(t, 200, resp.Status)
	sessionID, ok := resp.Headers.Get(SessionHeader)
	require.True(t, ok)
	require.NotEmpty(t, sessionID)

	pingBody, err := jsonrpc.EncodeMessage(&jsonrpc.Request{ID: mustID(t, 2), Method: "ping"})
	require.NoError(t, err)
	pingReq := newReq("POST", "/mcp")
	pingReq.Headers.Set("Content-Type", "application/json")
	pingReq.Headers.Set(SessionHeader, sessionID)
	pingReq.Body = pingBody

	pingResp := endpoint.Handle(&httpserver.Context{Ctx: context.Background(), Request: pingReq})
	require.Equal(t, 200, pingResp.Status)
}

func TestEndpoint_MissingSessionRejected(t *testing.T) {
	endpoint := NewEndpoint(NewDispatcher(), NewMemorySessionStore(), DefaultEndpointConfig())
	pingBody, err := jsonrpc.EncodeMessage(&jsonrpc.Request{ID: mustID(t, 1), Method: "ping"})
	require.NoError(t, err)

	req := newReq("POST", "/mcp")
	req.Headers.Set("Content-Type", "application/json")
	req.Body = pingBody

	resp := endpoint.Handle(&httpserver.Context{Ctx: context.Background(), Request: req})
	require.Equal(t, 400, resp.Status)
}

func TestEndpoint_DeleteTerminatesSession(t *testing.T) {
	store := NewMemorySessionStore()
	endpoint := NewEndpoint(NewDispatcher(), store, DefaultEndpointConfig())
	sess, err := store.Create(time.Minute)
	require.NoError(t, err)

	req := newReq("DELETE", "/mcp")
	req.Headers.Set(SessionHeader, sess.ID)
	resp := endpoint.Handle(&httpserver.Context{Ctx: context.Background(), Request: req})
	require.Equal(t, 204, resp.Status)

	_, ok := store.Get(sess.ID)
	require.False(t, ok)
}

func TestEndpoint_OptionsCORSPreflight(t *testing.T) {
	endpoint := NewEndpoint(NewDispatcher(), NewMemorySessionStore(), DefaultEndpointConfig())
	endpoint.cfg.CORSOrigin = "https://example.com"

	resp := endpoint.Handle(&httpserver.Context{Ctx: context.Background(), Request: newReq("OPTIONS", "/mcp")})
	require.Equal(t, 204, resp.Status)
	origin, ok := resp.Headers.Get("Access-Control-Allow-Origin")
	require.True(t, ok)
	require.Equal(t, "https://example.com", origin)
}

func mustID(t *testing.T, v any) jsonrpc.ID {
	t.Helper()
	id, err := jsonrpc.MakeID(v)
	require.NoError(t, err)
	return id
}
