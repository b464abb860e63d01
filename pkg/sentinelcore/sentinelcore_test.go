package sentinelcore

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentinelcore/sentinelcore/internal/httpserver"
	"github.com/sentinelcore/sentinelcore/internal/workerpool"
)

func TestServer_ServeAndRespond(t *testing.T) {
	s := New(WithAddr("127.0.0.1:0"))
	s.Handle("GET", "/ping", func(ctx *httpserver.Context) *httpserver.Response {
		return httpserver.NewResponse(200, []byte("pong"))
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	require.Eventually(t, func() bool {
		return s.Addr().Port != 0
	}, time.Second, time.Millisecond)

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	_, err = conn.Write([]byte("GET /ping HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "HTTP/1.1 200"))
	conn.Close()

	cancel()
	require.NoError(t, <-done)
}

// TestServer_WorkerPoolOffloadsHandlerInvocation exercises the full
// submit -> complete -> Drain path end to end. /slow blocks until
// released; while it's outstanding, a second connection hits /fast on
// the same single-threaded reactor. If handlers ran inline on the
// reactor thread, /fast could not be served until /slow's handler
// returned -- so /fast responding first proves the reactor offloaded
// /slow's invocation to the pool instead of running it inline.
func TestServer_WorkerPoolOffloadsHandlerInvocation(t *testing.T) {
	pool := workerpool.New(workerpool.Config{Workers: 2, QueueDepth: 8})
	defer pool.Shutdown()

	release := make(chan struct{})
	entered := make(chan struct{})

	s := New(WithAddr("127.0.0.1:0"), WithWorkerPool(pool))
	s.Handle("GET", "/slow", func(ctx *httpserver.Context) *httpserver.Response {
		close(entered)
		<-release
		return httpserver.NewResponse(200, []byte("slow-done"))
	})
	s.Handle("GET", "/fast", func(ctx *httpserver.Context) *httpserver.Response {
		return httpserver.NewResponse(200, []byte("fast-done"))
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	require.Eventually(t, func() bool { return s.Addr().Port != 0 }, time.Second, time.Millisecond)

	slowConn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer slowConn.Close()
	_, err = slowConn.Write([]byte("GET /slow HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("/slow handler never started; submit->complete->Drain path did not fire")
	}

	fastConn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer fastConn.Close()
	_, err = fastConn.Write([]byte("GET /fast HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)
	fastConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(fastConn).ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "HTTP/1.1 200"))

	close(release)
	slowConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	slowLine, err := bufio.NewReader(slowConn).ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(slowLine, "HTTP/1.1 200"))
}

func TestServer_HandleRegistersRoute(t *testing.T) {
	s := New()
	called := false
	s.Handle("GET", "/x", func(ctx *httpserver.Context) *httpserver.Response {
		called = true
		return httpserver.NewResponse(204, nil)
	})
	route, known, _ := s.Router().Find("GET", "/x")
	require.True(t, known)
	require.NotNil(t, route)
	route.Handler(&httpserver.Context{Request: &httpserver.Request{}})
	require.True(t, called)
}
