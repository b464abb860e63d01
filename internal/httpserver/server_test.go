package httpserver

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServer_KeepAliveRoundTrip(t *testing.T) {
	handler := func(ctx *Context) *Response {
		return NewResponse(200, []byte("hi:"+ctx.Request.Path))
	}

	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.PollTimeout = 20 * time.Millisecond
	srv := New(cfg, handler, nil)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		go func() {
			for srv.listener == nil {
				time.Sleep(time.Millisecond)
			}
			close(started)
		}()
		done <- srv.Serve(ctx)
	}()
	<-started

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /one HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "HTTP/1.1 200"))

	for {
		l, err := r.ReadString('\n')
		require.NoError(t, err)
		if l == "\r\n" {
			break
		}
	}
	body := make([]byte, len("hi:/one"))
	_, err = r.Read(body)
	require.NoError(t, err)
	require.Equal(t, "hi:/one", string(body))

	_, err = conn.Write([]byte("GET /two HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)
	line2, err := r.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line2, "HTTP/1.1 200"))

	cancel()
	require.NoError(t, <-done)
}
