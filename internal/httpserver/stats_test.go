package httpserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServer_StatsReflectsLiveConnection(t *testing.T) {
	handler := func(ctx *Context) *Response { return NewResponse(200, nil) }

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

	empty := srv.Stats()
	require.Equal(t, 0, empty.Connections)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return srv.Stats().Connections == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestServer_StatsRejectedConnectionsWhenAtCapacity(t *testing.T) {
	handler := func(ctx *Context) *Response { return NewResponse(200, nil) }

	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.PollTimeout = 20 * time.Millisecond
	cfg.MaxConnections = 1
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

	first, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer first.Close()

	require.Eventually(t, func() bool {
		return srv.Stats().Connections == 1
	}, time.Second, 5*time.Millisecond)

	second, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer second.Close()

	require.Eventually(t, func() bool {
		return srv.Stats().RejectedConnections == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
