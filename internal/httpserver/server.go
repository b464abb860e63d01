package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sentinelcore/sentinelcore/internal/reactor"
)

// Config bounds the HTTP engine's resource and timing surface, per the
// configuration fields named in spec §6.
type Config struct {
	Addr           string
	Backlog        int
	PollTimeout    time.Duration
	DrainDeadline  time.Duration
	IdleTimeout    time.Duration
	MaxConnections int // soft target, ~10000 by default
	Limits         Limits
	Logger         *slog.Logger
}

// DefaultConfig matches the defaults named in spec §6.
func DefaultConfig() Config {
	return Config{
		Backlog:        reactor.DefaultBacklog,
		PollTimeout:    reactor.DefaultPollTimeout,
		DrainDeadline:  10 * time.Second,
		IdleTimeout:    2 * time.Minute,
		MaxConnections: 10000,
		Limits:         DefaultLimits,
		Logger:         slog.Default(),
	}
}

// Submitter hands a unit of work to an external worker pool. Whenever a
// Server is constructed with a non-nil Submitter, every request's handler
// invocation is submitted to it instead of running inline on the reactor
// thread. Implemented by internal/workerpool.
type Submitter interface {
	// Submit enqueues work for async execution, returning false when the
	// pool cannot accept it (draining or backlog full); the caller must
	// then answer synchronously with 503.
	Submit(task func() *Response, complete func(*Response)) bool
	// Drain invokes every completed task's callback. Called only from
	// the reactor thread, via Reactor.OnWake.
	Drain()
}

// Server ties the reactor, the connection state machine, and the HTTP
// protocol engine together, implementing the data/control flow of spec §2:
// accept -> read -> parse -> handler (reactor thread or worker pool) ->
// response -> write -> keep-alive or close.
type Server struct {
	cfg      Config
	handler  HandlerFunc
	pool     Submitter
	reactor  *reactor.Reactor
	registry *reactor.Registry
	listener *reactor.Listener

	rejectedConnections int64
	oversizeRejections  int64
}

type connProto struct {
	limits            Limits
	keepAlive         bool
	processingAsync   bool
	pendingStream     StreamProducer
	pendingSSE        bool
	pendingTrailers   Header
	version           string
	lastActive        time.Time
}

// New creates a Server bound to addr. handler runs after the middleware
// chain has been applied by the caller (middleware wraps handler before
// it reaches Server, keeping this package free of a dependency on the
// middleware package).
func New(cfg Config, handler HandlerFunc, pool Submitter) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg, handler: handler, pool: pool, registry: reactor.NewRegistry()}
}

// Serve binds the listener, registers it with a fresh reactor, and runs
// the reactor loop until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr, err := reactor.ParseAddress(s.cfg.Addr)
	if err != nil {
		return err
	}
	ln, err := reactor.Listen(addr, reactor.SockStream, s.cfg.Backlog)
	if err != nil {
		return err
	}
	s.listener = ln

	r, err := reactor.New(reactor.WithLogger(s.cfg.Logger), reactor.WithPollTimeout(s.cfg.PollTimeout))
	if err != nil {
		ln.Close()
		return err
	}
	s.reactor = r

	if s.pool != nil {
		r.OnWake(s.pool.Drain)
		if waker, ok := s.pool.(interface{ SetWaker(func()) }); ok {
			waker.SetWaker(r.Wake)
		}
	}

	if err := r.Register(ln.FD(), reactor.InterestReadable, s.acceptLoop); err != nil {
		r.Close()
		ln.Close()
		return err
	}

	stopped := make(chan struct{})
	go func() {
		<-ctx.Done()
		r.Stop()
		close(stopped)
	}()

	runErr := r.Run(s.housekeeping, s.cfg.DrainDeadline)
	<-stopped
	r.Close()
	ln.Close()
	return runErr
}

// Addr returns the bound listener address. Valid after Serve has started.
func (s *Server) Addr() reactor.Address {
	return s.listener.Addr()
}

// Stats reports a point-in-time snapshot of the connection registry and
// rejection counters, for the /debug/reactor introspection endpoint.
type Stats struct {
	Connections         int
	RejectedConnections int64
	OversizeRejections  int64
	StateHistogram      map[string]int
}

// Stats returns a snapshot of the live connection registry. Safe to call
// concurrently with the reactor loop; Each enumerates the registry under
// its own lock but reads connection state without synchronizing against
// in-flight mutation, so counts are approximate.
func (s *Server) Stats() Stats {
	out := Stats{StateHistogram: map[string]int{}}
	if s.registry == nil {
		return out
	}
	out.Connections = s.registry.Len()
	out.RejectedConnections = s.rejectedConnections
	out.OversizeRejections = s.oversizeRejections
	s.registry.Each(func(conn *reactor.Connection) {
		for name, flag := range reactor.StateNames {
			if conn.State().Has(flag) {
				out.StateHistogram[name]++
			}
		}
	})
	return out
}

func (s *Server) acceptLoop(fd int, ev reactor.ReadyEvent) {
	for {
		sock, peer, wouldBlock, err := s.listener.Accept()
		if wouldBlock {
			return
		}
		if err != nil {
			s.cfg.Logger.Warn("accept error", "err", err)
			return
		}

		if s.registry.Len() >= s.cfg.MaxConnections {
			s.rejectedConnections++
			sock.Close()
			continue
		}

		conn := reactor.NewConnection(reactor.Handle{}, sock, peer)
		conn.Proto = &connProto{limits: s.cfg.Limits, keepAlive: true, lastActive: time.Now(), version: "HTTP/1.1"}
		handle := s.registry.Add(conn)

		cfd := sock.FD()
		if err := s.reactor.Register(cfd, reactor.InterestReadable, func(fd int, ev reactor.ReadyEvent) {
			s.handleConnEvent(handle, ev)
		}); err != nil {
			s.registry.Remove(handle)
			sock.Close()
		}
	}
}

func (s *Server) handleConnEvent(h reactor.Handle, ev reactor.ReadyEvent) {
	conn, ok := s.registry.Get(h)
	if !ok {
		return
	}
	proto := conn.Proto.(*connProto)
	proto.lastActive = time.Now()

	if ev.Readable {
		conn.SetState(conn.State().Without(reactor.StateIdle).With(reactor.StateReading))
		s.handleReadable(conn, proto)
		if conn.State().Has(reactor.StateClosed) {
			return
		}
	}
	if ev.Writable || len(conn.WriteBuf) > 0 {
		s.flushWrite(conn, proto)
	}
}

func (s *Server) handleReadable(conn *reactor.Connection, proto *connProto) {
	sock := conn.Socket()
	buf := make([]byte, 65536)
	for {
		n, wouldBlock, err := sock.Read(buf)
		if wouldBlock {
			break
		}
		if err != nil || n == 0 {
			s.closeConnection(conn)
			return
		}
		conn.ReadBuf = append(conn.ReadBuf, buf[:n]...)
	}

	s.processBuffered(conn, proto)
}

// processBuffered parses and dispatches as many complete requests as are
// buffered, honoring the worker-pool ordering rule: it never starts a
// second request while a ProcessingAsync for the first is outstanding.
func (s *Server) processBuffered(conn *reactor.Connection, proto *connProto) {
	for {
		if proto.processingAsync || conn.State().Has(reactor.StateClosed) {
			return
		}
		result, err := Parse(conn.ReadBuf, proto.limits)
		if errors.Is(err, ErrIncomplete) {
			return
		}
		if err != nil {
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				if statusErr.Status == 413 {
					s.oversizeRejections++
				}
				s.writeOneShotError(conn, proto, statusErr)
			}
			s.closeConnection(conn)
			return
		}

		conn.ReadBuf = conn.ReadBuf[result.Consumed:]
		req := result.Request
		req.PeerAddr = conn.Peer()
		proto.keepAlive = keepAliveFor(req)
		proto.version = "HTTP/1.1"

		conn.SetState(conn.State().Without(reactor.StateReading).With(reactor.StateProcessing))

		ctx := NewContext(context.Background(), req, s.cfg.Logger)

		if s.pool != nil {
			proto.processingAsync = true
			conn.SetState(conn.State().Without(reactor.StateProcessing).With(reactor.StateProcessingAsync))
			accepted := s.pool.Submit(func() *Response { return s.safeHandle(ctx) }, func(resp *Response) {
				proto.processingAsync = false
				conn.SetState(conn.State().Without(reactor.StateProcessingAsync).With(reactor.StateResponding))
				s.writeResponse(conn, proto, resp)
				s.processBuffered(conn, proto)
			})
			if !accepted {
				proto.processingAsync = false
				conn.SetState(conn.State().Without(reactor.StateProcessingAsync).With(reactor.StateResponding))
				resp := NewResponse(503, []byte("service unavailable"))
				resp.Headers.Set("Content-Type", "text/plain; charset=utf-8")
				s.writeResponse(conn, proto, resp)
				continue
			}
			return
		}

		resp := s.safeHandle(ctx)
		conn.SetState(conn.State().Without(reactor.StateProcessing).With(reactor.StateResponding))
		s.writeResponse(conn, proto, resp)
		if conn.State().Has(reactor.StateClosed) {
			return
		}
	}
}

func (s *Server) safeHandle(ctx *Context) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			s.cfg.Logger.Error("handler panic", "panic", r)
			resp = NewResponse(500, []byte("internal server error"))
		}
	}()
	return s.handler(ctx)
}

func keepAliveFor(req *Request) bool {
	if req.Version == "HTTP/1.0" {
		return false
	}
	if conn, ok := req.Headers.Get("Connection"); ok && equalFoldTrim(conn, "close") {
		return false
	}
	return true
}

func equalFoldTrim(s, target string) bool {
	i, j := 0, len(s)
	for i < j && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	for j > i && (s[j-1] == ' ' || s[j-1] == '\t') {
		j--
	}
	s = s[i:j]
	if len(s) != len(target) {
		return false
	}
	for k := 0; k < len(s); k++ {
		a, b := s[k], target[k]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}

func (s *Server) writeOneShotError(conn *reactor.Connection, proto *connProto, statusErr *StatusError) {
	resp := NewResponse(statusErr.Status, []byte(statusErr.Message))
	resp.Headers.Set("Content-Type", "text/plain; charset=utf-8")
	conn.WriteBuf = append(conn.WriteBuf, Serialize(resp, proto.version)...)
	s.flushWrite(conn, proto)
}

func (s *Server) writeResponse(conn *reactor.Connection, proto *connProto, resp *Response) {
	if resp == nil {
		return
	}
	conn.SetState(conn.State().With(reactor.StateResponding).With(reactor.StateSendingHeaders))
	if resp.Streaming || resp.SSE {
		resp.Headers.Set("Connection", "keep-alive")
		conn.WriteBuf = append(conn.WriteBuf, Serialize(resp, proto.version)...)
		proto.pendingStream = resp.Stream
		proto.pendingSSE = resp.SSE
		if resp.HasTrailers {
			proto.pendingTrailers = resp.Trailers
		}
		proto.keepAlive = true
		conn.SetState(conn.State().With(reactor.StateSendingBody))
		s.pumpStream(conn, proto)
		return
	}

	if !proto.keepAlive {
		resp.Headers.Set("Connection", "close")
	}
	conn.WriteBuf = append(conn.WriteBuf, Serialize(resp, proto.version)...)
	conn.SetState(conn.State().With(reactor.StateSendingBody))
	s.flushWrite(conn, proto)
}

func (s *Server) pumpStream(conn *reactor.Connection, proto *connProto) {
	if proto.pendingStream == nil {
		return
	}
	chunk, err := proto.pendingStream()
	if err != nil || len(chunk) == 0 {
		conn.WriteBuf = append(conn.WriteBuf, FinalChunk(proto.pendingTrailers)...)
		proto.pendingStream = nil
		s.flushWrite(conn, proto)
		return
	}
	conn.WriteBuf = append(conn.WriteBuf, ChunkFrame(chunk)...)
	s.flushWrite(conn, proto)
}

func (s *Server) flushWrite(conn *reactor.Connection, proto *connProto) {
	sock := conn.Socket()
	for len(conn.WriteBuf) > 0 {
		n, wouldBlock, err := sock.Write(conn.WriteBuf)
		if wouldBlock {
			_ = s.reactor.Modify(sock.FD(), reactor.InterestReadable|reactor.InterestWritable)
			return
		}
		if err != nil {
			s.closeConnection(conn)
			return
		}
		conn.WriteBuf = conn.WriteBuf[n:]
	}

	_ = s.reactor.Modify(sock.FD(), reactor.InterestReadable)

	if proto.pendingStream != nil {
		s.pumpStream(conn, proto)
		return
	}

	if !proto.keepAlive {
		conn.SetState(conn.State().With(reactor.StateClosing))
		s.closeConnection(conn)
		return
	}

	if proto.processingAsync {
		// A pipelined follow-up request is already outstanding on the
		// worker pool; stay out of Idle until its response also drains.
		conn.SetState(conn.State().Without(reactor.StateResponding).Without(reactor.StateSendingHeaders).Without(reactor.StateSendingBody))
		return
	}

	conn.SetState(reactor.StateSet(reactor.StateIdle))
	proto.pendingSSE = false
	proto.pendingTrailers = nil
}

// closeConnection observes Closing, tears the connection down, then marks
// Closed -- synchronously, since the reactor thread is the sole writer of
// both the socket and the connection's StateSet.
func (s *Server) closeConnection(conn *reactor.Connection) {
	conn.SetState(conn.State().With(reactor.StateClosing))
	fd := conn.Socket().FD()
	_ = s.reactor.Unregister(fd)
	conn.Socket().Close()
	conn.SetState(reactor.StateSet(reactor.StateClosed))
	s.registry.Remove(conn.Handle)
}

// housekeeping sweeps idle connections once per poll tick, bounded by the
// reactor's poll timeout.
func (s *Server) housekeeping() {
	if s.cfg.IdleTimeout <= 0 {
		return
	}
	now := time.Now()
	s.registry.Each(func(conn *reactor.Connection) {
		proto, ok := conn.Proto.(*connProto)
		if !ok || proto.processingAsync {
			return
		}
		if now.Sub(proto.lastActive) > s.cfg.IdleTimeout {
			s.closeConnection(conn)
		}
	})
}
