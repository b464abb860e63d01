// Package sentinelcore is the small embeddable public API: construct a
// Server from functional options, register routes, and call Serve. It
// wires internal/reactor, internal/httpserver, internal/middleware,
// internal/auth, and internal/workerpool together without exposing their
// internals, collapsed into one importable package for embedders who
// don't want the sentinelcored binary.
package sentinelcore

import (
	"context"
	"log/slog"

	"github.com/sentinelcore/sentinelcore/internal/auth"
	"github.com/sentinelcore/sentinelcore/internal/httpserver"
	"github.com/sentinelcore/sentinelcore/internal/middleware"
	"github.com/sentinelcore/sentinelcore/internal/reactor"
	"github.com/sentinelcore/sentinelcore/internal/telemetry"
	"github.com/sentinelcore/sentinelcore/internal/workerpool"
)

// Server is an embeddable reactor-driven HTTP server: build one with New,
// register routes via Handle, then call Serve.
type Server struct {
	router *httpserver.Router
	cfg    httpserver.Config
	stages []middleware.Stage
	pool   *workerpool.Pool
	srv    *httpserver.Server

	auth        *auth.Chain
	protected   func(path, method string) bool
	proxyCfg    middleware.ProxyConfig
	compress    *middleware.Registry
	tracer      *telemetry.Provider
	useCompress bool
}

// Option configures a Server at construction.
type Option func(*Server)

// WithAddr sets the listen address (default "127.0.0.1:8080").
func WithAddr(addr string) Option {
	return func(s *Server) { s.cfg.Addr = addr }
}

// WithLogger sets the *slog.Logger used throughout the reactor and HTTP
// engine.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.cfg.Logger = logger }
}

// WithLimits overrides the HTTP engine's resource limits.
func WithLimits(limits httpserver.Limits) Option {
	return func(s *Server) { s.cfg.Limits = limits }
}

// WithWorkerPool enables async handler offload: once set, every request's
// handler invocation is submitted to pool instead of running inline on
// the reactor thread.
func WithWorkerPool(pool *workerpool.Pool) Option {
	return func(s *Server) { s.pool = pool }
}

// WithAuth wires an authentication chain; protected reports which
// (path, method) pairs require a verified Principal.
func WithAuth(chain *auth.Chain, protected func(path, method string) bool) Option {
	return func(s *Server) {
		s.auth = chain
		s.protected = protected
	}
}

// WithProxyTrust configures how forwarded-for headers are trusted.
func WithProxyTrust(cfg middleware.ProxyConfig) Option {
	return func(s *Server) { s.proxyCfg = cfg }
}

// WithCompression turns on negotiated gzip/deflate response compression.
func WithCompression(reg *middleware.Registry) Option {
	return func(s *Server) {
		s.compress = reg
		s.useCompress = true
	}
}

// WithTelemetry wires a tracing Provider into every request.
func WithTelemetry(tracer *telemetry.Provider) Option {
	return func(s *Server) { s.tracer = tracer }
}

// WithStages appends additional middleware stages, applied outermost
// first after the built-in ones.
func WithStages(stages ...middleware.Stage) Option {
	return func(s *Server) { s.stages = append(s.stages, stages...) }
}

// New builds a Server. Call Handle to register routes before Serve.
func New(opts ...Option) *Server {
	s := &Server{
		router: httpserver.NewRouter(),
		cfg:    httpserver.DefaultConfig(),
	}
	s.cfg.Addr = "127.0.0.1:8080"
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer, _ = telemetry.New(telemetry.Config{})
	}
	return s
}

// Handle registers a route on the embedded router. method "*" matches any
// method.
func (s *Server) Handle(method, path string, handler httpserver.HandlerFunc) {
	s.router.Handle(method, path, handler)
}

// Router exposes the underlying router for advanced registration (e.g.
// mounting an *mcp.Endpoint's Handle method).
func (s *Server) Router() *httpserver.Router {
	return s.router
}

// buildChain composes the middleware stack around the router's Dispatch,
// outermost first: trace -> proxy normalization -> auth -> compression ->
// caller-supplied stages -> router.
func (s *Server) buildChain() httpserver.HandlerFunc {
	stages := []middleware.Stage{middleware.Trace(s.tracer), middleware.NormalizeProxyHeaders(s.proxyCfg)}
	if s.auth != nil {
		stages = append(stages, middleware.Authenticate(s.auth, s.protected))
	}
	if s.useCompress {
		if s.compress == nil {
			s.compress = middleware.NewRegistry()
		}
		stages = append(stages, middleware.Compress(s.compress))
	}
	stages = append(stages, s.stages...)
	return middleware.Chain(s.router.Dispatch, stages...)
}

// Serve binds the listener and runs the reactor loop until ctx is
// cancelled, performing a graceful drain bounded by cfg.DrainDeadline.
func (s *Server) Serve(ctx context.Context) error {
	handler := s.buildChain()
	var submitter httpserver.Submitter
	if s.pool != nil {
		submitter = s.pool
	}
	s.srv = httpserver.New(s.cfg, handler, submitter)
	return s.srv.Serve(ctx)
}

// Addr returns the address Serve bound to. Valid only after Serve has
// started; used by tests that bind an ephemeral port ("127.0.0.1:0").
func (s *Server) Addr() reactor.Address {
	return s.srv.Addr()
}
