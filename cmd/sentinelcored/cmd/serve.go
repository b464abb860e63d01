package cmd

import (
	"context"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentinelcore/sentinelcore/internal/admin"
	sentinelauth "github.com/sentinelcore/sentinelcore/internal/auth"
	"github.com/sentinelcore/sentinelcore/internal/config"
	"github.com/sentinelcore/sentinelcore/internal/httpserver"
	"github.com/sentinelcore/sentinelcore/internal/mcp"
	"github.com/sentinelcore/sentinelcore/internal/metrics"
	"github.com/sentinelcore/sentinelcore/internal/middleware"
	"github.com/sentinelcore/sentinelcore/internal/telemetry"
	"github.com/sentinelcore/sentinelcore/internal/workerpool"
)

var devMode bool
var mcpConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the SentinelCore reactor and HTTP server",
	Long: `Start the SentinelCore reactor: bind the configured listener, run the
single-threaded event loop, and serve HTTP/1.1 plus, when --mcp-config is
given, a JSON-RPC 2.0 / MCP Streamable HTTP endpoint at /mcp.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging, permissive auth defaults)")
	serveCmd.Flags().StringVar(&mcpConfigPath, "mcp-config", "", "path to the MCP transport config (flat JSON, see spec)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	tracer, err := telemetry.New(telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Exporter:    cfg.Telemetry.Exporter,
		ServiceName: "sentinelcored",
	})
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer tracer.Shutdown(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	router := httpserver.NewRouter()
	router.Handle("GET", "/healthz", handleHealthz)

	var pool *workerpool.Pool
	if cfg.WorkerPool.Enabled {
		pool = workerpool.New(workerpool.Config{
			Workers:    cfg.WorkerPool.Workers,
			QueueDepth: cfg.WorkerPool.QueueDepth,
			Logger:     logger,
		})
		defer pool.Shutdown()
	}

	store := sentinelauth.NewMemoryStore()
	keys := make([]sentinelauth.KeySeed, 0, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		keys = append(keys, sentinelauth.KeySeed{KeyHash: k.KeyHash, IdentityID: k.IdentityID})
	}
	sentinelauth.SeedMemoryStore(store, keys)
	chain := &sentinelauth.Chain{Strategies: []sentinelauth.Strategy{
		&sentinelauth.BearerStrategy{Store: store},
		&sentinelauth.APIKeyStrategy{Store: store},
		&sentinelauth.BasicStrategy{Store: store},
	}}

	guard, err := middleware.NewRouteGuard()
	if err != nil {
		return fmt.Errorf("failed to init route guard: %w", err)
	}
	programs := make(middleware.RoutePrograms, len(cfg.Middleware.RouteGuards))
	protectedPaths := make(map[string]struct{}, len(cfg.Middleware.RouteGuards))
	for _, rg := range cfg.Middleware.RouteGuards {
		prg, cerr := guard.Compile(rg.CEL)
		if cerr != nil {
			return fmt.Errorf("failed to compile route guard for %s %s: %w", rg.Method, rg.Path, cerr)
		}
		programs[middleware.RouteKey(rg.Method, rg.Path)] = prg
		protectedPaths[rg.Path] = struct{}{}
	}
	protected := func(path, method string) bool {
		_, ok := protectedPaths[path]
		return ok
	}

	var mcpEndpoint *mcp.Endpoint
	if mcpConfigPath != "" {
		mcpCfg, merr := config.LoadMCPConfig(mcpConfigPath)
		if merr != nil {
			return fmt.Errorf("failed to load MCP config: %w", merr)
		}
		sessions := mcp.NewMemorySessionStore()
		sessions.StartCleanup(ctx, time.Minute)
		defer sessions.Stop()

		dispatcher := mcp.NewDispatcher()
		mcpEndpoint = mcp.NewEndpoint(dispatcher, sessions, mcp.EndpointConfig{
			SessionTimeout:     time.Duration(mcpCfg.SessionTimeoutSecs) * time.Second,
			MaxMessageSize:     mcpCfg.MaxMessageSize,
			CORSOrigin:         mcpCfg.CORSOrigin,
			EnableResumability: mcpCfg.EnableResumability,
			Tracer:             tracer,
		})
		router.Handle("*", mcpCfg.Endpoint, mcpEndpoint.Handle)
		logger.Info("mcp endpoint mounted", "path", mcpCfg.Endpoint, "transport", mcpCfg.Transport)
	}

	proxyPolicy := middleware.TrustNone
	switch cfg.Middleware.ProxyTrust {
	case "all":
		proxyPolicy = middleware.TrustAll
	case "specific":
		proxyPolicy = middleware.TrustSpecificIPs
	}

	stages := []middleware.Stage{
		middleware.AccessLog(logger),
		middleware.Trace(tracer),
		middleware.NormalizeProxyHeaders(middleware.ProxyConfig{
			Policy:         proxyPolicy,
			TrustedProxies: cfg.Middleware.TrustedProxies,
		}),
		middleware.Authenticate(chain, protected),
		middleware.GuardRoutes(guard, programs),
	}
	if cfg.Middleware.CompressionEnabled {
		stages = append(stages, middleware.Compress(middleware.NewRegistry()))
	}
	handler := middleware.Chain(router.Dispatch, stages...)

	pollTimeout, ptErr := time.ParseDuration(cfg.Server.PollTimeout)
	if ptErr != nil {
		pollTimeout = 100 * time.Millisecond
	}
	drainDeadline, ddErr := time.ParseDuration(cfg.Server.DrainDeadline)
	if ddErr != nil {
		drainDeadline = 10 * time.Second
	}
	idleTimeout, itErr := time.ParseDuration(cfg.Server.IdleTimeout)
	if itErr != nil {
		idleTimeout = 2 * time.Minute
	}

	srvCfg := httpserver.Config{
		Addr:           cfg.Server.Addr,
		Backlog:        cfg.Server.Backlog,
		PollTimeout:    pollTimeout,
		DrainDeadline:  drainDeadline,
		IdleTimeout:    idleTimeout,
		MaxConnections: cfg.Server.MaxConnections,
		Limits:         httpserver.DefaultLimits,
		Logger:         logger,
	}
	var submitter httpserver.Submitter
	if pool != nil {
		submitter = pool
	}
	server := httpserver.New(srvCfg, handler, submitter)

	router.Handle("GET", "/debug/reactor", admin.NewDebugReactorHandler(server, poolStatter(pool)))

	var metricsSrv *stdhttp.Server
	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector(server, poolStatter(pool))
		mux := stdhttp.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(collector))
		metricsSrv = &stdhttp.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("metrics listening", "addr", cfg.Metrics.Addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("sentinelcored starting",
		"version", Version,
		"addr", cfg.Server.Addr,
		"dev_mode", cfg.DevMode,
		"worker_pool", cfg.WorkerPool.Enabled,
		"mcp", mcpEndpoint != nil,
	)

	if err := server.Serve(ctx); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	logger.Info("sentinelcored stopped")
	return nil
}

func handleHealthz(ctx *httpserver.Context) *httpserver.Response {
	resp := httpserver.NewResponse(200, []byte(`{"status":"ok"}`))
	resp.Headers.Set("Content-Type", "application/json")
	return resp
}

// poolStatter adapts a possibly-nil *workerpool.Pool to the
// admin/metrics PoolStatter interface without a typed-nil interface
// value leaking through (a nil *Pool inside a non-nil interface would
// compare != nil and then panic on Rejected()).
func poolStatter(pool *workerpool.Pool) interface {
	Rejected() int64
} {
	if pool == nil {
		return nil
	}
	return pool
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
