// Package config provides the configuration schema for SentinelCore: a
// single YAML/env-driven Config for the reactor, HTTP engine, auth,
// worker pool, middleware, and telemetry subsystems, plus a separate
// flat-JSON loader for the MCP transport document (see mcpconfig.go).
package config

import (
	"github.com/spf13/viper"
)

// Config is the top-level configuration for sentinelcored.
type Config struct {
	// Server configures the reactor-driven HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Auth configures file-based identities and API keys used by
	// internal/auth's Chain.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// WorkerPool configures the optional async-handler worker pool.
	WorkerPool WorkerPoolConfig `yaml:"worker_pool" mapstructure:"worker_pool"`

	// Middleware configures proxy-header trust, compression, and
	// CEL-based route protection.
	Middleware MiddlewareConfig `yaml:"middleware" mapstructure:"middleware"`

	// Telemetry configures OpenTelemetry tracing export.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// Metrics configures the Prometheus /metrics endpoint.
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	// DevMode relaxes defaults (permissive auth, debug logging) for local
	// development.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the reactor and HTTP protocol engine.
type ServerConfig struct {
	// Addr is the listen address (e.g. "127.0.0.1:8080").
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`

	// Backlog is the listen(2) backlog size.
	Backlog int `yaml:"backlog" mapstructure:"backlog" validate:"omitempty,min=1"`

	// PollTimeout bounds how long one reactor poll tick blocks (e.g. "100ms").
	PollTimeout string `yaml:"poll_timeout" mapstructure:"poll_timeout" validate:"omitempty"`

	// DrainDeadline bounds graceful shutdown while ProcessingAsync
	// connections finish (e.g. "10s").
	DrainDeadline string `yaml:"drain_deadline" mapstructure:"drain_deadline" validate:"omitempty"`

	// IdleTimeout closes connections idle for longer than this (e.g. "2m").
	IdleTimeout string `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"omitempty"`

	// MaxConnections is the soft cap on concurrently registered connections.
	MaxConnections int `yaml:"max_connections" mapstructure:"max_connections" validate:"omitempty,min=1"`

	// LogLevel sets the minimum slog level.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// AuthConfig configures file-based identities and API keys, so a
// deployer can express an access model without a database.
type AuthConfig struct {
	// Identities defines known callers and their roles.
	Identities []IdentityConfig `yaml:"identities" mapstructure:"identities" validate:"omitempty,dive"`

	// APIKeys maps hashed credentials to an identity.
	APIKeys []APIKeyConfig `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`

	// BasicRealm is the WWW-Authenticate realm advertised for Basic auth.
	BasicRealm string `yaml:"basic_realm" mapstructure:"basic_realm"`
}

// IdentityConfig defines a file-based identity.
type IdentityConfig struct {
	ID    string   `yaml:"id" mapstructure:"id" validate:"required"`
	Name  string   `yaml:"name" mapstructure:"name" validate:"required"`
	Roles []string `yaml:"roles" mapstructure:"roles" validate:"required,min=1"`
}

// APIKeyConfig defines an API key credential, stored as a hash in one of
// the forms internal/auth.DetectHashType recognizes: a "sha256:"-prefixed
// or bare 64-character hex SHA-256 digest, or a "$argon2id$" PHC string.
type APIKeyConfig struct {
	KeyHash    string `yaml:"key_hash" mapstructure:"key_hash" validate:"required"`
	IdentityID string `yaml:"identity_id" mapstructure:"identity_id" validate:"required"`
}

// WorkerPoolConfig configures internal/workerpool.
type WorkerPoolConfig struct {
	Enabled    bool `yaml:"enabled" mapstructure:"enabled"`
	Workers    int  `yaml:"workers" mapstructure:"workers" validate:"omitempty,min=1"`
	QueueDepth int  `yaml:"queue_depth" mapstructure:"queue_depth" validate:"omitempty,min=1"`
}

// MiddlewareConfig configures internal/middleware's proxy-header
// trust policy, compression, and CEL route guards.
type MiddlewareConfig struct {
	// ProxyTrust is one of "none", "all", "specific".
	ProxyTrust string `yaml:"proxy_trust" mapstructure:"proxy_trust" validate:"omitempty,oneof=none all specific"`

	// TrustedProxies lists CIDRs or bare IPs trusted when ProxyTrust is
	// "specific".
	TrustedProxies []string `yaml:"trusted_proxies" mapstructure:"trusted_proxies"`

	// CompressionEnabled turns on the gzip/deflate response codec.
	CompressionEnabled bool `yaml:"compression_enabled" mapstructure:"compression_enabled"`

	// RouteGuards are CEL-protected routes, a policy engine applied as
	// an HTTP middleware chain stage.
	RouteGuards []RouteGuardConfig `yaml:"route_guards" mapstructure:"route_guards" validate:"omitempty,dive"`
}

// RouteGuardConfig binds a CEL expression to a (method, path) route.
type RouteGuardConfig struct {
	Method string `yaml:"method" mapstructure:"method" validate:"required"`
	Path   string `yaml:"path" mapstructure:"path" validate:"required"`
	CEL    string `yaml:"cel" mapstructure:"cel" validate:"required"`
}

// TelemetryConfig configures OpenTelemetry tracing export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Exporter string `yaml:"exporter" mapstructure:"exporter" validate:"omitempty,oneof=stdout otlp none"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
}

// MetricsConfig configures the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr    string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// SetDefaults fills unset fields with sentinelcored's defaults.
func (c *Config) SetDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
	if c.Server.Backlog == 0 {
		c.Server.Backlog = 1024
	}
	if c.Server.PollTimeout == "" {
		c.Server.PollTimeout = "100ms"
	}
	if c.Server.DrainDeadline == "" {
		c.Server.DrainDeadline = "10s"
	}
	if c.Server.IdleTimeout == "" {
		c.Server.IdleTimeout = "2m"
	}
	if c.Server.MaxConnections == 0 {
		c.Server.MaxConnections = 10000
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.WorkerPool.Workers == 0 {
		c.WorkerPool.Workers = 4
	}
	if c.WorkerPool.QueueDepth == 0 {
		c.WorkerPool.QueueDepth = 1024
	}

	if c.Middleware.ProxyTrust == "" {
		c.Middleware.ProxyTrust = "none"
	}
	if c.Auth.BasicRealm == "" {
		c.Auth.BasicRealm = "sentinelcore"
	}

	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = "none"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = "127.0.0.1:9090"
	}
}

// SetDevDefaults applies permissive defaults for local development, run
// before validation so minimal configs (or none at all) still pass.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if c.Server.LogLevel == "info" {
		c.Server.LogLevel = "debug"
	}
	if len(c.Auth.Identities) == 0 && len(c.Auth.APIKeys) == 0 {
		c.Auth.Identities = []IdentityConfig{{ID: "dev", Name: "Development", Roles: []string{"admin"}}}
	}
	if !viper.IsSet("telemetry.exporter") && c.Telemetry.Exporter == "none" {
		c.Telemetry.Exporter = "stdout"
		c.Telemetry.Enabled = true
	}
}
