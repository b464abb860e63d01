package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	require.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	require.Equal(t, 1024, cfg.Server.Backlog)
	require.Equal(t, "100ms", cfg.Server.PollTimeout)
	require.Equal(t, 10000, cfg.Server.MaxConnections)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, 4, cfg.WorkerPool.Workers)
	require.Equal(t, "none", cfg.Middleware.ProxyTrust)
	require.Equal(t, "none", cfg.Telemetry.Exporter)
}

func TestConfig_SetDefaults_PreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := Config{Server: ServerConfig{Addr: ":9090", Backlog: 64}}
	cfg.SetDefaults()

	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, 64, cfg.Server.Backlog)
}

func TestConfig_SetDevDefaults_SeedsIdentityAndTelemetry(t *testing.T) {
	t.Parallel()

	cfg := Config{DevMode: true}
	cfg.SetDefaults()
	cfg.SetDevDefaults()

	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Len(t, cfg.Auth.Identities, 1)
	require.Equal(t, "dev", cfg.Auth.Identities[0].ID)
	require.True(t, cfg.Telemetry.Enabled)
}

func TestConfig_SetDevDefaults_NoopWhenDisabled(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	cfg.SetDefaults()
	cfg.SetDevDefaults()

	require.Empty(t, cfg.Auth.Identities)
}

func TestFindConfigFileInPaths_EmptyDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.Empty(t, findConfigFileInPaths([]string{dir}))
}

func TestFindConfigFileInPaths_MatchesYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sentinelcore.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("server:\n  addr: :9090\n"), 0644))

	require.Equal(t, cfgPath, findConfigFileInPaths([]string{dir}))
}

func TestFindConfigFileInPaths_IgnoresNoExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sentinelcore"), []byte("\x7fELF binary"), 0755))

	require.Empty(t, findConfigFileInPaths([]string{dir}))
}

func TestFindConfigFileInPaths_PrefersYAMLOverYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "sentinelcore.yaml")
	ymlPath := filepath.Join(dir, "sentinelcore.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("server:\n  addr: :8080\n"), 0644))
	require.NoError(t, os.WriteFile(ymlPath, []byte("server:\n  addr: :9090\n"), 0644))

	require.Equal(t, yamlPath, findConfigFileInPaths([]string{dir}))
}

func TestLoadMCPConfig_AppliesDefaults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"transport":"http","port":3000}`), 0644))

	cfg, err := LoadMCPConfig(path)
	require.NoError(t, err)
	require.Equal(t, "http", cfg.Transport)
	require.Equal(t, 3000, cfg.Port)
	require.Equal(t, "/mcp", cfg.Endpoint)
	require.Equal(t, DefaultMCPMaxMessageSize, cfg.MaxMessageSize)
	require.Equal(t, DefaultMCPSessionTimeoutSecs, cfg.SessionTimeoutSecs)
}
