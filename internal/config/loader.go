package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper for sentinelcored. If configFile is empty,
// it searches standard locations for sentinelcore.yaml/.yml, using an
// explicit-extension search (avoids Viper matching the "sentinelcore"
// binary itself, which carries no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("sentinelcore")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SENTINELCORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{".", filepath.Join(home, ".sentinelcore")}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "sentinelcore"))
		}
	} else {
		paths = append(paths, "/etc/sentinelcore")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches dirs for sentinelcore.yaml or .yml,
// requiring an explicit extension so the search never matches the
// "sentinelcore" binary itself sitting in the same directory.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "sentinelcore"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.addr")
	_ = viper.BindEnv("server.max_connections")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("worker_pool.enabled")
	_ = viper.BindEnv("worker_pool.workers")
	_ = viper.BindEnv("middleware.proxy_trust")
	_ = viper.BindEnv("middleware.compression_enabled")
	_ = viper.BindEnv("telemetry.enabled")
	_ = viper.BindEnv("telemetry.exporter")
	_ = viper.BindEnv("metrics.enabled")
	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the config file (if any), applies env overrides and
// defaults, and validates the result.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads and defaults the config without validating, so
// CLI flags (e.g. --dev) can still adjust it first.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path Viper loaded, or "" in env-only mode.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
