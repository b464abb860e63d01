package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// MCPConfig is the flat JSON configuration document recognized for the
// MCP transport, distinct from the YAML Config above: it is the shape
// an MCP client launcher hands the server (transport/url/port/etc.),
// not an operator-facing deployment config.
type MCPConfig struct {
	Transport          string        `json:"transport"`
	URL                string        `json:"url,omitempty"`
	Port               int           `json:"port,omitempty"`
	Endpoint           string        `json:"endpoint,omitempty"`
	Host               string        `json:"host,omitempty"`
	ResponseMode       string        `json:"responseMode,omitempty"`
	MaxMessageSize     int           `json:"maxMessageSize,omitempty"`
	EnableResumability bool          `json:"enableResumability,omitempty"`
	CORSOrigin         string        `json:"corsOrigin,omitempty"`
	Auth               MCPAuthConfig `json:"auth,omitempty"`
	SessionTimeoutSecs int           `json:"sessionTimeoutSeconds,omitempty"`
}

// MCPAuthConfig is the "auth" sub-object of an MCPConfig document.
type MCPAuthConfig struct {
	Type   string `json:"type,omitempty"`
	Secret string `json:"secret,omitempty"`
}

// LoadMCPConfig reads and unmarshals a flat JSON MCP config document
// from path, applying the recognized defaults for any field left unset.
func LoadMCPConfig(path string) (*MCPConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read MCP config %s: %w", path, err)
	}

	var cfg MCPConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse MCP config %s: %w", path, err)
	}
	cfg.setDefaults()
	return &cfg, nil
}

func (c *MCPConfig) setDefaults() {
	if c.Transport == "" {
		c.Transport = "http"
	}
	if c.Endpoint == "" {
		c.Endpoint = "/mcp"
	}
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.ResponseMode == "" {
		c.ResponseMode = "stream"
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMCPMaxMessageSize
	}
	if c.SessionTimeoutSecs == 0 {
		c.SessionTimeoutSecs = DefaultMCPSessionTimeoutSecs
	}
}

// Defaults for MCPConfig fields left unset, matching the core
// specification's flat-JSON transport document defaults.
const (
	DefaultMCPMaxMessageSize     = 4 << 20 // 4 MiB
	DefaultMCPSessionTimeoutSecs = 3600     // 1 hour
)
