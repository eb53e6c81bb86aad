package server

import (
	"repo-mcp/internal/config"
)

// Config holds the settings the transport hosts need
type Config struct {
	Name    string
	Version string

	Transport TransportConfig

	// MetricsAddr, when set, serves /metrics beside a stream transport
	MetricsAddr string
}

// TransportConfig defines the transport layer configuration
type TransportConfig struct {
	Type string // stdio, tcp, unix, http

	// For TCP and HTTP transport
	Host string
	Port int

	// For HTTP transport
	Path string

	// For Unix Socket transport
	SocketPath string
}

// NewConfigFromUnified creates a server Config from the resolved application config
func NewConfigFromUnified(cfg *config.Config) *Config {
	path := cfg.Transport.Path
	if path == "" {
		path = "/mcp"
	}
	return &Config{
		Name:    cfg.Name,
		Version: cfg.Version,
		Transport: TransportConfig{
			Type:       cfg.Transport.Type,
			Host:       cfg.Transport.Host,
			Port:       cfg.Transport.Port,
			Path:       path,
			SocketPath: cfg.Transport.SocketPath,
		},
		MetricsAddr: cfg.MetricsAddr,
	}
}

// DefaultConfig returns a stdio server configuration
func DefaultConfig() *Config {
	return &Config{
		Name:    "repo-mcp",
		Version: "dev",
		Transport: TransportConfig{
			Type: "stdio",
			Path: "/mcp",
		},
	}
}
