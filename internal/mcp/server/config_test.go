package server

import (
	"testing"

	"repo-mcp/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestNewConfigFromUnified(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Name = "repo-mcp"
	cfg.Version = "2.1.0"
	cfg.Transport.Type = "http"
	cfg.Transport.Port = 9000
	cfg.Transport.Path = ""
	cfg.MetricsAddr = ":9090"

	got := NewConfigFromUnified(cfg)
	assert.Equal(t, &Config{
		Name:    "repo-mcp",
		Version: "2.1.0",
		Transport: TransportConfig{
			Type:       "http",
			Host:       "localhost",
			Port:       9000,
			Path:       "/mcp",
			SocketPath: "/tmp/repo-mcp.sock",
		},
		MetricsAddr: ":9090",
	}, got)
}
