// Package config resolves the server configuration once at startup from
// defaults, an optional config file, a .env file, the environment and
// command-line overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Development fallbacks used when no repository binding is configured
const (
	DefaultOwner = "my-org"
	DefaultRepo  = "my-qa-repo"
)

// Config holds the complete application configuration
type Config struct {
	// Application information
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`

	GitHub    GitHubConfig    `yaml:"github" json:"github"`
	Transport TransportConfig `yaml:"transport" json:"transport"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`

	// MetricsAddr serves /metrics beside the stdio transport when set
	MetricsAddr string `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`

	// Logging configuration
	LogLevel string `yaml:"log_level" json:"log_level"`
	LogFile  string `yaml:"log_file,omitempty" json:"log_file,omitempty"`

	// CryptoKeyFile holds the key for an ENC:AES256: token
	CryptoKeyFile string `yaml:"crypto_key_file,omitempty" json:"crypto_key_file,omitempty"`
}

// GitHubConfig holds the backend credentials and the bound repository
type GitHubConfig struct {
	Token   string `yaml:"token,omitempty" json:"token,omitempty"`
	Owner   string `yaml:"owner,omitempty" json:"owner,omitempty"`
	Repo    string `yaml:"repo,omitempty" json:"repo,omitempty"`
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

// TransportConfig holds transport configuration for the MCP server
type TransportConfig struct {
	Type       string `yaml:"type" json:"type"`
	Host       string `yaml:"host,omitempty" json:"host,omitempty"`
	Port       int    `yaml:"port,omitempty" json:"port,omitempty"`
	Path       string `yaml:"path,omitempty" json:"path,omitempty"`
	SocketPath string `yaml:"socket_path,omitempty" json:"socket_path,omitempty"`
}

// CacheConfig selects the GitHub response cache
type CacheConfig struct {
	Type string `yaml:"type" json:"type"` // memory, rocksdb, none
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// DefaultConfig returns the default configuration. The repository binding
// is left empty so resolution can tell whether it was configured.
func DefaultConfig() *Config {
	return &Config{
		Name:    "repo-mcp",
		Version: "1.0.0",
		GitHub: GitHubConfig{
			BaseURL: "https://api.github.com",
		},
		Transport: TransportConfig{
			Type:       "stdio",
			Host:       "localhost",
			Port:       8090,
			Path:       "/mcp",
			SocketPath: "/tmp/repo-mcp.sock",
		},
		Cache: CacheConfig{
			Type: "memory",
			Path: "./data/cache",
		},
		LogLevel: "info",
	}
}

// LoadConfig loads configuration from a file over the defaults.
// ${VAR} references in the file are expanded from the environment.
func LoadConfig(configPath string) (*Config, error) {
	return loadConfig(configPath, os.Getenv)
}

func loadConfig(configPath string, getenv func(string) string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := []byte(os.Expand(string(data), getenv))

	config := DefaultConfig()
	switch ext := filepath.Ext(configPath); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(expanded, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(expanded, config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return config, nil
}

// SaveConfig saves configuration to a file
func SaveConfig(config *Config, configPath string) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	switch ext := filepath.Ext(configPath); ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML config: %w", err)
		}
	case ".json":
		data, err = json.MarshalIndent(config, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	// the file may carry a token
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name is required")
	}
	if c.Version == "" {
		return fmt.Errorf("application version is required")
	}

	if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
		return fmt.Errorf("github owner and repo are required")
	}
	if strings.Contains(c.GitHub.Owner, "/") || strings.Contains(c.GitHub.Repo, "/") {
		return fmt.Errorf("github owner and repo must not contain '/'")
	}
	if c.GitHub.BaseURL != "" && !strings.HasPrefix(c.GitHub.BaseURL, "https://") {
		return fmt.Errorf("github base_url must use https: %s", c.GitHub.BaseURL)
	}

	switch c.Transport.Type {
	case "stdio":
	case "tcp", "http":
		if c.Transport.Port < 0 || c.Transport.Port > 65535 {
			return fmt.Errorf("invalid %s port: %d", c.Transport.Type, c.Transport.Port)
		}
		if c.Transport.Type == "http" && !strings.HasPrefix(c.Transport.Path, "/") {
			return fmt.Errorf("http path must start with '/': %q", c.Transport.Path)
		}
	case "unix":
		if c.Transport.SocketPath == "" {
			return fmt.Errorf("unix transport requires socket_path")
		}
	default:
		return fmt.Errorf("unsupported transport type: %s", c.Transport.Type)
	}

	switch c.Cache.Type {
	case "memory", "none":
	case "rocksdb":
		if c.Cache.Path == "" {
			return fmt.Errorf("rocksdb cache requires a path")
		}
	default:
		return fmt.Errorf("unsupported cache type: %s", c.Cache.Type)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	return nil
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() *Config {
	copied := *c
	if copied.GitHub.Token != "" {
		copied.GitHub.Token = "********"
	}
	return &copied
}
