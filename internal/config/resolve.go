package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"repo-mcp/internal/crypto"

	"github.com/joho/godotenv"
)

// Environment variables consulted by Resolve. The VITE_ names are accepted
// as fallbacks for deployments that share a .env with a web frontend.
const (
	EnvToken     = "GITHUB_TOKEN"
	EnvOwner     = "GITHUB_REPO_OWNER"
	EnvRepo      = "GITHUB_REPO_NAME"
	EnvBaseURL   = "GITHUB_API_URL"
	EnvLogLevel  = "LOG_LEVEL"
	EnvLogFile   = "LOG_FILE"
	EnvCryptoKey = "REPO_MCP_CRYPTO_KEY"

	fallbackPrefix = "VITE_"
)

// Overrides are command-line values. Zero values leave the resolved
// setting untouched.
type Overrides struct {
	Owner      string
	Repo       string
	Transport  string
	Host       string
	Port       int
	SocketPath string
	LogLevel   string
	CacheType  string
	CachePath  string

	// MetricsAddr serves /metrics beside a stream transport
	MetricsAddr string
}

// Options control Resolve
type Options struct {
	// ConfigPath is an optional YAML or JSON file
	ConfigPath string
	// EnvFile defaults to .env. A missing file is ignored.
	EnvFile   string
	NoEnvFile bool
	// LookupEnv defaults to os.LookupEnv
	LookupEnv func(string) (string, bool)
	Overrides Overrides
}

// Resolve builds the configuration. Precedence from lowest to highest is
// defaults, config file, .env file, process environment, overrides.
// Notices describe fallbacks taken; they are warnings, not errors.
func Resolve(opts Options) (*Config, []string, error) {
	lookup, err := newLookup(opts)
	if err != nil {
		return nil, nil, err
	}

	cfg := DefaultConfig()
	if opts.ConfigPath != "" {
		cfg, err = loadConfig(opts.ConfigPath, func(key string) string {
			value, _ := lookup(key)
			return value
		})
		if err != nil {
			return nil, nil, err
		}
	}

	if value, ok := lookupWithFallback(lookup, EnvToken); ok {
		cfg.GitHub.Token = value
	}
	if value, ok := lookupWithFallback(lookup, EnvOwner); ok {
		cfg.GitHub.Owner = value
	}
	if value, ok := lookupWithFallback(lookup, EnvRepo); ok {
		cfg.GitHub.Repo = value
	}
	if value, ok := lookup(EnvBaseURL); ok && value != "" {
		cfg.GitHub.BaseURL = value
	}
	if value, ok := lookup(EnvLogLevel); ok && value != "" {
		cfg.LogLevel = value
	}
	if value, ok := lookup(EnvLogFile); ok && value != "" {
		cfg.LogFile = value
	}

	applyOverrides(cfg, opts.Overrides)

	if crypto.IsEncrypted(cfg.GitHub.Token) {
		token, err := revealToken(cfg, lookup)
		if err != nil {
			return nil, nil, err
		}
		cfg.GitHub.Token = token
	}

	var notices []string
	if cfg.GitHub.Token == "" {
		notices = append(notices, fmt.Sprintf("%s is not set; GitHub requests are unauthenticated and rate limited", EnvToken))
	}
	if cfg.GitHub.Owner == "" {
		cfg.GitHub.Owner = DefaultOwner
		notices = append(notices, fmt.Sprintf("%s is not set; using default owner %q", EnvOwner, DefaultOwner))
	}
	if cfg.GitHub.Repo == "" {
		cfg.GitHub.Repo = DefaultRepo
		notices = append(notices, fmt.Sprintf("%s is not set; using default repository %q", EnvRepo, DefaultRepo))
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, notices, nil
}

// newLookup layers the process environment over the .env file without
// modifying the process environment.
func newLookup(opts Options) (func(string) (string, bool), error) {
	lookupEnv := opts.LookupEnv
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	if opts.NoEnvFile {
		return lookupEnv, nil
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	dotenv, err := godotenv.Read(envFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read env file %s: %w", envFile, err)
		}
		dotenv = map[string]string{}
	}

	return func(key string) (string, bool) {
		if value, ok := lookupEnv(key); ok {
			return value, true
		}
		value, ok := dotenv[key]
		return value, ok
	}, nil
}

// lookupWithFallback returns the first non-empty of key and VITE_key
func lookupWithFallback(lookup func(string) (string, bool), key string) (string, bool) {
	for _, name := range []string{key, fallbackPrefix + key} {
		if value, ok := lookup(name); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.Owner != "" {
		cfg.GitHub.Owner = o.Owner
	}
	if o.Repo != "" {
		cfg.GitHub.Repo = o.Repo
	}
	if o.Transport != "" {
		cfg.Transport.Type = o.Transport
	}
	if o.Host != "" {
		cfg.Transport.Host = o.Host
	}
	if o.Port != 0 {
		cfg.Transport.Port = o.Port
	}
	if o.SocketPath != "" {
		cfg.Transport.SocketPath = o.SocketPath
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.CacheType != "" {
		cfg.Cache.Type = o.CacheType
	}
	if o.CachePath != "" {
		cfg.Cache.Path = o.CachePath
	}
	if o.MetricsAddr != "" {
		cfg.MetricsAddr = o.MetricsAddr
	}
}

func revealToken(cfg *Config, lookup func(string) (string, bool)) (string, error) {
	key, _ := lookup(EnvCryptoKey)
	if key == "" && cfg.CryptoKeyFile != "" {
		var err error
		key, err = crypto.LoadKey(cfg.CryptoKeyFile)
		if err != nil {
			return "", err
		}
	}
	if key == "" {
		return "", fmt.Errorf("github token is encrypted but no key is available (set %s or crypto_key_file)", EnvCryptoKey)
	}

	cipher, err := crypto.NewCipher(key)
	if err != nil {
		return "", err
	}
	token, err := cipher.Open(cfg.GitHub.Token)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt github token: %w", err)
	}
	return token, nil
}
