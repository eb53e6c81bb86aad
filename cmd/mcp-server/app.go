package main

import (
	"fmt"
	"os"

	"repo-mcp/internal/cache"
	"repo-mcp/internal/config"
	"repo-mcp/internal/github"
	"repo-mcp/internal/logging"
	"repo-mcp/internal/mcp/server"
	"repo-mcp/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

// app holds the wired server components shared by serve and console
type app struct {
	cfg        *config.Config
	log        *logrus.Logger
	registry   *prometheus.Registry
	dispatcher *server.Dispatcher

	closers []func()
}

func newApp(opts config.Options) (*app, error) {
	cfg, notices, err := config.Resolve(opts)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: logger}
	a.closers = append(a.closers, func() { _ = closeLog() })

	for _, notice := range notices {
		logger.Warn(notice)
	}

	responseCache, err := a.openCache()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(a.registry)

	gh, err := github.NewClient(github.Config{
		BaseURL:   cfg.GitHub.BaseURL,
		Token:     cfg.GitHub.Token,
		Cache:     responseCache,
		Logger:    logger.WithField("component", "github"),
		UserAgent: fmt.Sprintf("%s/%s", cfg.Name, cfg.Version),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	registry, err := server.NewRegistry(cfg.GitHub.Owner, cfg.GitHub.Repo)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.dispatcher = server.NewDispatcher(registry, metrics.Backend(gh, recorder),
		server.WithLogger(logrus.NewEntry(logger)),
		server.WithMetrics(recorder),
		server.WithServerInfo(cfg.Name, cfg.Version),
	)
	return a, nil
}

func (a *app) openCache() (github.ResponseCache, error) {
	switch a.cfg.Cache.Type {
	case "none":
		return github.NoCache, nil
	case "rocksdb":
		if err := os.MkdirAll(a.cfg.Cache.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		rocks, err := cache.Open(a.cfg.Cache.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rocks.Close)
		a.log.WithField("path", a.cfg.Cache.Path).Info("opened RocksDB response cache")
		return rocks, nil
	default:
		return github.NewMemoryCache(), nil
	}
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
