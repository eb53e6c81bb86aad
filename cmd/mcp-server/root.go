package main

import (
	"context"
	"os/signal"
	"syscall"

	"repo-mcp/internal/config"
	"repo-mcp/internal/mcp/server"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath string
	envFile    string
	noEnvFile  bool
	overrides  config.Overrides
}

func (g *globalFlags) options() config.Options {
	return config.Options{
		ConfigPath: g.configPath,
		EnvFile:    g.envFile,
		NoEnvFile:  g.noEnvFile,
		Overrides:  g.overrides,
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "repo-mcp",
		Short: "Serve a GitHub repository to MCP clients",
		Long: `repo-mcp exposes one GitHub repository over the Model Context Protocol.

It advertises a file listing resource and two tools, get_file_content and
search_repository, over stdio, tcp, unix sockets or HTTP. Settings come from
an optional config file, .env, the environment (GITHUB_TOKEN,
GITHUB_REPO_OWNER, GITHUB_REPO_NAME) and the flags below.`,
		Example: `  # Serve over stdio for a desktop client
  GITHUB_TOKEN=ghp_xxx repo-mcp --owner acme --repo widgets

  # Serve over TCP with metrics on :9090
  repo-mcp --transport tcp --port 8090 --metrics-addr :9090

  # Serve over HTTP with a persistent response cache
  repo-mcp --transport http --cache rocksdb --cache-path ./data/cache`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Path to configuration file (.yaml, .yml or .json)")
	pf.StringVar(&flags.envFile, "env-file", ".env", "Path to .env file")
	pf.BoolVar(&flags.noEnvFile, "no-env-file", false, "Do not read a .env file")
	pf.StringVar(&flags.overrides.Owner, "owner", "", "Repository owner (overrides "+config.EnvOwner+")")
	pf.StringVar(&flags.overrides.Repo, "repo", "", "Repository name (overrides "+config.EnvRepo+")")
	pf.StringVar(&flags.overrides.LogLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	pf.StringVar(&flags.overrides.CacheType, "cache", "", "Response cache (memory, rocksdb, none)")
	pf.StringVar(&flags.overrides.CachePath, "cache-path", "", "RocksDB cache directory")

	f := cmd.Flags()
	f.StringVar(&flags.overrides.Transport, "transport", "", "Transport type (stdio, tcp, unix, http)")
	f.StringVar(&flags.overrides.Host, "host", "", "Host for TCP/HTTP transport")
	f.IntVar(&flags.overrides.Port, "port", 0, "Port for TCP/HTTP transport")
	f.StringVar(&flags.overrides.SocketPath, "socket", "", "Unix socket path")
	f.StringVar(&flags.overrides.MetricsAddr, "metrics-addr", "", "Serve /metrics on this address beside stdio, tcp or unix")

	cmd.AddCommand(newConsoleCommand(flags), newConfigCommand(flags))
	return cmd
}

func runServe(ctx context.Context, flags *globalFlags) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(flags.options())
	if err != nil {
		return err
	}
	defer a.Close()

	serverConfig := server.NewConfigFromUnified(a.cfg)
	tm := server.NewTransportManager(serverConfig, a.dispatcher,
		logrus.NewEntry(a.log),
		server.WithGatherer(a.registry),
	)

	registry := a.dispatcher.Registry()
	a.log.WithFields(logrus.Fields(tm.GetTransportInfo())).WithFields(logrus.Fields{
		"owner": registry.Owner(),
		"repo":  registry.Repo(),
		"cache": a.cfg.Cache.Type,
	}).Info("starting MCP server")

	if err := tm.StartTransport(ctx); err != nil {
		return err
	}

	a.log.Info("MCP server shutdown complete")
	return nil
}
