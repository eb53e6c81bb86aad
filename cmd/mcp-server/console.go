package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"repo-mcp/internal/console"
	"repo-mcp/internal/mcp/client"
	"repo-mcp/internal/mcp/protocol"

	"github.com/spf13/cobra"
)

func newConsoleCommand(flags *globalFlags) *cobra.Command {
	var (
		connect string
		execute []string
	)

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Interactive shell over the MCP operations",
		Long: `Open an interactive shell that lists and reads resources and calls tools.

Without --connect the console runs the server in-process with the resolved
configuration. With --connect it drives a running server over tcp or unix.`,
		Example: `  repo-mcp console --owner acme --repo widgets
  repo-mcp console --connect tcp://localhost:8090
  repo-mcp console --connect unix:///tmp/repo-mcp.sock -e tools -e 'call search_repository query="func main"'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()

			caller, target, closeFn, err := openCaller(ctx, flags, connect)
			if err != nil {
				return err
			}
			defer closeFn()

			h := &console.Handler{Caller: caller, Out: cmd.OutOrStdout()}
			if len(execute) > 0 {
				return runLines(ctx, h, execute)
			}
			console.Start(ctx, h, "Connected to "+target, "repo-mcp> ")
			return nil
		},
	}

	cmd.Flags().StringVar(&connect, "connect", "", "Server address (tcp://host:port or unix:///path)")
	cmd.Flags().StringArrayVarP(&execute, "exec", "e", nil, "Run a command and exit (repeatable)")
	return cmd
}

func openCaller(ctx context.Context, flags *globalFlags, connect string) (console.Caller, string, func(), error) {
	if connect == "" {
		a, err := newApp(flags.options())
		if err != nil {
			return nil, "", nil, err
		}
		target := fmt.Sprintf("%s/%s (in-process)", a.cfg.GitHub.Owner, a.cfg.GitHub.Repo)
		return console.NewLocal(a.dispatcher), target, a.Close, nil
	}

	c, err := client.Dial(ctx, connect)
	if err != nil {
		return nil, "", nil, err
	}
	result, err := c.Initialize(ctx, protocol.ClientInfo{Name: "repo-mcp-console", Version: "1.0.0"})
	if err != nil {
		c.Close()
		return nil, "", nil, fmt.Errorf("initialize: %w", err)
	}
	target := fmt.Sprintf("%s %s at %s", result.ServerInfo.Name, result.ServerInfo.Version, connect)
	return c, target, func() { c.Close() }, nil
}

func runLines(ctx context.Context, h *console.Handler, lines []string) error {
	for _, line := range lines {
		if !h.Execute(ctx, line) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

