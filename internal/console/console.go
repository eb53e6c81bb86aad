// Package console is an interactive shell over the MCP operations of a
// repo-mcp server, either in-process or over a tcp/unix connection.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"repo-mcp/internal/jsonutil"
	"repo-mcp/internal/mcp/protocol"
)

const defaultTimeout = 60 * time.Second

// Handler executes console command lines
type Handler struct {
	Caller Caller
	Out    io.Writer
	// Timeout bounds each operation; zero means one minute
	Timeout time.Duration

	tools []string
}

// Execute runs one command line. It returns false when the console should
// exit.
func (h *Handler) Execute(ctx context.Context, input string) bool {
	parts, err := splitArgs(input)
	if err != nil {
		fmt.Fprintf(h.Out, "Parse error: %v\n", err)
		return true
	}
	if len(parts) == 0 {
		return true
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args, selectPath := extractSelect(parts[1:])

	switch cmd := strings.ToLower(parts[0]); cmd {
	case "resources":
		h.listResources(ctx)
	case "read":
		h.readResource(ctx, args, selectPath)
	case "tools":
		h.listTools(ctx)
	case "call":
		h.callTool(ctx, args, selectPath)
	case "help", "?":
		h.printHelp()
	case "exit", "quit":
		return false
	default:
		fmt.Fprintf(h.Out, "Unknown command: %s (type 'help')\n", cmd)
	}
	return true
}

func (h *Handler) listResources(ctx context.Context) {
	result, err := h.Caller.ListResources(ctx)
	if err != nil {
		h.printError(err)
		return
	}
	for _, r := range result.Resources {
		fmt.Fprintf(h.Out, "%s\t%s\n", r.URI, r.Name)
		if r.Description != "" {
			fmt.Fprintf(h.Out, "\t%s\n", r.Description)
		}
	}
}

func (h *Handler) readResource(ctx context.Context, args []string, selectPath string) {
	var uri string
	switch len(args) {
	case 0:
		// the bound repository's listing
		result, err := h.Caller.ListResources(ctx)
		if err != nil {
			h.printError(err)
			return
		}
		if len(result.Resources) == 0 {
			fmt.Fprintln(h.Out, "No resources advertised")
			return
		}
		uri = result.Resources[0].URI
	case 1:
		uri = args[0]
	default:
		fmt.Fprintln(h.Out, "Usage: read [<uri>] [--select=<jsonpath>]")
		return
	}

	result, err := h.Caller.ReadResource(ctx, uri)
	if err != nil {
		h.printError(err)
		return
	}
	for _, c := range result.Contents {
		h.printText(c.Text, selectPath)
	}
}

func (h *Handler) listTools(ctx context.Context) {
	result, err := h.Caller.ListTools(ctx)
	if err != nil {
		h.printError(err)
		return
	}

	h.tools = h.tools[:0]
	for _, t := range result.Tools {
		h.tools = append(h.tools, t.Name)
		fmt.Fprintf(h.Out, "%s\t%s\n", t.Name, t.Description)
		if required := requiredArguments(t); len(required) > 0 {
			fmt.Fprintf(h.Out, "\trequired: %s\n", strings.Join(required, ", "))
		}
	}
}

func (h *Handler) callTool(ctx context.Context, args []string, selectPath string) {
	if len(args) == 0 {
		fmt.Fprintln(h.Out, "Usage: call <tool> [key=value ...] [key:=json ...] [--select=<jsonpath>]")
		return
	}

	arguments, err := parseArguments(args[1:])
	if err != nil {
		fmt.Fprintf(h.Out, "Parse error: %v\n", err)
		return
	}

	result, err := h.Caller.CallTool(ctx, args[0], arguments)
	if err != nil {
		h.printError(err)
		return
	}
	if result.IsError {
		fmt.Fprintf(h.Out, "Error: %s\n", result.Text())
		return
	}
	h.printText(result.Text(), selectPath)
}

func (h *Handler) printText(text, selectPath string) {
	if selectPath == "" {
		fmt.Fprintln(h.Out, jsonutil.Pretty(text))
		return
	}
	value, err := jsonutil.Select(text, selectPath)
	if err != nil {
		fmt.Fprintf(h.Out, "Select failed: %v\n", err)
		return
	}
	fmt.Fprintln(h.Out, jsonutil.Format(value))
}

func (h *Handler) printError(err error) {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		fmt.Fprintf(h.Out, "Request failed (%s): %s\n", perr.CodeName(), perr.Message)
		return
	}
	fmt.Fprintf(h.Out, "Request failed: %v\n", err)
}

func (h *Handler) printHelp() {
	fmt.Fprintln(h.Out, "Available commands:")
	for _, c := range commands {
		fmt.Fprintf(h.Out, "  %-40s %s\n", c.usage, c.description)
	}
}

// ToolNames returns the tool names seen by the last tools command
func (h *Handler) ToolNames() []string {
	return h.tools
}

func requiredArguments(t protocol.Tool) []string {
	raw, ok := t.InputSchema["required"].([]any)
	if !ok {
		return nil
	}
	var names []string
	for _, r := range raw {
		if name, ok := r.(string); ok {
			names = append(names, name)
		}
	}
	return names
}

// extractSelect removes a --select=<path> or --select <path> flag
func extractSelect(args []string) ([]string, string) {
	var rest []string
	var path string
	for i := 0; i < len(args); i++ {
		switch {
		case strings.HasPrefix(args[i], "--select="):
			path = strings.TrimPrefix(args[i], "--select=")
		case args[i] == "--select" && i+1 < len(args):
			path = args[i+1]
			i++
		default:
			rest = append(rest, args[i])
		}
	}
	return rest, path
}

// parseArguments turns key=value into string arguments and key:=json into
// decoded JSON values
func parseArguments(args []string) (map[string]any, error) {
	arguments := make(map[string]any, len(args))
	for _, arg := range args {
		if key, raw, ok := strings.Cut(arg, ":="); ok && key != "" && !strings.Contains(key, "=") {
			var value any
			if err := json.Unmarshal([]byte(raw), &value); err != nil {
				return nil, fmt.Errorf("argument %s: invalid JSON: %w", key, err)
			}
			arguments[key] = value
			continue
		}
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q: want key=value", arg)
		}
		arguments[key] = value
	}
	return arguments, nil
}

// splitArgs splits a line on whitespace. Single or double quotes group
// words and a backslash escapes the next character.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				args = append(args, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, fmt.Errorf("trailing backslash")
	}
	if inWord {
		args = append(args, current.String())
	}
	return args, nil
}
