package server

import (
	"context"
	"encoding/json"
	"errors"

	"repo-mcp/internal/mcp/protocol"
	"repo-mcp/internal/repository"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
)

// toolHandler runs one tool against the bound repository. Backend failures
// are reported inside the result, never as an error.
type toolHandler func(d *Dispatcher, ctx context.Context, args map[string]any) *mcp.CallToolResult

var toolHandlers = map[string]toolHandler{
	ToolGetFileContent:   (*Dispatcher).getFileContent,
	ToolSearchRepository: (*Dispatcher).searchRepository,
}

// callTool validates arguments against the tool's input schema and runs it
func (d *Dispatcher) callTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	tool, ok := d.registry.Tool(name)
	if !ok {
		return nil, protocol.NewMethodNotFound("Unknown tool: %s", name)
	}
	handler, ok := toolHandlers[name]
	if !ok {
		return nil, protocol.NewMethodNotFound("Unknown tool: %s", name)
	}
	if err := validateArguments(tool.InputSchema, args); err != nil {
		return nil, protocol.NewInvalidRequest("Invalid arguments for %s: %v", name, err)
	}

	result := handler(d, ctx, args)
	d.metrics.ObserveToolResult(name, result.IsError)
	if result.IsError {
		d.log.WithFields(logrus.Fields{"tool": name}).Info("tool reported an error")
	}
	return result, nil
}

func (d *Dispatcher) getFileContent(ctx context.Context, args map[string]any) *mcp.CallToolResult {
	path, _ := args["path"].(string)

	content, err := d.backend.ReadFile(ctx, d.registry.Owner(), d.registry.Repo(), path)
	switch {
	case errors.Is(err, repository.ErrNotFile):
		return mcp.NewToolResultError("Not a file or file content could not be retrieved")
	case err != nil:
		return mcp.NewToolResultError("Error fetching file content: " + err.Error())
	}
	return mcp.NewToolResultText(string(content))
}

func (d *Dispatcher) searchRepository(ctx context.Context, args map[string]any) *mcp.CallToolResult {
	query, _ := args["query"].(string)

	results, err := d.backend.Search(ctx, d.registry.Owner(), d.registry.Repo(), query)
	if err != nil {
		return mcp.NewToolResultError("Error searching repository: " + err.Error())
	}

	text, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return mcp.NewToolResultError("Error searching repository: " + err.Error())
	}
	return mcp.NewToolResultText(string(text))
}
