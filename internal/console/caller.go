package console

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"repo-mcp/internal/mcp/client"
	"repo-mcp/internal/mcp/protocol"
	"repo-mcp/internal/mcp/server"
)

// Caller is the set of MCP operations the console drives. *client.Client
// implements it for a remote server and Local for an in-process one.
type Caller interface {
	ListResources(ctx context.Context) (*protocol.ListResourcesResult, error)
	ReadResource(ctx context.Context, uri string) (*protocol.ReadResourceResult, error)
	ListTools(ctx context.Context) (*protocol.ListToolsResult, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (*protocol.ToolResult, error)
}

var (
	_ Caller = (*client.Client)(nil)
	_ Caller = (*Local)(nil)
)

// Local sends requests straight to a handler without a transport
type Local struct {
	handler server.Handler
	nextID  atomic.Int64
}

// NewLocal wraps handler
func NewLocal(handler server.Handler) *Local {
	return &Local{handler: handler}
}

func (l *Local) call(ctx context.Context, method string, params, result any) error {
	request, err := protocol.NewRequest(l.nextID.Add(1), method, params)
	if err != nil {
		return fmt.Errorf("encoding %s params: %w", method, err)
	}

	response := l.handler.Handle(ctx, request)
	if response == nil {
		return fmt.Errorf("%s: no response", method)
	}
	if response.Error != nil {
		return response.Error
	}

	// results are mcp-go values; round-trip them into the wire shapes
	data, err := json.Marshal(response.Result)
	if err != nil {
		return fmt.Errorf("encoding %s result: %w", method, err)
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("decoding %s result: %w", method, err)
	}
	return nil
}

// ListResources implements Caller
func (l *Local) ListResources(ctx context.Context) (*protocol.ListResourcesResult, error) {
	var result protocol.ListResourcesResult
	if err := l.call(ctx, protocol.MethodListResources, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReadResource implements Caller
func (l *Local) ReadResource(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
	var result protocol.ReadResourceResult
	if err := l.call(ctx, protocol.MethodReadResource, protocol.ReadResourceParams{URI: uri}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListTools implements Caller
func (l *Local) ListTools(ctx context.Context) (*protocol.ListToolsResult, error) {
	var result protocol.ListToolsResult
	if err := l.call(ctx, protocol.MethodListTools, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CallTool implements Caller
func (l *Local) CallTool(ctx context.Context, name string, arguments map[string]any) (*protocol.ToolResult, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	var result protocol.ToolResult
	params := protocol.CallToolParams{Name: name, Arguments: arguments}
	if err := l.call(ctx, protocol.MethodCallTool, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
