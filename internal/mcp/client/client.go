// Package client drives a repo-mcp server over a tcp or unix stream.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"repo-mcp/internal/mcp/protocol"
)

// ErrClosed is returned by calls on a closed client
var ErrClosed = errors.New("client: connection closed")

// Client sends one request at a time and waits for its response.
// Notifications are written without waiting.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	writer  *bufio.Writer
	encoder *json.Encoder
	decoder *json.Decoder
	closed  bool

	requestID  atomic.Int64
	serverInfo *protocol.ServerInfo
}

// ParseAddress splits an address of the form tcp://host:port or
// unix:///path/to/socket into a network and dial address.
func ParseAddress(address string) (network, addr string, err error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", "", fmt.Errorf("client: invalid address %q: %w", address, err)
	}
	switch u.Scheme {
	case "tcp":
		if u.Host == "" {
			return "", "", fmt.Errorf("client: tcp address %q has no host", address)
		}
		return "tcp", u.Host, nil
	case "unix":
		if u.Path == "" {
			return "", "", fmt.Errorf("client: unix address %q has no path", address)
		}
		return "unix", u.Path, nil
	default:
		return "", "", fmt.Errorf("client: unsupported scheme in %q (want tcp:// or unix://)", address)
	}
}

// Dial connects to the server at address (see ParseAddress)
func Dial(ctx context.Context, address string) (*Client, error) {
	network, addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: 30 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("client: failed to connect to %s: %w", address, err)
	}
	return New(conn), nil
}

// New wraps an established connection
func New(conn net.Conn) *Client {
	writer := bufio.NewWriter(conn)
	return &Client{
		conn:    conn,
		writer:  writer,
		encoder: json.NewEncoder(writer),
		decoder: json.NewDecoder(bufio.NewReader(conn)),
	}
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// ServerInfo returns the server identity reported by Initialize
func (c *Client) ServerInfo() *protocol.ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// Call sends method with params and returns the response, including
// protocol error responses. The result is left as raw JSON. Transport
// failures are returned as errors.
func (c *Client) Call(ctx context.Context, method string, params any) (*protocol.Response, error) {
	request, err := protocol.NewRequest(c.requestID.Add(1), method, params)
	if err != nil {
		return nil, fmt.Errorf("client: encoding %s params: %w", method, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	}

	if err := c.write(request); err != nil {
		return nil, err
	}

	var response struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  json.RawMessage `json:"result,omitempty"`
		Error   *protocol.Error `json:"error,omitempty"`
	}
	if err := c.decoder.Decode(&response); err != nil {
		return nil, fmt.Errorf("client: failed to read %s response: %w", method, err)
	}
	if string(response.ID) != string(request.ID) {
		return nil, fmt.Errorf("client: response id %s does not match request id %s", response.ID, request.ID)
	}

	resp := &protocol.Response{JSONRPC: response.JSONRPC, ID: response.ID, Error: response.Error}
	if response.Error == nil {
		resp.Result = response.Result
	}
	return resp, nil
}

// Notify sends a notification
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	request, err := protocol.NewRequest(nil, method, params)
	if err != nil {
		return fmt.Errorf("client: encoding %s params: %w", method, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.write(request)
}

func (c *Client) write(request *protocol.Request) error {
	if err := c.encoder.Encode(request); err != nil {
		return fmt.Errorf("client: failed to send %s: %w", request.Method, err)
	}
	if err := c.writer.Flush(); err != nil {
		return fmt.Errorf("client: failed to send %s: %w", request.Method, err)
	}
	return nil
}

// call performs a request and decodes a successful result into result.
// Protocol errors are returned as *protocol.Error.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	resp, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	raw, _ := resp.Result.(json.RawMessage)
	if result == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("client: failed to decode %s result: %w", method, err)
	}
	return nil
}

// Initialize performs the handshake and sends notifications/initialized
func (c *Client) Initialize(ctx context.Context, info protocol.ClientInfo) (*protocol.InitializeResult, error) {
	req := protocol.InitializeRequest{
		ProtocolVersion: protocol.LatestProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      info,
	}

	var result protocol.InitializeResult
	if err := c.call(ctx, protocol.MethodInitialize, req, &result); err != nil {
		return nil, err
	}
	if err := c.Notify(ctx, protocol.MethodInitialized, nil); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.serverInfo = &result.ServerInfo
	c.mu.Unlock()
	return &result, nil
}

// Ping checks the server is responsive
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, protocol.MethodPing, nil, nil)
}

// ListResources lists the advertised resources
func (c *Client) ListResources(ctx context.Context) (*protocol.ListResourcesResult, error) {
	var result protocol.ListResourcesResult
	if err := c.call(ctx, protocol.MethodListResources, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReadResource reads the resource at uri
func (c *Client) ReadResource(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
	var result protocol.ReadResourceResult
	if err := c.call(ctx, protocol.MethodReadResource, protocol.ReadResourceParams{URI: uri}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListTools lists the advertised tools
func (c *Client) ListTools(ctx context.Context) (*protocol.ListToolsResult, error) {
	var result protocol.ListToolsResult
	if err := c.call(ctx, protocol.MethodListTools, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CallTool invokes a tool. Tool failures arrive as a result with IsError set.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*protocol.ToolResult, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	var result protocol.ToolResult
	params := protocol.CallToolParams{Name: name, Arguments: arguments}
	if err := c.call(ctx, protocol.MethodCallTool, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
