package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"repo-mcp/internal/mcp/protocol"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTransport runs tm in the background and waits until it is listening
func startTransport(t *testing.T, tm *TransportManager) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- tm.StartTransport(ctx)
	}()

	select {
	case <-tm.Ready():
	case err := <-errCh:
		cancel()
		t.Fatalf("transport failed to start: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("transport did not start")
	}
	return cancel, errCh
}

func roundTrip(t *testing.T, conn net.Conn, reader *bufio.Reader, line string) protocol.Response {
	t.Helper()
	_, err := fmt.Fprintln(conn, line)
	require.NoError(t, err)

	raw, err := reader.ReadBytes('\n')
	require.NoError(t, err)

	var resp protocol.Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

// TestTCPTransport_MCPProtocol tests MCP protocol over TCP
func TestTCPTransport_MCPProtocol(t *testing.T) {
	config := &Config{
		Name: "test-server",
		Transport: TransportConfig{
			Type: "tcp",
			Host: "127.0.0.1",
			Port: 0,
		},
	}
	tm := NewTransportManager(config, newTestDispatcher(t, newFakeBackend(), WithServerInfo("test-server", "1.0.0")), nil)
	cancel, errCh := startTransport(t, tm)
	defer cancel()

	conn, err := net.Dial("tcp", tm.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	resp := roundTrip(t, conn, reader,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test-client","version":"1.0.0"}}}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, json.RawMessage("1"), resp.ID)

	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var init protocol.InitializeResult
	require.NoError(t, json.Unmarshal(data, &init))
	assert.Equal(t, "2024-11-05", init.ProtocolVersion)
	assert.Equal(t, "test-server", init.ServerInfo.Name)

	// the initialized notification produces no response; the next line read
	// belongs to tools/list
	_, err = fmt.Fprintln(conn, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	require.NoError(t, err)

	resp = roundTrip(t, conn, reader, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, json.RawMessage("2"), resp.ID)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("transport did not stop")
	}
}

// TestTCPTransport_ConcurrentConnections tests that each connection gets its own session
func TestTCPTransport_ConcurrentConnections(t *testing.T) {
	config := &Config{Transport: TransportConfig{Type: "tcp", Host: "127.0.0.1"}}
	tm := NewTransportManager(config, newTestDispatcher(t, newFakeBackend()), nil)
	cancel, _ := startTransport(t, tm)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			conn, err := net.Dial("tcp", tm.Addr().String())
			if !assert.NoError(t, err) {
				return
			}
			defer conn.Close()
			reader := bufio.NewReader(conn)

			for j := 0; j < 3; j++ {
				reqID := id*10 + j
				fmt.Fprintf(conn, `{"jsonrpc":"2.0","id":%d,"method":"ping"}`+"\n", reqID)
				raw, err := reader.ReadBytes('\n')
				if !assert.NoError(t, err) {
					return
				}
				var resp protocol.Response
				assert.NoError(t, json.Unmarshal(raw, &resp))
				assert.Equal(t, json.RawMessage(fmt.Sprint(reqID)), resp.ID)
			}
		}(i)
	}
	wg.Wait()
}

// TestTCPTransport_CancelTerminatesSessions tests that shutdown closes live connections
func TestTCPTransport_CancelTerminatesSessions(t *testing.T) {
	config := &Config{Transport: TransportConfig{Type: "tcp", Host: "127.0.0.1"}}
	tm := NewTransportManager(config, newTestDispatcher(t, newFakeBackend()), nil)
	cancel, errCh := startTransport(t, tm)

	conn, err := net.Dial("tcp", tm.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)
	roundTrip(t, conn, reader, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	assert.Equal(t, 1, tm.SessionCount())

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("transport did not stop")
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = reader.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 0, tm.SessionCount())
}

// TestUnixTransport tests MCP protocol over a Unix socket
func TestUnixTransport(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "mcp.sock")
	config := &Config{Transport: TransportConfig{Type: "unix", SocketPath: socketPath}}
	tm := NewTransportManager(config, newTestDispatcher(t, newFakeBackend()), nil)
	cancel, errCh := startTransport(t, tm)
	defer cancel()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	resp := roundTrip(t, conn, bufio.NewReader(conn),
		`{"jsonrpc":"2.0","id":"r","method":"resources/read","params":{"uri":"github://acme/widgets/files"}}`)
	require.Nil(t, resp.Error)

	cancel()
	assert.NoError(t, <-errCh)
}

func TestUnixTransport_RequiresPath(t *testing.T) {
	config := &Config{Transport: TransportConfig{Type: "unix"}}
	tm := NewTransportManager(config, newTestDispatcher(t, newFakeBackend()), nil)
	assert.Error(t, tm.StartTransport(context.Background()))
}

func TestStdioTransport(t *testing.T) {
	input := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n" +
			`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"resources/list"}` + "\n")
	var output bytes.Buffer

	tm := NewTransportManager(DefaultConfig(), newTestDispatcher(t, newFakeBackend()), nil,
		WithStdio(io.NopCloser(input), &output))
	require.NoError(t, tm.StartTransport(context.Background()))

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{}}`, lines[0])

	var resp protocol.Response
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &resp))
	assert.Equal(t, json.RawMessage("2"), resp.ID)
}

func TestStdioTransport_DecodeError(t *testing.T) {
	var output bytes.Buffer
	tm := NewTransportManager(DefaultConfig(), newTestDispatcher(t, newFakeBackend()), nil,
		WithStdio(io.NopCloser(strings.NewReader("garbage\n")), &output))

	err := tm.StartTransport(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stdio transport failed")
	assert.Empty(t, output.String())
}

func TestStartTransport_Unsupported(t *testing.T) {
	config := &Config{Transport: TransportConfig{Type: "websocket"}}
	tm := NewTransportManager(config, newTestDispatcher(t, newFakeBackend()), nil)
	err := tm.StartTransport(context.Background())
	assert.EqualError(t, err, "unsupported transport type: websocket")
}

func TestHTTPHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	config := DefaultConfig()
	config.Transport.Type = "http"
	tm := NewTransportManager(config, newTestDispatcher(t, newFakeBackend()), nil, WithGatherer(reg))
	server := httptest.NewServer(tm.NewHTTPHandler())
	defer server.Close()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   int
	}{
		{name: "request", body: `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, wantStatus: http.StatusOK},
		{name: "protocol error", body: `{"jsonrpc":"2.0","id":2,"method":"nope"}`, wantStatus: http.StatusOK, wantCode: protocol.MethodNotFound},
		{name: "notification", body: `{"jsonrpc":"2.0","method":"notifications/initialized"}`, wantStatus: http.StatusAccepted},
		{name: "malformed", body: `{"jsonrpc":`, wantStatus: http.StatusBadRequest, wantCode: protocol.ParseError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(server.URL+"/mcp", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			if tt.wantStatus == http.StatusAccepted {
				return
			}
			var rpc protocol.Response
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpc))
			if tt.wantCode == 0 {
				assert.Nil(t, rpc.Error)
				return
			}
			require.NotNil(t, rpc.Error)
			assert.Equal(t, tt.wantCode, rpc.Error.Code)
		})
	}
}

func TestHTTPHandler_OperationalRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test"}))

	tm := NewTransportManager(DefaultConfig(), newTestDispatcher(t, newFakeBackend()), nil, WithGatherer(reg))
	server := httptest.NewServer(tm.NewHTTPHandler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "repo-mcp", health["service"])

	resp, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "test_total 0")
}

func TestHTTPTransport_Lifecycle(t *testing.T) {
	config := DefaultConfig()
	config.Transport.Type = "http"
	config.Transport.Host = "127.0.0.1"
	tm := NewTransportManager(config, newTestDispatcher(t, newFakeBackend()), nil, WithGatherer(prometheus.NewRegistry()))
	cancel, errCh := startTransport(t, tm)

	resp, err := http.Post("http://"+tm.Addr().String()+"/mcp", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	assert.NoError(t, <-errCh)
}

func TestGetTransportInfo(t *testing.T) {
	tests := []struct {
		name   string
		config TransportConfig
		want   map[string]interface{}
	}{
		{name: "stdio", config: TransportConfig{Type: "stdio"}, want: map[string]interface{}{"type": "stdio"}},
		{
			name:   "tcp",
			config: TransportConfig{Type: "tcp", Host: "localhost", Port: 8090},
			want:   map[string]interface{}{"type": "tcp", "host": "localhost", "port": 8090},
		},
		{
			name:   "http",
			config: TransportConfig{Type: "http", Host: "0.0.0.0", Port: 8080, Path: "/mcp"},
			want:   map[string]interface{}{"type": "http", "host": "0.0.0.0", "port": 8080, "path": "/mcp"},
		},
		{
			name:   "unix",
			config: TransportConfig{Type: "unix", SocketPath: "/tmp/mcp.sock"},
			want:   map[string]interface{}{"type": "unix", "socket_path": "/tmp/mcp.sock"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := NewTransportManager(&Config{Transport: tt.config}, newTestDispatcher(t, newFakeBackend()), nil)
			assert.Equal(t, tt.want, tm.GetTransportInfo())
		})
	}
}
