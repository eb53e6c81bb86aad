package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"repo-mcp/internal/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// TransportManager runs the configured transport host
type TransportManager struct {
	config   *Config
	handler  Handler
	log      *logrus.Entry
	gatherer prometheus.Gatherer

	// stdin and stdout back the stdio transport
	stdin  io.ReadCloser
	stdout io.Writer

	mu       sync.Mutex
	sessions map[*Session]struct{}
	addr     net.Addr
	ready    chan struct{}
}

// TransportOption configures a TransportManager
type TransportOption func(*TransportManager)

// WithGatherer exposes g on the /metrics endpoints
func WithGatherer(g prometheus.Gatherer) TransportOption {
	return func(tm *TransportManager) {
		tm.gatherer = g
	}
}

// WithStdio replaces os.Stdin and os.Stdout for the stdio transport
func WithStdio(in io.ReadCloser, out io.Writer) TransportOption {
	return func(tm *TransportManager) {
		tm.stdin = in
		tm.stdout = out
	}
}

// NewTransportManager creates a new transport manager
func NewTransportManager(config *Config, handler Handler, logger *logrus.Entry, opts ...TransportOption) *TransportManager {
	if logger == nil {
		logger = logging.Discard()
	}
	tm := &TransportManager{
		config:   config,
		handler:  handler,
		log:      logger.WithField("component", "transport"),
		gatherer: prometheus.DefaultGatherer,
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		sessions: make(map[*Session]struct{}),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

// StartTransport starts the configured transport type and blocks until it
// stops. Cancelling ctx stops the host and terminates live sessions.
func (tm *TransportManager) StartTransport(ctx context.Context) error {
	switch tm.config.Transport.Type {
	case "stdio", "":
		return tm.startStdioTransport(ctx)
	case "tcp":
		addr := net.JoinHostPort(tm.config.Transport.Host, fmt.Sprint(tm.config.Transport.Port))
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to start TCP listener on %s: %w", addr, err)
		}
		return tm.serveListener(ctx, listener)
	case "unix":
		return tm.startUnixTransport(ctx)
	case "http":
		return tm.startHTTPTransport(ctx)
	default:
		return fmt.Errorf("unsupported transport type: %s", tm.config.Transport.Type)
	}
}

// Ready is closed once a network transport is accepting connections
func (tm *TransportManager) Ready() <-chan struct{} {
	return tm.ready
}

// Addr returns the bound listener address once Ready is closed
func (tm *TransportManager) Addr() net.Addr {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.addr
}

func (tm *TransportManager) markReady(addr net.Addr) {
	tm.mu.Lock()
	tm.addr = addr
	tm.mu.Unlock()
	close(tm.ready)
}

// stdioChannel joins stdin and stdout into one channel. Closing it closes
// stdin, which unblocks a pending read.
type stdioChannel struct {
	io.ReadCloser
	io.Writer
}

func (tm *TransportManager) startStdioTransport(ctx context.Context) error {
	if tm.config.MetricsAddr != "" {
		if err := tm.startMetricsListener(ctx, tm.config.MetricsAddr); err != nil {
			return err
		}
	}

	session := NewSession(tm.handler, tm.log)
	tm.track(session)
	defer tm.untrack(session)

	tm.log.Info("serving MCP over stdio")
	errCh := make(chan error, 1)
	go func() {
		errCh <- session.Serve(ctx, stdioChannel{ReadCloser: tm.stdin, Writer: tm.stdout})
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("stdio transport failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		// A blocked read on a terminal may not return on close, so do not
		// wait for the serve goroutine.
		session.Terminate()
		return nil
	}
}

func (tm *TransportManager) startUnixTransport(ctx context.Context) error {
	socketPath := tm.config.Transport.SocketPath
	if socketPath == "" {
		return errors.New("unix transport requires a socket path")
	}

	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to start Unix socket listener on %s: %w", socketPath, err)
	}
	defer os.RemoveAll(socketPath)

	return tm.serveListener(ctx, listener)
}

// serveListener accepts connections until ctx is cancelled, serving each
// on its own session.
func (tm *TransportManager) serveListener(ctx context.Context, listener net.Listener) error {
	defer listener.Close()

	tm.log.WithField("addr", listener.Addr().String()).Info("MCP server listening")
	tm.markReady(listener.Addr())

	shutdown := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			listener.Close()
		case <-shutdown:
		}
	}()
	defer close(shutdown)

	var wg sync.WaitGroup
	defer wg.Wait()
	defer tm.terminateAll()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			tm.log.WithError(err).Warn("error accepting connection")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			tm.handleConnection(ctx, conn)
		}()
	}
}

func (tm *TransportManager) handleConnection(ctx context.Context, conn net.Conn) {
	log := tm.log.WithField("remote", conn.RemoteAddr().String())
	log.Debug("connection accepted")

	session := NewSession(tm.handler, log)
	tm.track(session)
	defer tm.untrack(session)

	if err := session.Serve(ctx, conn); err != nil {
		log.WithError(err).Warn("error serving connection")
	}
}

func (tm *TransportManager) track(s *Session) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.sessions[s] = struct{}{}
}

func (tm *TransportManager) untrack(s *Session) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	delete(tm.sessions, s)
}

// terminateAll terminates every live session
func (tm *TransportManager) terminateAll() {
	tm.mu.Lock()
	sessions := make([]*Session, 0, len(tm.sessions))
	for s := range tm.sessions {
		sessions = append(sessions, s)
	}
	tm.mu.Unlock()

	for _, s := range sessions {
		s.Terminate()
	}
}

// SessionCount returns the number of live sessions
func (tm *TransportManager) SessionCount() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.sessions)
}

// GetTransportInfo returns information about the current transport configuration
func (tm *TransportManager) GetTransportInfo() map[string]interface{} {
	info := map[string]interface{}{
		"type": tm.config.Transport.Type,
	}

	switch tm.config.Transport.Type {
	case "tcp", "http":
		info["host"] = tm.config.Transport.Host
		info["port"] = tm.config.Transport.Port
		if tm.config.Transport.Type == "http" {
			info["path"] = tm.config.Transport.Path
		}
	case "unix":
		info["socket_path"] = tm.config.Transport.SocketPath
	}
	if tm.config.MetricsAddr != "" {
		info["metrics_addr"] = tm.config.MetricsAddr
	}

	return info
}
