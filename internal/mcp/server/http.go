package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"repo-mcp/internal/mcp/protocol"
	"repo-mcp/internal/metrics"

	"github.com/gin-gonic/gin"
)

// maxHTTPBody bounds one POSTed JSON-RPC message
const maxHTTPBody = 4 << 20

// NewHTTPHandler returns a gin engine serving one JSON-RPC message per POST
// on path, plus /health and /metrics. Requests are handled one at a time.
func (tm *TransportManager) NewHTTPHandler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	var mu sync.Mutex
	r.POST(tm.config.Transport.Path, func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxHTTPBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, protocol.NewErrorResponse(nil, protocol.NewParseError("Parse error: %v", err)))
			return
		}

		var request protocol.Request
		if err := json.Unmarshal(body, &request); err != nil {
			c.JSON(http.StatusBadRequest, protocol.NewErrorResponse(nil, protocol.NewParseError("Parse error: %v", err)))
			return
		}

		mu.Lock()
		response := tm.handler.Handle(c.Request.Context(), &request)
		mu.Unlock()

		if response == nil {
			c.Status(http.StatusAccepted)
			return
		}
		c.JSON(http.StatusOK, response)
	})

	tm.addOperationalRoutes(r)
	return r
}

func (tm *TransportManager) addOperationalRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": tm.config.Name})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler(tm.gatherer)))
}

func (tm *TransportManager) startHTTPTransport(ctx context.Context) error {
	addr := net.JoinHostPort(tm.config.Transport.Host, fmt.Sprint(tm.config.Transport.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start HTTP listener on %s: %w", addr, err)
	}

	httpServer := &http.Server{Handler: tm.NewHTTPHandler()}

	tm.log.WithField("addr", listener.Addr().String()).Infof("MCP server listening on HTTP %s", tm.config.Transport.Path)
	tm.markReady(listener.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http transport failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// startMetricsListener serves /health and /metrics on addr until ctx is done
func (tm *TransportManager) startMetricsListener(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start metrics listener on %s: %w", addr, err)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	tm.addOperationalRoutes(r)
	httpServer := &http.Server{Handler: r}

	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			tm.log.WithError(err).Warn("metrics listener stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	tm.log.WithField("addr", listener.Addr().String()).Info("serving metrics")
	return nil
}
