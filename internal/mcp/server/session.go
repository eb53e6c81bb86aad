package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"repo-mcp/internal/logging"
	"repo-mcp/internal/mcp/protocol"

	"github.com/sirupsen/logrus"
)

// State is the lifecycle stage of a Session
type State int

const (
	StateUninitialized State = iota
	StateRunning
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrSessionUsed is returned when Serve is called on a session that has
// already served.
var ErrSessionUsed = errors.New("session already served")

// Session serves newline-delimited JSON-RPC over one channel. Messages are
// handled strictly in arrival order with one request in flight.
type Session struct {
	handler Handler
	log     *logrus.Entry

	mu      sync.Mutex
	state   State
	channel io.Closer
	done    chan struct{}
}

// NewSession creates a session dispatching to handler
func NewSession(handler Handler, logger *logrus.Entry) *Session {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Session{
		handler: handler,
		log:     logger.WithField("component", "session"),
		done:    make(chan struct{}),
	}
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session reaches StateClosed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Serve reads messages from channel until end of stream, a fatal channel
// error, Terminate, or cancellation of ctx. End of stream and termination
// return nil.
func (s *Session) Serve(ctx context.Context, channel io.ReadWriteCloser) error {
	s.mu.Lock()
	if s.state != StateUninitialized {
		s.mu.Unlock()
		return ErrSessionUsed
	}
	s.state = StateRunning
	s.channel = channel
	s.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.Terminate()
		case <-stop:
		}
	}()

	s.log.Debug("session running")
	err := s.serve(ctx, channel)
	if s.terminating() {
		err = nil
	}
	s.Terminate()
	if err != nil {
		s.log.WithError(err).Warn("session closed on channel error")
	}
	return err
}

func (s *Session) serve(ctx context.Context, channel io.ReadWriter) error {
	reader := bufio.NewReader(channel)
	writer := bufio.NewWriter(channel)
	decoder := json.NewDecoder(reader)
	encoder := json.NewEncoder(writer)

	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode message: %w", err)
		}

		response := s.handleMessage(ctx, raw)
		if response == nil {
			continue
		}

		if err := encoder.Encode(response); err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
		if err := writer.Flush(); err != nil {
			return fmt.Errorf("failed to flush response: %w", err)
		}
	}
}

// handleMessage decodes one well-formed JSON value into a request. Values
// that are not request objects get an InvalidRequest response with a null id.
func (s *Session) handleMessage(ctx context.Context, raw json.RawMessage) *protocol.Response {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return protocol.NewErrorResponse(nil, protocol.NewInvalidRequest("Invalid request: expected a JSON object"))
	}

	var request protocol.Request
	if err := json.Unmarshal(trimmed, &request); err != nil {
		return protocol.NewErrorResponse(nil, protocol.NewInvalidRequest("Invalid request: %v", err))
	}
	return s.handler.Handle(ctx, &request)
}

// Terminate closes the channel without waiting for queued input. It is safe
// to call at any time and more than once.
func (s *Session) Terminate() {
	s.mu.Lock()
	switch s.state {
	case StateUninitialized:
		s.state = StateClosed
		close(s.done)
		s.mu.Unlock()
		return
	case StateRunning:
		s.state = StateClosing
	default:
		s.mu.Unlock()
		return
	}
	channel := s.channel
	s.mu.Unlock()

	if err := channel.Close(); err != nil {
		s.log.WithError(err).Debug("closing channel")
	}

	s.mu.Lock()
	s.state = StateClosed
	close(s.done)
	s.mu.Unlock()
	s.log.Debug("session closed")
}

func (s *Session) terminating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateClosing || s.state == StateClosed
}
