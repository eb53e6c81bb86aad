package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"repo-mcp/internal/mcp/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler echoes the method back and tracks concurrency
type recordingHandler struct {
	mu       sync.Mutex
	methods  []string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (h *recordingHandler) Handle(_ context.Context, req *protocol.Request) *protocol.Response {
	n := h.inFlight.Add(1)
	defer h.inFlight.Add(-1)
	if n > h.maxSeen.Load() {
		h.maxSeen.Store(n)
	}
	time.Sleep(h.delay)

	h.mu.Lock()
	h.methods = append(h.methods, req.Method)
	h.mu.Unlock()

	if req.IsNotification() {
		return nil
	}
	return protocol.NewResult(req.ID, map[string]string{"method": req.Method})
}

// startSession serves a new session over one end of a net.Pipe and returns
// the client end.
func startSession(t *testing.T, handler Handler) (*Session, net.Conn, <-chan error) {
	t.Helper()
	serverEnd, clientEnd := net.Pipe()
	session := NewSession(handler, nil)
	errCh := make(chan error, 1)
	go func() {
		errCh <- session.Serve(context.Background(), serverEnd)
	}()
	t.Cleanup(func() {
		clientEnd.Close()
		session.Terminate()
	})
	return session, clientEnd, errCh
}

func waitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
		return nil
	}
}

func TestSession_OrderedResponses(t *testing.T) {
	handler := &recordingHandler{delay: 5 * time.Millisecond}
	_, conn, errCh := startSession(t, handler)

	go func() {
		for i := 1; i <= 5; i++ {
			fmt.Fprintf(conn, `{"jsonrpc":"2.0","id":%d,"method":"m%d"}`+"\n", i, i)
		}
	}()

	decoder := json.NewDecoder(conn)
	for i := 1; i <= 5; i++ {
		var resp protocol.Response
		require.NoError(t, decoder.Decode(&resp))
		assert.Equal(t, json.RawMessage(fmt.Sprint(i)), resp.ID)
	}

	conn.Close()
	assert.NoError(t, waitErr(t, errCh))
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5"}, handler.methods)
	assert.Equal(t, int32(1), handler.maxSeen.Load())
}

func TestSession_NotificationsGetNoResponse(t *testing.T) {
	handler := &recordingHandler{}
	_, conn, errCh := startSession(t, handler)

	go func() {
		fmt.Fprint(conn, `{"jsonrpc":"2.0","method":"notifications/initialized"}`+"\n")
		fmt.Fprint(conn, `{"jsonrpc":"2.0","id":"after","method":"ping"}`+"\n")
	}()

	var resp protocol.Response
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	assert.Equal(t, json.RawMessage(`"after"`), resp.ID)

	conn.Close()
	assert.NoError(t, waitErr(t, errCh))
	assert.Equal(t, []string{"notifications/initialized", "ping"}, handler.methods)
}

func TestSession_InvalidRequestObjects(t *testing.T) {
	handler := &recordingHandler{}
	_, conn, errCh := startSession(t, handler)

	go func() {
		fmt.Fprint(conn, `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`+"\n")
		fmt.Fprint(conn, `{"jsonrpc":"2.0","id":2,"method":5}`+"\n")
	}()

	decoder := json.NewDecoder(conn)
	for i := 0; i < 2; i++ {
		var resp protocol.Response
		require.NoError(t, decoder.Decode(&resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, protocol.InvalidRequest, resp.Error.Code)
		assert.Equal(t, json.RawMessage("null"), resp.ID)
	}

	conn.Close()
	assert.NoError(t, waitErr(t, errCh))
	assert.Empty(t, handler.methods)
}

func TestSession_DecodeErrorIsFatal(t *testing.T) {
	handler := &recordingHandler{}
	session, conn, errCh := startSession(t, handler)

	go fmt.Fprint(conn, "{not json\n")

	err := waitErr(t, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode message")
	assert.Equal(t, StateClosed, session.State())

	select {
	case <-session.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestSession_WriteErrorIsFatal(t *testing.T) {
	reader, writer := io.Pipe()
	channel := &brokenWriter{Reader: reader}
	session := NewSession(&recordingHandler{}, nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- session.Serve(context.Background(), channel)
	}()

	go fmt.Fprint(writer, `{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n")

	err := waitErr(t, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to flush response")
	assert.True(t, channel.closed.Load())
}

type brokenWriter struct {
	io.Reader
	closed atomic.Bool
}

func (b *brokenWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func (b *brokenWriter) Close() error {
	b.closed.Store(true)
	if r, ok := b.Reader.(io.Closer); ok {
		return r.Close()
	}
	return nil
}

func TestSession_EOFEndsCleanly(t *testing.T) {
	session, conn, errCh := startSession(t, &recordingHandler{})
	conn.Close()
	assert.NoError(t, waitErr(t, errCh))
	assert.Equal(t, StateClosed, session.State())
}

func TestSession_Terminate(t *testing.T) {
	handler := &recordingHandler{}
	session, conn, errCh := startSession(t, handler)

	// a message already in the channel is handled
	fmt.Fprint(conn, `{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n")
	reader := bufio.NewReader(conn)
	_, err := reader.ReadBytes('\n')
	require.NoError(t, err)
	assert.Equal(t, StateRunning, session.State())

	session.Terminate()
	assert.NoError(t, waitErr(t, errCh))
	assert.Equal(t, StateClosed, session.State())

	// the channel is closed: writes from the peer fail
	_, err = conn.Write([]byte(`{"jsonrpc":"2.0","id":2,"method":"ping"}` + "\n"))
	assert.Error(t, err)

	// idempotent
	session.Terminate()
	assert.Equal(t, StateClosed, session.State())
}

func TestSession_ContextCancellation(t *testing.T) {
	serverEnd, clientEnd := net.Pipe()
	defer clientEnd.Close()

	ctx, cancel := context.WithCancel(context.Background())
	session := NewSession(&recordingHandler{}, nil)
	errCh := make(chan error, 1)
	go func() {
		errCh <- session.Serve(ctx, serverEnd)
	}()

	cancel()
	assert.NoError(t, waitErr(t, errCh))
	<-session.Done()
	assert.Equal(t, StateClosed, session.State())
}

func TestSession_ServesOnce(t *testing.T) {
	session, conn, errCh := startSession(t, &recordingHandler{})
	conn.Close()
	require.NoError(t, waitErr(t, errCh))

	serverEnd, clientEnd := net.Pipe()
	defer clientEnd.Close()
	assert.ErrorIs(t, session.Serve(context.Background(), serverEnd), ErrSessionUsed)
}

func TestSession_TerminateBeforeServe(t *testing.T) {
	session := NewSession(&recordingHandler{}, nil)
	assert.Equal(t, StateUninitialized, session.State())
	session.Terminate()
	assert.Equal(t, StateClosed, session.State())
	<-session.Done()
}

func TestSession_WithDispatcher(t *testing.T) {
	backend := newFakeBackend()
	_, conn, errCh := startSession(t, newTestDispatcher(t, backend))

	go func() {
		fmt.Fprint(conn, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_file_content","arguments":{"path":"README.md"}}}`+"\n")
		fmt.Fprint(conn, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"nope","arguments":{}}}`+"\n")
	}()

	decoder := json.NewDecoder(conn)

	var first struct {
		ID     int                  `json:"id"`
		Result protocol.ToolResult `json:"result"`
	}
	require.NoError(t, decoder.Decode(&first))
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, "# widgets\n", first.Result.Text())

	var second protocol.Response
	require.NoError(t, decoder.Decode(&second))
	require.NotNil(t, second.Error)
	assert.Equal(t, protocol.MethodNotFound, second.Error.Code)

	conn.Close()
	assert.NoError(t, waitErr(t, errCh))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "closing", StateClosing.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "State(9)", State(9).String())
}
