package server

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"repo-mcp/internal/mcp/protocol"
	"repo-mcp/internal/repository"

	"github.com/stretchr/testify/require"
)

// backendCall records one call made against fakeBackend
type backendCall struct {
	Op    string
	Owner string
	Repo  string
	Arg   string
}

// fakeBackend is an in-memory repository.Backend
type fakeBackend struct {
	mu      sync.Mutex
	calls   []backendCall
	entries []repository.Entry
	files   map[string]string
	results *repository.SearchResults

	listErr   error
	readErr   error
	searchErr error
	panicOn   string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		entries: []repository.Entry{
			{Name: "README.md", Path: "README.md", Type: "file", Size: 12},
			{Name: "src", Path: "src", Type: "dir"},
		},
		files: map[string]string{
			"README.md": "# widgets\n",
		},
		results: &repository.SearchResults{
			TotalCount: 1,
			Items: []repository.SearchItem{
				{Name: "main.go", Path: "src/main.go", SHA: "abc"},
			},
		},
	}
}

func (f *fakeBackend) record(op, owner, repo, arg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, backendCall{Op: op, Owner: owner, Repo: repo, Arg: arg})
	if f.panicOn == op {
		panic("backend exploded")
	}
}

func (f *fakeBackend) Calls() []backendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backendCall(nil), f.calls...)
}

func (f *fakeBackend) ListFiles(_ context.Context, owner, repo, dir string) ([]repository.Entry, error) {
	f.record("list", owner, repo, dir)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.entries, nil
}

func (f *fakeBackend) ReadFile(_ context.Context, owner, repo, path string) ([]byte, error) {
	f.record("read", owner, repo, path)
	if f.readErr != nil {
		return nil, f.readErr
	}
	content, ok := f.files[path]
	if !ok {
		return nil, repository.ErrNotFile
	}
	return []byte(content), nil
}

func (f *fakeBackend) Search(_ context.Context, owner, repo, query string) (*repository.SearchResults, error) {
	f.record("search", owner, repo, query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

// newTestDispatcher binds a dispatcher to acme/widgets over backend
func newTestDispatcher(t *testing.T, backend repository.Backend, opts ...DispatcherOption) *Dispatcher {
	t.Helper()
	registry, err := NewRegistry("acme", "widgets")
	require.NoError(t, err)
	return NewDispatcher(registry, backend, opts...)
}

// mustRequest builds a request with a numeric id; a nil id builds a notification
func mustRequest(t *testing.T, id any, method string, params any) *protocol.Request {
	t.Helper()
	req, err := protocol.NewRequest(id, method, params)
	require.NoError(t, err)
	return req
}

// decodeResult round-trips a response's result through JSON into v
func decodeResult(t *testing.T, resp *protocol.Response, v any) {
	t.Helper()
	require.NotNil(t, resp)
	require.Nil(t, resp.Error, "unexpected error response: %v", resp.Error)
	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}
