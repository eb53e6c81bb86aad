package metrics

import (
	"context"

	"repo-mcp/internal/repository"
)

type instrumentedBackend struct {
	next     repository.Backend
	recorder *Recorder
}

// Backend wraps b so every call is counted by r. A nil r returns b unchanged.
func Backend(b repository.Backend, r *Recorder) repository.Backend {
	if r == nil {
		return b
	}
	return &instrumentedBackend{next: b, recorder: r}
}

func (b *instrumentedBackend) ListFiles(ctx context.Context, owner, repo, dir string) ([]repository.Entry, error) {
	entries, err := b.next.ListFiles(ctx, owner, repo, dir)
	b.recorder.ObserveBackend("list_files", err)
	return entries, err
}

func (b *instrumentedBackend) ReadFile(ctx context.Context, owner, repo, path string) ([]byte, error) {
	content, err := b.next.ReadFile(ctx, owner, repo, path)
	b.recorder.ObserveBackend("read_file", err)
	return content, err
}

func (b *instrumentedBackend) Search(ctx context.Context, owner, repo, query string) (*repository.SearchResults, error) {
	results, err := b.next.Search(ctx, owner, repo, query)
	b.recorder.ObserveBackend("search", err)
	return results, err
}
