// Package repository defines the backing-client contract the MCP server
// consumes: listing, reading and searching files of a hosted repository.
//
// A call either succeeds with a value or fails with an error whose message is
// the failure reason. Callers branch on the error being nil; the only
// distinctions they draw are the sentinels below, checked with errors.Is.
package repository

import (
	"context"
	"errors"
)

var (
	// ErrNotFile means ReadFile addressed something other than a regular file
	// with inline content: a directory, symlink, submodule or a file too large
	// to be returned inline.
	ErrNotFile = errors.New("not a file")

	// ErrNotDirectory means ListFiles addressed a file
	ErrNotDirectory = errors.New("not a directory")
)

// Backend performs the actual repository reads and searches. Implementations
// must be safe for concurrent use; each session calls it from one goroutine
// but several sessions may share it.
type Backend interface {
	// ListFiles lists the entries of dir ("" is the repository root)
	ListFiles(ctx context.Context, owner, repo, dir string) ([]Entry, error)
	// ReadFile returns the decoded content of the file at path
	ReadFile(ctx context.Context, owner, repo, path string) ([]byte, error)
	// Search runs a code search restricted to owner/repo
	Search(ctx context.Context, owner, repo, query string) (*SearchResults, error)
}

// Entry is one item of a directory listing
type Entry struct {
	Name        string `json:"name"`
	Path        string `json:"path,omitempty"`
	SHA         string `json:"sha,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Type        string `json:"type,omitempty"` // file, dir, symlink, submodule
	URL         string `json:"url,omitempty"`
	HTMLURL     string `json:"html_url,omitempty"`
	GitURL      string `json:"git_url,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

// SearchResults is the result set of a code search
type SearchResults struct {
	TotalCount        int          `json:"total_count"`
	IncompleteResults bool         `json:"incomplete_results"`
	Items             []SearchItem `json:"items"`
}

// SearchItem is one code search hit
type SearchItem struct {
	Name       string         `json:"name"`
	Path       string         `json:"path"`
	SHA        string         `json:"sha,omitempty"`
	URL        string         `json:"url,omitempty"`
	HTMLURL    string         `json:"html_url,omitempty"`
	Score      float64        `json:"score,omitempty"`
	Repository *RepositoryRef `json:"repository,omitempty"`
}

// RepositoryRef names the repository a search hit belongs to
type RepositoryRef struct {
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url,omitempty"`
}
