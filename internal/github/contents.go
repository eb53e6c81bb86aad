package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"repo-mcp/internal/repository"
)

var _ repository.Backend = (*Client)(nil)

// contentItem is the GitHub contents API object for a single entry
type contentItem struct {
	Type        string `json:"type"`
	Encoding    string `json:"encoding"`
	Size        int64  `json:"size"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	Content     string `json:"content"`
	SHA         string `json:"sha"`
	URL         string `json:"url"`
	GitURL      string `json:"git_url"`
	HTMLURL     string `json:"html_url"`
	DownloadURL string `json:"download_url"`
}

// contentsPath builds /repos/{owner}/{repo}/contents/{path} with every
// segment escaped. An empty path addresses the repository root.
func contentsPath(owner, repo, path string) string {
	var segments []string
	for _, segment := range strings.Split(strings.Trim(path, "/"), "/") {
		if segment != "" {
			segments = append(segments, url.PathEscape(segment))
		}
	}
	return fmt.Sprintf("/repos/%s/%s/contents/%s",
		url.PathEscape(owner), url.PathEscape(repo), strings.Join(segments, "/"))
}

// isJSONArray reports whether body holds a JSON array
func isJSONArray(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

// ListFiles lists the entries of dir
func (c *Client) ListFiles(ctx context.Context, owner, repo, dir string) ([]repository.Entry, error) {
	body, err := c.get(ctx, contentsPath(owner, repo, dir))
	if err != nil {
		return nil, err
	}
	if !isJSONArray(body) {
		return nil, fmt.Errorf("%s/%s:%s: %w", owner, repo, dir, repository.ErrNotDirectory)
	}

	var items []contentItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("github: decoding directory listing: %w", err)
	}

	entries := make([]repository.Entry, 0, len(items))
	for _, item := range items {
		entries = append(entries, repository.Entry{
			Name:        item.Name,
			Path:        item.Path,
			SHA:         item.SHA,
			Size:        item.Size,
			Type:        item.Type,
			URL:         item.URL,
			HTMLURL:     item.HTMLURL,
			GitURL:      item.GitURL,
			DownloadURL: item.DownloadURL,
		})
	}
	return entries, nil
}

// ReadFile returns the decoded content of the file at path
func (c *Client) ReadFile(ctx context.Context, owner, repo, path string) ([]byte, error) {
	body, err := c.get(ctx, contentsPath(owner, repo, path))
	if err != nil {
		return nil, err
	}
	if isJSONArray(body) {
		return nil, fmt.Errorf("%s: directory: %w", path, repository.ErrNotFile)
	}

	var item contentItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("github: decoding file: %w", err)
	}
	if item.Type != "file" {
		return nil, fmt.Errorf("%s: type %q: %w", path, item.Type, repository.ErrNotFile)
	}

	switch item.Encoding {
	case "base64":
		// GitHub wraps base64 content at 60 columns
		cleaned := strings.NewReplacer("\n", "", "\r", "").Replace(item.Content)
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("github: decoding file content: %w", err)
		}
		return decoded, nil
	case "":
		if item.Size == 0 {
			return []byte{}, nil
		}
		return []byte(item.Content), nil
	default:
		// "none" is returned for files above the inline size limit
		return nil, fmt.Errorf("%s: encoding %q: %w", path, item.Encoding, repository.ErrNotFile)
	}
}
