package server

import (
	"context"
	"encoding/json"

	"repo-mcp/internal/mcp/protocol"

	"github.com/mark3labs/mcp-go/mcp"
)

// readResource serves the file listing addressed by uri. The owner and repo
// come from the URI itself, not from the registry binding.
func (d *Dispatcher) readResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	owner, repo, ok := ParseResourceURI(uri)
	if !ok {
		return nil, protocol.NewInvalidRequest("Invalid URI format: %s", uri)
	}

	entries, err := d.backend.ListFiles(ctx, owner, repo, "")
	if err != nil {
		return nil, protocol.NewInternalError("GitHub API error: %s", err.Error())
	}

	text, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, err
	}

	return &mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      uri,
				MIMEType: resourceMIMEType,
				Text:     string(text),
			},
		},
	}, nil
}
