package server

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names
const (
	ToolGetFileContent   = "get_file_content"
	ToolSearchRepository = "search_repository"
)

const resourceMIMEType = "application/json"

// resourceURIPattern matches github://<owner>/<repo>/files
var resourceURIPattern = regexp.MustCompile(`^github://([^/]+)/([^/]+)/files$`)

// ResourceURI returns the file-listing resource URI for owner/repo
func ResourceURI(owner, repo string) string {
	return fmt.Sprintf("github://%s/%s/files", owner, repo)
}

// ParseResourceURI extracts owner and repo from a file-listing URI
func ParseResourceURI(uri string) (owner, repo string, ok bool) {
	m := resourceURIPattern.FindStringSubmatch(uri)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Registry holds the immutable resource and tool descriptors advertised for
// one bound repository.
type Registry struct {
	owner     string
	repo      string
	resources []mcp.Resource
	tools     []mcp.Tool
}

// NewRegistry builds the descriptors for owner/repo
func NewRegistry(owner, repo string) (*Registry, error) {
	if owner == "" || repo == "" {
		return nil, errors.New("registry: owner and repo are required")
	}

	files := mcp.NewResource(
		ResourceURI(owner, repo),
		fmt.Sprintf("Files in %s/%s", owner, repo),
		mcp.WithResourceDescription("List of files in the repository"),
		mcp.WithMIMEType(resourceMIMEType),
	)

	getFileContent := mcp.NewTool(ToolGetFileContent,
		mcp.WithDescription("Get content of a file from the repository"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the file in the repository"),
		),
	)

	searchRepository := mcp.NewTool(ToolSearchRepository,
		mcp.WithDescription("Search for files in the repository"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
	)

	return &Registry{
		owner:     owner,
		repo:      repo,
		resources: []mcp.Resource{files},
		tools:     []mcp.Tool{getFileContent, searchRepository},
	}, nil
}

// Owner returns the bound repository owner
func (r *Registry) Owner() string { return r.owner }

// Repo returns the bound repository name
func (r *Registry) Repo() string { return r.repo }

// ListResources returns the advertised resources
func (r *Registry) ListResources() []mcp.Resource {
	return append([]mcp.Resource(nil), r.resources...)
}

// ListTools returns the advertised tools in declaration order
func (r *Registry) ListTools() []mcp.Tool {
	return append([]mcp.Tool(nil), r.tools...)
}

// Tool looks up a tool descriptor by name
func (r *Registry) Tool(name string) (mcp.Tool, bool) {
	for _, tool := range r.tools {
		if tool.Name == name {
			return tool, true
		}
	}
	return mcp.Tool{}, false
}
