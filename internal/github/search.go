package github

import (
	"context"
	"fmt"
	"net/url"

	"repo-mcp/internal/repository"
)

// searchQuery restricts query to owner/repo using GitHub search qualifiers
func searchQuery(owner, repo, query string) string {
	return fmt.Sprintf("%s repo:%s/%s", query, owner, repo)
}

// Search runs a code search restricted to owner/repo
func (c *Client) Search(ctx context.Context, owner, repo, query string) (*repository.SearchResults, error) {
	values := url.Values{}
	values.Set("q", searchQuery(owner, repo, query))

	var results repository.SearchResults
	if err := c.getJSON(ctx, "/search/code?"+values.Encode(), &results); err != nil {
		return nil, err
	}
	if results.Items == nil {
		results.Items = []repository.SearchItem{}
	}
	return &results, nil
}
