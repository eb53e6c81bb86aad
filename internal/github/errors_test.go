package github

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAPIError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantDocs    string
	}{
		{
			name:        "github error document",
			status:      404,
			body:        `{"message":"Not Found","documentation_url":"https://docs.github.com/rest"}`,
			wantMessage: "Not Found",
			wantDocs:    "https://docs.github.com/rest",
		},
		{
			name:        "plain text body",
			status:      502,
			body:        "bad gateway\n",
			wantMessage: "bad gateway",
		},
		{
			name:        "empty body falls back to status text",
			status:      503,
			body:        "",
			wantMessage: "Service Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parseAPIError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.status, err.StatusCode)
			assert.Equal(t, tt.wantMessage, err.Message)
			assert.Equal(t, tt.wantDocs, err.DocumentationURL)
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		wantNotFound    bool
		wantUnauth      bool
		wantRateLimited bool
	}{
		{name: "404", err: &APIError{StatusCode: 404, Message: "Not Found"}, wantNotFound: true},
		{name: "401", err: &APIError{StatusCode: 401, Message: "Bad credentials"}, wantUnauth: true},
		{name: "403 rate limit", err: &APIError{StatusCode: 403, Message: "API rate limit exceeded for user"}, wantRateLimited: true},
		{name: "403 permission", err: &APIError{StatusCode: 403, Message: "Resource not accessible"}},
		{name: "429", err: &APIError{StatusCode: 429, Message: "slow down"}, wantRateLimited: true},
		{name: "wrapped 404", err: fmt.Errorf("listing: %w", &APIError{StatusCode: 404}), wantNotFound: true},
		{name: "not an API error", err: errors.New("dial tcp: refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantNotFound, IsNotFound(tt.err))
			assert.Equal(t, tt.wantUnauth, IsUnauthorized(tt.err))
			assert.Equal(t, tt.wantRateLimited, IsRateLimited(tt.err))
		})
	}
}
