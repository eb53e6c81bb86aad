// Package github implements repository.Backend over the GitHub REST API.
//
// Requests are sent over HTTPS with an optional bearer token. GET responses
// carrying an ETag are kept in a ResponseCache and revalidated with
// If-None-Match, so unchanged listings do not spend rate-limit quota.
// There is no retry and no request timeout: a hung request hangs the caller.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"repo-mcp/internal/logging"

	"github.com/sirupsen/logrus"
)

// apiVersion is sent as X-GitHub-Api-Version on every request
const apiVersion = "2022-11-28"

// DefaultBaseURL is the public GitHub API
const DefaultBaseURL = "https://api.github.com"

const defaultUserAgent = "repo-mcp"

// maxResponseSize bounds how much of a response body is read
const maxResponseSize = 32 << 20

// Config holds configuration for creating a Client
type Config struct {
	// BaseURL defaults to DefaultBaseURL. Must use HTTPS.
	BaseURL string

	// Token is a personal access or fine-grained token. Empty sends
	// unauthenticated requests.
	Token string

	// HTTPClient defaults to http.DefaultClient
	HTTPClient *http.Client

	// Cache stores ETag-validated response bodies. Defaults to an in-memory
	// cache; use NoCache to disable.
	Cache ResponseCache

	// Logger defaults to a discarding logger
	Logger *logrus.Entry

	// UserAgent defaults to "repo-mcp"
	UserAgent string
}

// Client is a GitHub REST API client
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
	cache      ResponseCache
	log        *logrus.Entry
}

// NewClient creates a client from the configuration
func NewClient(config Config) (*Client, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	if !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("github: API client requires HTTPS (got %q)", baseURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	cache := config.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		baseURL:    baseURL,
		token:      config.Token,
		userAgent:  userAgent,
		httpClient: httpClient,
		cache:      cache,
		log:        logger.WithField("component", "github"),
	}, nil
}

// Authenticated reports whether requests carry a token
func (c *Client) Authenticated() bool {
	return c.token != ""
}

// get performs a GET against path (relative to the base URL, including any
// query string) and returns the response body.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	url := c.baseURL + path

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("github: creating request: %w", err)
	}
	request.Header.Set("Accept", "application/vnd.github+json")
	request.Header.Set("X-GitHub-Api-Version", apiVersion)
	request.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	cachedETag, cachedBody, cached := c.cache.Get(url)
	if cached && cachedETag != "" {
		request.Header.Set("If-None-Match", cachedETag)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("github: GET %s: %w", url, err)
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotModified && cached {
		c.log.WithField("url", url).Debug("served from ETag cache")
		return cachedBody, nil
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("github: reading response body: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		apiErr := parseAPIError(response.StatusCode, body)
		if IsRateLimited(apiErr) {
			c.log.WithFields(logrus.Fields{
				"url":       url,
				"remaining": response.Header.Get("X-RateLimit-Remaining"),
				"reset":     response.Header.Get("X-RateLimit-Reset"),
			}).Warn("rate limited by GitHub")
		}
		return nil, apiErr
	}

	if etag := response.Header.Get("ETag"); etag != "" {
		if err := c.cache.Put(url, etag, body); err != nil {
			c.log.WithError(err).WithField("url", url).Warn("failed to cache response")
		}
	}

	return body, nil
}

// getJSON performs a GET and decodes the body into result
func (c *Client) getJSON(ctx context.Context, path string, result any) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("github: decoding response: %w", err)
	}
	return nil
}
