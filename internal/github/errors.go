package github

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError represents a non-2xx response from the GitHub REST API
type APIError struct {
	// StatusCode is the HTTP response status code
	StatusCode int

	// Message is the top-level error description from GitHub, or the raw
	// body when it is not a GitHub error document
	Message string

	// DocumentationURL points to the relevant API documentation
	DocumentationURL string
}

func (err *APIError) Error() string {
	return fmt.Sprintf("github: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsNotFound reports whether err is a GitHub API 404 response
func IsNotFound(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 response (bad or missing token)
func IsUnauthorized(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == http.StatusUnauthorized
}

// IsRateLimited reports whether err is a rate limit response. GitHub answers
// 403 for the primary limit and 429 for secondary limits.
func IsRateLimited(err error) bool {
	var apiError *APIError
	if !errors.As(err, &apiError) {
		return false
	}
	if apiError.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if apiError.StatusCode != http.StatusForbidden {
		return false
	}
	lower := strings.ToLower(apiError.Message)
	return strings.Contains(lower, "rate limit") || strings.Contains(lower, "abuse detection")
}

// parseAPIError builds an APIError from a status code and response body
func parseAPIError(statusCode int, body []byte) *APIError {
	apiError := &APIError{StatusCode: statusCode}

	var wireError struct {
		Message          string `json:"message"`
		DocumentationURL string `json:"documentation_url"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Message != "" {
		apiError.Message = wireError.Message
		apiError.DocumentationURL = wireError.DocumentationURL
	} else if text := strings.TrimSpace(string(body)); text != "" {
		apiError.Message = text
	} else {
		apiError.Message = http.StatusText(statusCode)
	}

	return apiError
}
