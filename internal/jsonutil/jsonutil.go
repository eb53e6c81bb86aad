// Package jsonutil formats JSON payloads returned by tools and resources
// for display and extracts parts of them with JSONPath expressions.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oliveagle/jsonpath"
)

// Pretty indents value. JSON documents embedded as strings are decoded in
// place so a resource body inside a result reads as structure. Non-JSON
// input is returned unchanged.
func Pretty(value string) string {
	var data any
	if err := json.Unmarshal([]byte(value), &data); err != nil {
		return value
	}

	pretty, err := json.MarshalIndent(expand(data), "", "  ")
	if err != nil {
		return value
	}
	return string(pretty)
}

func expand(data any) any {
	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[key] = expand(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = expand(val)
		}
		return out
	case string:
		if looksLikeJSON(v) {
			var nested any
			if err := json.Unmarshal([]byte(v), &nested); err == nil {
				return expand(nested)
			}
		}
		return v
	default:
		return v
	}
}

// looksLikeJSON reports whether s is delimited like an object or array
func looksLikeJSON(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return false
	}
	return (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"))
}

// Select evaluates a JSONPath expression such as $.items[*].path against a
// JSON document. A leading "$" is added when missing.
func Select(document, path string) (any, error) {
	var data any
	if err := json.Unmarshal([]byte(document), &data); err != nil {
		return nil, fmt.Errorf("jsonutil: document is not JSON: %w", err)
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("jsonutil: empty path")
	}
	if !strings.HasPrefix(path, "$") {
		path = "$." + strings.TrimPrefix(path, ".")
	}

	compiled, err := jsonpath.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("jsonutil: invalid path %q: %w", path, err)
	}
	result, err := compiled.Lookup(data)
	if err != nil {
		return nil, fmt.Errorf("jsonutil: %s: %w", path, err)
	}
	return result, nil
}

// Format renders a Select result: strings bare, everything else as
// indented JSON.
func Format(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(data)
}
