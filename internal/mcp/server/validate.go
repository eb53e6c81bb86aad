package server

import (
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
)

// validateArguments checks args against schema: required properties must be
// present and non-null, declared properties must have the declared JSON
// type. Undeclared properties are ignored.
func validateArguments(schema mcp.ToolInputSchema, args map[string]any) error {
	for _, name := range schema.Required {
		value, ok := args[name]
		if !ok || value == nil {
			return fmt.Errorf("missing required argument %q", name)
		}
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value, ok := args[name]
		if !ok || value == nil {
			continue
		}
		property, _ := schema.Properties[name].(map[string]any)
		want, _ := property["type"].(string)
		if want != "" && !hasJSONType(value, want) {
			return fmt.Errorf("argument %q must be of type %s", name, want)
		}
	}
	return nil
}

// hasJSONType reports whether a decoded JSON value has the schema type want
func hasJSONType(value any, want string) bool {
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		f, ok := value.(float64)
		return ok && f == float64(int64(f))
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	default:
		return true
	}
}
