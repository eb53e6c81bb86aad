package server

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
)

func TestValidateArguments(t *testing.T) {
	schema := mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"path":  map[string]any{"type": "string"},
			"limit": map[string]any{"type": "number"},
			"deep":  map[string]any{"type": "boolean"},
			"opts":  map[string]any{"type": "object"},
			"tags":  map[string]any{"type": "array"},
			"any":   map[string]any{},
		},
		Required: []string{"path"},
	}

	tests := []struct {
		name    string
		args    map[string]any
		wantErr string
	}{
		{name: "required only", args: map[string]any{"path": "a.txt"}},
		{name: "all declared", args: map[string]any{
			"path": "a", "limit": 3.0, "deep": true,
			"opts": map[string]any{}, "tags": []any{"x"}, "any": 1.0,
		}},
		{name: "extra arguments ignored", args: map[string]any{"path": "a", "unknown": 1.0}},
		{name: "missing required", args: map[string]any{}, wantErr: `missing required argument "path"`},
		{name: "null required", args: map[string]any{"path": nil}, wantErr: `missing required argument "path"`},
		{name: "wrong required type", args: map[string]any{"path": 5.0}, wantErr: `argument "path" must be of type string`},
		{name: "wrong optional type", args: map[string]any{"path": "a", "deep": "yes"}, wantErr: `argument "deep" must be of type boolean`},
		{name: "null optional allowed", args: map[string]any{"path": "a", "limit": nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateArguments(schema, tt.args)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestValidateArguments_DeterministicOrder(t *testing.T) {
	schema := mcp.ToolInputSchema{
		Properties: map[string]any{
			"b": map[string]any{"type": "string"},
			"a": map[string]any{"type": "string"},
		},
	}
	for i := 0; i < 10; i++ {
		err := validateArguments(schema, map[string]any{"a": 1.0, "b": 2.0})
		assert.EqualError(t, err, `argument "a" must be of type string`)
	}
}

func TestHasJSONType(t *testing.T) {
	assert.True(t, hasJSONType(2.0, "integer"))
	assert.False(t, hasJSONType(2.5, "integer"))
	assert.True(t, hasJSONType("x", "custom"))
}
