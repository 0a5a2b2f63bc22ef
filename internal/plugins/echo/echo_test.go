package echo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinition_GeneratesSchemaWithMessageField(t *testing.T) {
	def, err := Definition()
	require.NoError(t, err)
	assert.Equal(t, ToolName, def.Name)
	assert.NotEmpty(t, def.Description)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(def.InputSchema, &schema))
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	_, ok = props["message"]
	assert.True(t, ok)
}

func TestExecute_ReturnsMessageVerbatim(t *testing.T) {
	p := New()
	result, err := p.Execute(ToolName, map[string]any{"message": "hello there"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "hello there", result.Content[0].Text)
}

func TestExecute_MissingMessageIsError(t *testing.T) {
	p := New()
	_, err := p.Execute(ToolName, map[string]any{})
	assert.Error(t, err)
}
