package mcptypes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextResult(t *testing.T) {
	r := TextResult("hello")
	assert.False(t, r.IsError)
	require.Len(t, r.Content, 1)
	assert.Equal(t, "text", r.Content[0].Type)
	assert.Equal(t, "hello", r.Content[0].Text)
}

func TestErrorResult(t *testing.T) {
	r := ErrorResult("Rate limit exceeded")
	assert.True(t, r.IsError)
	assert.Equal(t, "Rate limit exceeded", r.Content[0].Text)
}

func TestToMCPText_RoundTrip(t *testing.T) {
	cb := TextBlock("hi")
	mcpContent := cb.ToMCPText()
	back := FromMCPText(mcpContent)
	assert.Equal(t, cb, back)
}

func TestImageBlock_MarshalsDataAndMimeTypeOnly(t *testing.T) {
	cb := ImageBlock("Zm9v", "image/png")
	assert.Equal(t, "image", cb.Type)

	b, err := json.Marshal(cb)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"image","data":"Zm9v","mimeType":"image/png"}`, string(b))
}

func TestResourceBlock_MarshalsURIAndOptionalText(t *testing.T) {
	withText := ResourceBlock("file:///tmp/x.txt", "text/plain", "contents")
	b, err := json.Marshal(withText)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"resource","uri":"file:///tmp/x.txt","mimeType":"text/plain","text":"contents"}`, string(b))

	withoutText := ResourceBlock("file:///tmp/x.bin", "application/octet-stream", "")
	b, err = json.Marshal(withoutText)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"resource","uri":"file:///tmp/x.bin","mimeType":"application/octet-stream"}`, string(b))
}

func TestToolDefinition_MarshalsInputSchemaVerbatim(t *testing.T) {
	td := ToolDefinition{
		Name:        "echo",
		Description: "echoes its input",
		InputSchema: json.RawMessage(`{"type":"object"}`),
	}

	b, err := json.Marshal(td)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"echo","description":"echoes its input","inputSchema":{"type":"object"}}`, string(b))
}
