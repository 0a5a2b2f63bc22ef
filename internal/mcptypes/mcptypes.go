// Package mcptypes defines the wire shapes for tools/list and tools/call
// results, and bridges to github.com/mark3labs/mcp-go/mcp's content-block
// type for the handful of places content blocks need to interoperate
// with that library's own representation.
package mcptypes

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// ContentBlock is one entry of a tool result's content array: a "text"
// block ({type, text}), an "image" block ({type, data, mimeType}), or a
// "resource" block ({type, uri, mimeType, text?}). Fields outside the
// active variant are omitted from the wire form via omitempty.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// TextBlock returns a "text" content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// ImageBlock returns an "image" content block. data is base64-encoded
// image bytes, mimeType its media type (e.g. "image/png").
func ImageBlock(data, mimeType string) ContentBlock {
	return ContentBlock{Type: "image", Data: data, MimeType: mimeType}
}

// ResourceBlock returns a "resource" content block referencing uri. text
// is optional inline content for text-representable resources; pass ""
// to omit it.
func ResourceBlock(uri, mimeType, text string) ContentBlock {
	return ContentBlock{Type: "resource", URI: uri, MimeType: mimeType, Text: text}
}

// ToMCPText converts to mark3labs/mcp-go's TextContent, for interop with
// code written against that library's Content type.
func (cb ContentBlock) ToMCPText() mcp.TextContent {
	return mcp.TextContent{Type: cb.Type, Text: cb.Text}
}

// FromMCPText converts a mark3labs/mcp-go TextContent into our wire
// ContentBlock.
func FromMCPText(c mcp.TextContent) ContentBlock {
	return ContentBlock{Type: c.Type, Text: c.Text}
}

// ToolResult is the result of tools/call: a content array plus an
// isError flag. Tool-level failures (validation, rate limit, timeout,
// plugin panic) are represented here with IsError:true rather than as
// JSON-RPC errors.
type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError"`
}

// TextResult builds a successful single-text-block result.
func TextResult(text string) ToolResult {
	return ToolResult{Content: []ContentBlock{TextBlock(text)}, IsError: false}
}

// ErrorResult builds a failed single-text-block result. text is always a
// generic, client-safe message; callers must never pass internal
// diagnostic detail here (that belongs in the audit log only).
func ErrorResult(text string) ToolResult {
	return ToolResult{Content: []ContentBlock{TextBlock(text)}, IsError: true}
}

// ToolDefinition describes one registered tool, as returned by tools/list.
// InputSchema is the tool's raw JSON-Schema document (Draft 2020-12),
// stored and forwarded verbatim rather than decoded into a typed schema
// struct, since mcp-go's own Tool.InputSchema shape has changed across
// versions and this wire contract is fixed independently of it.
//
// Tags is never serialized; it exists only so Dispatcher can filter a
// tool out of tools/list for clients that declare narrower capabilities
// at initialize (progressive disclosure). A tool with no tags is always
// visible.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
	Tags        []string        `json:"-"`
}
