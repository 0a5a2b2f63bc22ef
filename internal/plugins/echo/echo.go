// Package echo implements a reference "echo" tool, sufficient to exercise
// the dispatch/security pipeline end to end. It has no external
// dependencies or state, and exists purely to give that pipeline a
// concrete plugin to route through.
package echo

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"mcpsentry/internal/mcptypes"
)

// ToolName is the name this plugin registers under.
const ToolName = "echo"

// echoArgs is reflected into the tool's input_schema at registration time.
type echoArgs struct {
	Message string `json:"message" jsonschema:"required,description=Text to echo back"`
}

// Plugin implements dispatch.Plugin. It holds no state: Execute is a pure
// function of its arguments.
type Plugin struct{}

// New returns the echo plugin.
func New() *Plugin { return &Plugin{} }

// Definition returns the tool's registration metadata, generating
// input_schema by struct reflection rather than hand-written JSON.
func Definition() (mcptypes.ToolDefinition, error) {
	reflector := jsonschema.Reflector{ExpandedStruct: true}
	schema := reflector.Reflect(&echoArgs{})
	raw, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return mcptypes.ToolDefinition{}, fmt.Errorf("echo: generate schema: %w", err)
	}
	return mcptypes.ToolDefinition{
		Name:        ToolName,
		Description: "Echoes the given message back unchanged.",
		InputSchema: raw,
	}, nil
}

// Execute returns the message argument verbatim as a text result.
func (p *Plugin) Execute(tool string, args map[string]any) (mcptypes.ToolResult, error) {
	message, ok := args["message"].(string)
	if !ok {
		return mcptypes.ToolResult{}, fmt.Errorf("echo: missing or non-string message argument")
	}
	return mcptypes.TextResult(message), nil
}
