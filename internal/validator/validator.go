// Package validator implements the three-layer input validation pipeline:
// a message-size ceiling, JSON-Schema Draft 2020-12 validation of tool
// arguments, and recursive sanitization of path/command/url fields. It
// follows reglet-dev-reglet-sdk's application/validation/validator.go for
// the santhosh-tekuri/jsonschema/v5 compile-and-validate shape.
package validator

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"mcpsentry/internal/argtree"
	"mcpsentry/internal/firewall"
	"mcpsentry/internal/policy"
	"mcpsentry/pkg/fileops"
)

// MaxMessageBytes is the reject ceiling (§4.4a) enforced on the raw JSON
// text before parsing. It lives here because the ceiling is part of the
// validator's policy even though it is applied at the JSON-RPC framing
// layer (internal/jsonrpc imports this constant rather than duplicating
// it).
const MaxMessageBytes = 1 << 20 // 1 MiB

// maxFieldBytes bounds any single string leaf in a sanitized arguments
// tree (§4.4c).
const maxFieldBytes = 8 * 1024 // 8 KiB

// Validator applies schema validation and sanitization to tool call
// arguments against a Policy and Firewall.
type Validator struct {
	policy   *policy.Policy
	firewall *firewall.Firewall
	roots    []string

	compiler *jsonschema.Compiler

	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

// New returns a Validator enforcing p, delegating URL checks to fw.
func New(p *policy.Policy, fw *firewall.Firewall) *Validator {
	return &Validator{
		policy:   p,
		firewall: fw,
		roots:    allowedRoots(p.Filesystem.AllowedGlobs),
		compiler: jsonschema.NewCompiler(),
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// allowedRoots derives concrete filesystem roots from glob patterns by
// taking the literal prefix before the first wildcard character, for use
// with fileops.CanonicalizeWithinRoots's symlink-escape detection.
func allowedRoots(globs []string) []string {
	roots := make([]string, 0, len(globs))
	for _, g := range globs {
		roots = append(roots, globRoot(g))
	}
	return roots
}

func globRoot(pattern string) string {
	idx := strings.IndexAny(pattern, "*?[{")
	if idx < 0 {
		return pattern
	}
	return dirOf(pattern[:idx])
}

func dirOf(prefix string) string {
	i := strings.LastIndexByte(prefix, '/')
	if i < 0 {
		return prefix
	}
	if i == 0 {
		return "/"
	}
	return prefix[:i]
}

// Validate runs schema validation followed by sanitization against args,
// for the given tool and its declared input_schema (raw JSON-Schema
// document). It returns a new, cleaned arguments map; the caller's args is
// never mutated.
func (v *Validator) Validate(tool string, schemaJSON []byte, args map[string]any) (map[string]any, error) {
	schema, err := v.compileSchema(tool, schemaJSON)
	if err != nil {
		return nil, newValidationError("", "schema configuration error", err.Error())
	}

	if err := schema.Validate(args); err != nil {
		return nil, schemaValidationError(err)
	}

	tree := argtree.FromAny(args)
	walked, err := argtree.Walk(tree, v.sanitizeField)
	if err != nil {
		return nil, err
	}

	cleaned, ok := walked.ToAny().(map[string]any)
	if !ok {
		return nil, newValidationError("", "arguments must be an object", "top-level arguments value was not a JSON object")
	}
	return cleaned, nil
}

func (v *Validator) compileSchema(tool string, schemaJSON []byte) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if schema, ok := v.compiled[tool]; ok {
		return schema, nil
	}

	if err := v.compiler.AddResource(tool, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", tool, err)
	}
	schema, err := v.compiler.Compile(tool)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", tool, err)
	}

	v.compiled[tool] = schema
	return schema, nil
}

var quotedLocationPattern = regexp.MustCompile(`'([^']*)'`)

func schemaValidationError(err error) *ValidationError {
	var ve *jsonschema.ValidationError
	detail := err.Error()
	pointer := ""
	if errors.As(err, &ve) {
		if m := quotedLocationPattern.FindStringSubmatch(ve.Error()); len(m) == 2 {
			pointer = m[1]
		}
	}
	return newValidationError(pointer, "input failed schema validation", detail)
}

// sanitizeField implements the key-driven sanitization rules of §4.4c. It
// is the "visitor that knows which keys trigger path/command/URL
// sanitization" called for by the design notes.
func (v *Validator) sanitizeField(key string, val argtree.Value) (argtree.Value, error) {
	if val.Kind() != argtree.KindString {
		return val, nil
	}

	s := val.Str()
	if len(s) > maxFieldBytes {
		return argtree.Value{}, newValidationError(
			"arguments."+key, "field too long",
			fmt.Sprintf("field %q is %d bytes, exceeds %d byte ceiling", key, len(s), maxFieldBytes),
		)
	}

	lower := strings.ToLower(key)
	switch {
	case strings.HasSuffix(lower, "path") || lower == "project_path":
		return v.sanitizePath(key, s)
	case lower == "command" || lower == "cmd":
		if v.policy.IsCommandBlocked(s) {
			return argtree.Value{}, newValidationError(
				"arguments."+key, "command blocked",
				fmt.Sprintf("command %q is blocked by policy", s),
			)
		}
		return val, nil
	case strings.Contains(lower, "url"):
		if err := v.firewall.ValidateURL(s); err != nil {
			return argtree.Value{}, newValidationError("arguments."+key, "url blocked", err.Error())
		}
		return val, nil
	default:
		return val, nil
	}
}

func (v *Validator) sanitizePath(key, raw string) (argtree.Value, error) {
	canonical, err := fileops.CanonicalizeWithinRoots(raw, v.roots)
	if err != nil {
		return argtree.Value{}, newValidationError(
			"arguments."+key, "path denied",
			fmt.Sprintf("path %q rejected: %v", raw, err),
		)
	}

	if fileops.IsReservedDirectory(canonical) {
		return argtree.Value{}, newValidationError(
			"arguments."+key, "path denied",
			fmt.Sprintf("path %q resolves into a reserved system directory", raw),
		)
	}

	decision := v.policy.MatchFS(canonical)
	if decision == policy.Denied || decision == policy.Outside {
		return argtree.Value{}, newValidationError(
			"arguments."+key, "path denied",
			fmt.Sprintf("path %q resolved to %q, policy decision %s", raw, canonical, decision),
		)
	}

	return argtree.String(canonical), nil
}
