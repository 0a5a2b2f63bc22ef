// Package dispatch implements the plugin registry and tool routing
// table: tool_name → plugin and tool_name → input_schema maps populated
// at registration, O(1) Call lookup, and deterministic ListTools
// ordering (registration order, then name) — a handler-registry in
// place of a conditional chain.
package dispatch

import (
	"fmt"
	"sort"
	"sync"

	"mcpsentry/internal/mcptypes"
)

// Plugin executes one tool. Implementations that hold resources needing
// deterministic release (network pools, file handles) may additionally
// implement Closer; Dispatcher invokes Close on every registered plugin
// during shutdown.
type Plugin interface {
	Execute(tool string, args map[string]any) (mcptypes.ToolResult, error)
}

// Closer is an optional capability: plugins that hold resources across
// calls implement it so Dispatcher can release them on shutdown.
type Closer interface {
	Close() error
}

// ErrToolNotFound is returned by Call (and used by Server to build the
// unknown-tool invalid_params error) when no plugin is registered under
// the requested name.
type ErrToolNotFound struct {
	Tool string
}

func (e *ErrToolNotFound) Error() string { return fmt.Sprintf("unknown tool %s", e.Tool) }

// ErrDuplicateTool is returned by Register when def.Name is already
// registered: tool names are unique across all registered plugins, and a
// collision is a load-time configuration error, not a silent replace.
type ErrDuplicateTool struct {
	Tool string
}

func (e *ErrDuplicateTool) Error() string { return fmt.Sprintf("tool %s is already registered", e.Tool) }

type registration struct {
	def    mcptypes.ToolDefinition
	plugin Plugin
	order  int
}

// Dispatcher owns the registered plugins and their schemas.
type Dispatcher struct {
	mu        sync.RWMutex
	byName    map[string]*registration
	nextOrder int
	onChange  func()
}

// New returns an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{byName: make(map[string]*registration)}
}

// OnChange registers a callback invoked after Register/Unregister changes
// the tool set, used by Server to emit notifications/tools/list_changed.
func (d *Dispatcher) OnChange(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = fn
}

// Register adds a plugin under def.Name, taking ownership of it. A name
// already registered is a load-time error: tool names are unique across
// all registered plugins, so a collision is caught here rather than
// silently replacing the earlier registration.
func (d *Dispatcher) Register(def mcptypes.ToolDefinition, plugin Plugin) error {
	d.mu.Lock()
	if _, ok := d.byName[def.Name]; ok {
		d.mu.Unlock()
		return &ErrDuplicateTool{Tool: def.Name}
	}
	d.byName[def.Name] = &registration{def: def, plugin: plugin, order: d.nextOrder}
	d.nextOrder++
	onChange := d.onChange
	d.mu.Unlock()

	if onChange != nil {
		onChange()
	}
	return nil
}

// Unregister removes a plugin by name, closing it if it implements Closer.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	reg, ok := d.byName[name]
	if ok {
		delete(d.byName, name)
	}
	onChange := d.onChange
	d.mu.Unlock()

	if ok {
		if closer, ok := reg.plugin.(Closer); ok {
			_ = closer.Close()
		}
	}
	if onChange != nil {
		onChange()
	}
}

// Close releases every registered plugin that implements Closer, in
// registration order, collecting and returning the first error
// encountered (after attempting every plugin). Server calls this once,
// during shutdown, after draining in-flight tool calls.
func (d *Dispatcher) Close() error {
	d.mu.RLock()
	regs := make([]*registration, 0, len(d.byName))
	for _, reg := range d.byName {
		regs = append(regs, reg)
	}
	d.mu.RUnlock()

	sort.Slice(regs, func(i, j int) bool { return regs[i].order < regs[j].order })

	var firstErr error
	for _, reg := range regs {
		closer, ok := reg.plugin.(Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close plugin %s: %w", reg.def.Name, err)
		}
	}
	return firstErr
}

// ListTools returns every registered tool's definition in deterministic
// order: registration order, then name. An optional visible predicate
// narrows the result to tools it accepts, for progressive disclosure
// based on a client's declared capabilities; passing none returns every
// registered tool, preserving prior behavior.
func (d *Dispatcher) ListTools(visible ...func(mcptypes.ToolDefinition) bool) []mcptypes.ToolDefinition {
	d.mu.RLock()
	defer d.mu.RUnlock()

	regs := make([]*registration, 0, len(d.byName))
	for _, reg := range d.byName {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].order != regs[j].order {
			return regs[i].order < regs[j].order
		}
		return regs[i].def.Name < regs[j].def.Name
	})

	var filter func(mcptypes.ToolDefinition) bool
	if len(visible) > 0 {
		filter = visible[0]
	}

	defs := make([]mcptypes.ToolDefinition, 0, len(regs))
	for _, reg := range regs {
		if filter != nil && !filter(reg.def) {
			continue
		}
		defs = append(defs, reg.def)
	}
	return defs
}

// Schema returns the cached input schema for tool, and whether it is
// registered.
func (d *Dispatcher) Schema(tool string) ([]byte, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	reg, ok := d.byName[tool]
	if !ok {
		return nil, false
	}
	return reg.def.InputSchema, true
}

// Call looks up tool and invokes its plugin with args. A plugin error or
// panic is converted into a generic error result; its detail is returned
// to the caller only via panicDetail, which Server routes to the audit
// log, never to the client. err is set only for an unknown tool.
func (d *Dispatcher) Call(tool string, args map[string]any) (result mcptypes.ToolResult, panicDetail error, err error) {
	d.mu.RLock()
	reg, ok := d.byName[tool]
	d.mu.RUnlock()
	if !ok {
		return mcptypes.ToolResult{}, nil, &ErrToolNotFound{Tool: tool}
	}

	defer func() {
		if r := recover(); r != nil {
			panicDetail = fmt.Errorf("plugin panic: %v", r)
			result = mcptypes.ErrorResult(fmt.Sprintf("Tool '%s' execution failed", tool))
			err = nil
		}
	}()

	res, execErr := reg.plugin.Execute(tool, args)
	if execErr != nil {
		return mcptypes.ErrorResult(fmt.Sprintf("Tool '%s' execution failed", tool)), execErr, nil
	}
	return res, nil, nil
}
