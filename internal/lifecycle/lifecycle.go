// Package lifecycle implements the server's initialization state
// machine: Uninitialized → Initializing → Ready → ShuttingDown.
package lifecycle

import (
	"fmt"
	"sync"

	"mcpsentry/internal/logging"
)

// State is one of the four lifecycle states.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case ShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// ProtocolVersion is the single version string this server advertises.
const ProtocolVersion = "2025-11-25"

// ClientInfo is stored from initialize params but not required/validated.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Machine guards the current lifecycle state and the stored client
// metadata. It has no independent lifetime — it is owned by Server.
type Machine struct {
	mu           sync.Mutex
	state        State
	clientInfo   ClientInfo
	capabilities map[string]any
}

// New returns a Machine in the Uninitialized state.
func New() *Machine {
	return &Machine{state: Uninitialized}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Initialize transitions Uninitialized → Initializing and stores the
// client's self-reported info/capabilities, unvalidated. It returns the
// negotiated protocol version: the server always responds with its own
// version regardless of what the client offered.
func (m *Machine) Initialize(clientProtocolVersion string, info ClientInfo, capabilities map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Uninitialized {
		return "", fmt.Errorf("initialize: invalid in state %s", m.state)
	}

	m.clientInfo = info
	m.capabilities = capabilities
	m.transitionLocked(Initializing)

	return ProtocolVersion, nil
}

// Initialized transitions Initializing → Ready on receipt of
// notifications/initialized.
func (m *Machine) Initialized() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Initializing {
		return fmt.Errorf("notifications/initialized: invalid in state %s", m.state)
	}
	m.transitionLocked(Ready)
	return nil
}

// Shutdown transitions to the terminal ShuttingDown state from any
// state, triggered by EOF on the input stream.
func (m *Machine) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != ShuttingDown {
		m.transitionLocked(ShuttingDown)
	}
}

// AcceptsToolCalls reports whether the state machine is in Ready, the
// only state that accepts tools/list and tools/call.
func (m *Machine) AcceptsToolCalls() bool {
	return m.State() == Ready
}

// ClientInfo returns the stored client info (zero value if not yet set).
func (m *Machine) ClientInfo() ClientInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clientInfo
}

// Capabilities returns the client's self-reported capabilities object
// from initialize, nil if not yet set.
func (m *Machine) Capabilities() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capabilities
}

// transitionLocked must be called with m.mu held.
func (m *Machine) transitionLocked(next State) {
	logging.GetDefault().LogStateTransition("lifecycle", m.state.String(), next.String())
	m.state = next
}
