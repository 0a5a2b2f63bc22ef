// Package server implements the top-level message loop: it reads one
// line at a time from Transport, routes each decoded message to the
// lifecycle/tools handlers, and wraps every tools/call in the security
// pipeline in a fixed order.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"mcpsentry/internal/dispatch"
	"mcpsentry/internal/jsonrpc"
	"mcpsentry/internal/lifecycle"
	"mcpsentry/internal/logging"
	"mcpsentry/internal/mcptypes"
	"mcpsentry/internal/security"
	"mcpsentry/internal/transport"
)

// nowFunc is the clock used to measure duration_ms.
var nowFunc = time.Now

// Server is the single owner of Policy, the security Engine, Dispatcher,
// Transport, and the Lifecycle state machine.
type Server struct {
	transport  *transport.Transport
	engine     *security.Engine
	dispatcher *dispatch.Dispatcher
	machine    *lifecycle.Machine

	inFlight sync.WaitGroup
}

// New wires a Server around an already-open security Engine and a
// Dispatcher populated with its plugins.
func New(tr *transport.Transport, engine *security.Engine, dispatcher *dispatch.Dispatcher) *Server {
	s := &Server{
		transport:  tr,
		engine:     engine,
		dispatcher: dispatcher,
		machine:    lifecycle.New(),
	}
	dispatcher.OnChange(s.notifyToolsListChanged)
	return s
}

// Run processes messages until a clean EOF or a fatal transport error.
// It always returns after in-flight tools/call invocations have been
// given up to their policy timeout to finish, and every registered
// plugin has had a chance to release its own resources via Close.
func (s *Server) Run() error {
	var runErr error
	for {
		line, err := s.transport.ReadLine()
		if err != nil {
			if err != transport.ErrClosed {
				runErr = fmt.Errorf("server run: %w", err)
			}
			break
		}
		s.handleLine(line)
	}

	s.machine.Shutdown()
	s.inFlight.Wait()
	if err := s.dispatcher.Close(); err != nil {
		logging.GetDefault().Error("plugin shutdown failed", "err", err)
	}
	return runErr
}

func (s *Server) handleLine(line []byte) {
	msg, err := jsonrpc.Parse(line)
	if err != nil {
		s.writeParseError(err)
		return
	}

	switch m := msg.(type) {
	case jsonrpc.Notification:
		s.handleNotification(m)
	case jsonrpc.Request:
		s.handleRequest(m)
	}
}

func (s *Server) writeParseError(err error) {
	code, message := jsonrpc.CodeParseError, err.Error()
	if pe, ok := err.(*jsonrpc.ParseError); ok {
		code, message = pe.Code, pe.Message
	}
	s.writeResponse(jsonrpc.NewErrorResponse(jsonrpc.NullID(), code, message))
}

func (s *Server) handleNotification(n jsonrpc.Notification) {
	switch n.Method {
	case "notifications/initialized":
		if err := s.machine.Initialized(); err != nil {
			logging.GetDefault().Error("notifications/initialized rejected", "err", err)
		}
	default:
		logging.GetDefault().Debug("unhandled notification", "method", n.Method)
	}
}

func (s *Server) handleRequest(req jsonrpc.Request) {
	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "tools/list":
		s.handleToolsList(req)
	case "tools/call":
		s.handleToolsCall(req)
	default:
		s.writeResponse(jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeMethodNotFound, "method not found"))
	}
}

type initializeParams struct {
	ProtocolVersion string               `json:"protocolVersion"`
	ClientInfo      lifecycle.ClientInfo `json:"clientInfo"`
	Capabilities    map[string]any       `json:"capabilities"`
}

func (s *Server) handleInitialize(req jsonrpc.Request) {
	if s.machine.State() != lifecycle.Uninitialized {
		s.writeResponse(jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidRequest, "invalid state for initialize"))
		return
	}

	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.writeResponse(jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidParams, "malformed initialize params"))
			return
		}
	}

	version, err := s.machine.Initialize(params.ProtocolVersion, params.ClientInfo, params.Capabilities)
	if err != nil {
		s.writeResponse(jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidRequest, "invalid state for initialize"))
		return
	}

	s.writeResponse(jsonrpc.Response{ID: req.ID, Result: map[string]any{
		"protocolVersion": version,
		"serverInfo":      map[string]any{"name": "mcpsentry", "version": version},
		"capabilities":    map[string]any{"tools": map[string]any{"listChanged": true}},
	}})
}

func (s *Server) handleToolsList(req jsonrpc.Request) {
	if !s.machine.AcceptsToolCalls() {
		s.writeResponse(jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidRequest, "invalid state for tools/list"))
		return
	}
	s.writeResponse(jsonrpc.Response{ID: req.ID, Result: map[string]any{
		"tools": s.dispatcher.ListTools(s.toolVisibility()),
	}})
}

// toolVisibility builds the progressive-disclosure predicate for
// ListTools from the capabilities the client declared at initialize: a
// client may narrow itself to a set of tool tags via
// capabilities.experimental.toolTags, in which case only tools carrying
// at least one matching tag (or no tags at all) are listed. A client
// that declares nothing sees every registered tool, so this is a pure
// opt-in restriction, never a required behavior change.
func (s *Server) toolVisibility() func(mcptypes.ToolDefinition) bool {
	allowed, ok := requestedToolTags(s.machine.Capabilities())
	if !ok {
		return func(mcptypes.ToolDefinition) bool { return true }
	}
	return func(def mcptypes.ToolDefinition) bool {
		if len(def.Tags) == 0 {
			return true
		}
		for _, tag := range def.Tags {
			if allowed[tag] {
				return true
			}
		}
		return false
	}
}

func requestedToolTags(capabilities map[string]any) (map[string]bool, bool) {
	experimental, ok := capabilities["experimental"].(map[string]any)
	if !ok {
		return nil, false
	}
	raw, ok := experimental["toolTags"].([]any)
	if !ok {
		return nil, false
	}
	tags := make(map[string]bool, len(raw))
	for _, v := range raw {
		if tag, ok := v.(string); ok {
			tags[tag] = true
		}
	}
	return tags, true
}

type toolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// handleToolsCall enforces a fixed ordering: state check, schema lookup,
// rate check, input validation, OnRequest, timeout-bounded execution,
// OnResponse.
func (s *Server) handleToolsCall(req jsonrpc.Request) {
	if !s.machine.AcceptsToolCalls() {
		s.writeResponse(jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidRequest, "invalid state for tools/call"))
		return
	}

	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeResponse(jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidParams, "malformed tools/call params"))
		return
	}

	schema, ok := s.dispatcher.Schema(params.Name)
	if !ok {
		s.writeResponse(jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidParams, fmt.Sprintf("unknown tool %s", params.Name)))
		return
	}

	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		s.runToolCall(req, params, schema)
	}()
}

func (s *Server) runToolCall(req jsonrpc.Request, params toolsCallParams, schema []byte) {
	requestID := fmt.Sprintf("%v", req.ID.Value())
	start := nowFunc()

	if err := s.engine.CheckRate(params.Name); err != nil {
		s.writeResponse(jsonrpc.Response{ID: req.ID, Result: mcptypes.ErrorResult("Rate limit exceeded")})
		return
	}

	cleaned, err := s.engine.CheckInput(params.Name, schema, params.Arguments)
	if err != nil {
		s.writeResponse(jsonrpc.Response{ID: req.ID, Result: mcptypes.ErrorResult("Input validation failed")})
		return
	}

	s.engine.OnRequest(requestID, params.Name, cleaned)

	result, timedOut := s.callWithTimeout(params.Name, cleaned)
	durationMs := nowFunc().Sub(start).Milliseconds()

	status := "success"
	if result.IsError {
		status = "error"
	}
	if timedOut {
		status = "error"
		s.engine.OnSecurityEvent("timeout", map[string]any{"tool": params.Name})
	}
	s.engine.OnResponse(requestID, status, durationMs)

	s.writeResponse(jsonrpc.Response{ID: req.ID, Result: result})
}

// callWithTimeout invokes the plugin and abandons it once the policy
// timeout elapses; any resources the plugin goroutine held are its own
// responsibility to reclaim.
func (s *Server) callWithTimeout(tool string, args map[string]any) (mcptypes.ToolResult, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.engine.Policy.TimeoutSeconds())*time.Second)
	defer cancel()

	type callOutcome struct {
		result mcptypes.ToolResult
		detail error
	}
	done := make(chan callOutcome, 1)

	go func() {
		result, detail, _ := s.dispatcher.Call(tool, args)
		done <- callOutcome{result: result, detail: detail}
	}()

	select {
	case outcome := <-done:
		if outcome.detail != nil {
			logging.GetDefault().Error("tool execution failed", "tool", tool, "err", outcome.detail)
			s.engine.OnSecurityEvent("plugin_error", map[string]any{"tool": tool, "error": outcome.detail.Error()})
		}
		return outcome.result, false
	case <-ctx.Done():
		return mcptypes.ErrorResult("timeout"), true
	}
}

func (s *Server) notifyToolsListChanged() {
	line, err := json.Marshal(map[string]any{
		"jsonrpc": jsonrpc.Version,
		"method":  "notifications/tools/list_changed",
	})
	if err != nil {
		return
	}
	if err := s.transport.WriteLine(line); err != nil {
		logging.GetDefault().Error("failed to write tools/list_changed notification", "err", err)
	}
}

func (s *Server) writeResponse(v json.Marshaler) {
	line, err := json.Marshal(v)
	if err != nil {
		logging.GetDefault().Error("failed to marshal response", "err", err)
		return
	}
	if err := s.transport.WriteLine(line); err != nil {
		logging.GetDefault().Error("failed to write response", "err", err)
	}
}
