// Package security implements the SecurityEngine facade: a composition
// of Policy, Firewall, Validator, RateLimiter, and AuditLog behind
// narrow capability interfaces — composition instead of inheritance, so
// each capability is independently testable and replaceable by a test
// double, following the interface+mock pattern in reglet-dev-reglet-sdk's
// domain/ports package.
package security

import (
	"errors"
	"fmt"

	"mcpsentry/internal/audit"
	"mcpsentry/internal/firewall"
	"mcpsentry/internal/policy"
	"mcpsentry/internal/ratelimit"
	"mcpsentry/internal/validator"
)

// InputChecker validates and sanitizes tool call arguments.
type InputChecker interface {
	CheckInput(tool string, schema []byte, args map[string]any) (map[string]any, error)
}

// RateChecker enforces the per-tool call budget.
type RateChecker interface {
	CheckRate(tool string) error
}

// RequestRecorder logs the request/response pair for a tool invocation.
type RequestRecorder interface {
	OnRequest(requestID, tool string, cleanedArgs map[string]any)
	OnResponse(requestID, status string, durationMs int64)
}

// SecurityEventRecorder logs a security-relevant decision outside the
// request/response pair (e.g. a network block encountered inside a
// plugin's own outbound call).
type SecurityEventRecorder interface {
	OnSecurityEvent(eventType string, detail map[string]any)
}

// Engine is the concrete SecurityEngine. It holds no independent
// lifetime beyond Server's scope: Open acquires the audit log, Close
// releases it, and every exit path must call Close.
type Engine struct {
	Policy   *policy.Policy
	firewall *firewall.Firewall
	validate *validator.Validator
	limiter  *ratelimit.RateLimiter
	auditLog *audit.AuditLog
}

var (
	_ InputChecker          = (*Engine)(nil)
	_ RateChecker           = (*Engine)(nil)
	_ RequestRecorder       = (*Engine)(nil)
	_ SecurityEventRecorder = (*Engine)(nil)
)

// Open constructs an Engine for p, opening its audit log. Callers must
// call Close on every exit path.
func Open(p *policy.Policy) (*Engine, error) {
	auditLog, err := audit.Open(p.Audit.LogPath)
	if err != nil {
		return nil, fmt.Errorf("open security engine: %w", err)
	}

	fw := firewall.New(p)
	return &Engine{
		Policy:   p,
		firewall: fw,
		validate: validator.New(p, fw),
		limiter:  ratelimit.New(),
		auditLog: auditLog,
	}, nil
}

// Close flushes the audit log and releases its resources.
func (e *Engine) Close() error {
	return e.auditLog.Close()
}

// Dropped returns the number of audit records lost to write errors over
// the engine's lifetime, for the caller to report at shutdown.
func (e *Engine) Dropped() uint64 {
	return e.auditLog.Dropped()
}

// Firewall exposes the shared Firewall instance so a plugin can validate
// its own outbound connections and report a network_blocked event.
func (e *Engine) Firewall() *firewall.Firewall {
	return e.firewall
}

// CheckInput wraps Validator.Validate, logging a validation_failed
// security event on reject.
func (e *Engine) CheckInput(tool string, schema []byte, args map[string]any) (map[string]any, error) {
	cleaned, err := e.validate.Validate(tool, schema, args)
	if err != nil {
		e.auditLog.LogSecurityEvent("validation_failed", validationDetail(tool, err))
		return nil, err
	}
	return cleaned, nil
}

func validationDetail(tool string, err error) map[string]any {
	detail := map[string]any{"tool": tool}
	var ve *validator.ValidationError
	if errors.As(err, &ve) {
		detail["pointer"] = ve.Pointer
		detail["reason"] = ve.Detail
	} else {
		detail["reason"] = err.Error()
	}
	return detail
}

// CheckRate delegates to RateLimiter, logging a rate_limit_exceeded
// security event on reject.
func (e *Engine) CheckRate(tool string) error {
	limit := e.Policy.RateLimit(tool)
	if err := e.limiter.Check(tool, limit); err != nil {
		detail := map[string]any{"tool": tool}
		var re *ratelimit.RateExceeded
		if errors.As(err, &re) {
			detail["retry_after_ms"] = re.RetryAfterMs
		}
		e.auditLog.LogSecurityEvent("rate_limit_exceeded", detail)
		return err
	}
	return nil
}

// OnRequest records the start of a tool invocation in the audit log.
func (e *Engine) OnRequest(requestID, tool string, cleanedArgs map[string]any) {
	e.auditLog.LogRequest(requestID, tool, cleanedArgs)
}

// OnResponse records the completion of a tool invocation in the audit log.
func (e *Engine) OnResponse(requestID, status string, durationMs int64) {
	e.auditLog.LogResponse(requestID, status, durationMs)
}

// OnSecurityEvent records an arbitrary security-relevant event.
func (e *Engine) OnSecurityEvent(eventType string, detail map[string]any) {
	e.auditLog.LogSecurityEvent(eventType, detail)
}
