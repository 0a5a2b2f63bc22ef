// Package audit implements the append-only JSON-lines audit trail.
//
// AuditLog is the single writer onto the audit file: every record is
// buffered and flushed after N records or T seconds, whichever comes
// first, and flushed unconditionally on Close. A write failure after
// Open succeeded is not fatal — it is counted as a gap and reported at
// Close — tolerating degraded I/O rather than crashing the process.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"mcpsentry/internal/logging"
)

const (
	flushAfterRecords = 50
	flushInterval     = 5 * time.Second
)

var sensitiveKeyPattern = regexp.MustCompile(`(?i)^(password|token|secret|api[_-]?key|authorization|private[_-]?key)$`)

const redactedValue = "***"

// AuditLog is the scoped handle returned by Open. Callers must call Close
// on every exit path to guarantee the final flush happens.
type AuditLog struct {
	mu        sync.Mutex
	file      *os.File
	writer    *bufio.Writer
	pending   int
	dropped   uint64
	sessionID string

	stopTicker chan struct{}
	tickerDone chan struct{}
}

// Open opens (creating parent directories as needed) the audit log at path
// in append mode and starts the periodic flush timer. Failure to open is a
// fatal configuration error.
func Open(path string) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log %s: %w", path, err)
	}

	al := &AuditLog{
		file:       f,
		writer:     bufio.NewWriter(f),
		sessionID:  uuid.NewString(),
		stopTicker: make(chan struct{}),
		tickerDone: make(chan struct{}),
	}
	go al.flushLoop()
	return al, nil
}

func (al *AuditLog) flushLoop() {
	defer close(al.tickerDone)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			al.mu.Lock()
			al.flushLocked()
			al.mu.Unlock()
		case <-al.stopTicker:
			return
		}
	}
}

// LogRequest records the start of a tool invocation. arguments is
// deep-copied and redacted before being written; the caller's map is never
// mutated or retained.
func (al *AuditLog) LogRequest(requestID, tool string, arguments map[string]any) {
	record := map[string]any{
		"kind":       "request",
		"request_id": requestID,
		"tool":       tool,
		"arguments":  redact(arguments),
	}
	al.write(record)
}

// LogResponse records the completion of a tool invocation matched to its
// request by request_id.
func (al *AuditLog) LogResponse(requestID, status string, durationMs int64) {
	al.write(map[string]any{
		"kind":        "response",
		"request_id":  requestID,
		"status":      status,
		"duration_ms": durationMs,
	})
}

// LogSecurityEvent records a security-relevant decision, e.g.
// policy_load_failed, network_blocked, validation_failed,
// rate_limit_exceeded, path_traversal_blocked.
func (al *AuditLog) LogSecurityEvent(eventType string, detail map[string]any) {
	al.write(map[string]any{
		"kind":       "security_event",
		"event_type": eventType,
		"detail":     redact(detail),
	})
}

// Dropped returns the number of records lost to write errors since Open.
func (al *AuditLog) Dropped() uint64 {
	al.mu.Lock()
	defer al.mu.Unlock()
	return al.dropped
}

// Close flushes any buffered records and releases the underlying file.
// Reporting the dropped-record count is the caller's responsibility via
// Dropped(), called before or after Close — this keeps AuditLog itself
// free of opinions about where shutdown diagnostics get logged. Calls
// after the first do nothing and return nil.
func (al *AuditLog) Close() error {
	select {
	case <-al.stopTicker:
		return nil
	default:
	}
	close(al.stopTicker)
	<-al.tickerDone

	al.mu.Lock()
	al.flushLocked()
	err := al.file.Close()
	al.mu.Unlock()

	if err != nil {
		return fmt.Errorf("close audit log: %w", err)
	}
	return nil
}

func (al *AuditLog) write(record map[string]any) {
	record["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	record["session_id"] = al.sessionID

	line, err := json.Marshal(record)
	if err != nil {
		al.recordDrop("marshal audit record", err)
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	if _, err := al.writer.Write(line); err != nil {
		al.dropped++
		logging.Error("audit write failed", "error", err)
		return
	}
	if err := al.writer.WriteByte('\n'); err != nil {
		al.dropped++
		logging.Error("audit write failed", "error", err)
		return
	}

	al.pending++
	if al.pending >= flushAfterRecords {
		al.flushLocked()
	}
}

func (al *AuditLog) recordDrop(context string, err error) {
	al.mu.Lock()
	al.dropped++
	al.mu.Unlock()
	logging.Error("audit record dropped", "context", context, "error", err)
}

// flushLocked must be called with al.mu held.
func (al *AuditLog) flushLocked() {
	if al.pending == 0 {
		return
	}
	if err := al.writer.Flush(); err != nil {
		al.dropped += uint64(al.pending)
		logging.Error("audit flush failed", "error", err)
	}
	al.pending = 0
}

// redact returns a deep copy of m with any key matching password, token,
// secret, api[_-]?key, authorization, or private[_-]?key (case-insensitive)
// replaced by "***". Nested maps and slices are walked recursively.
func redact(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sensitiveKeyPattern.MatchString(k) {
			out[k] = redactedValue
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return redact(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = redactValue(item)
		}
		return out
	default:
		return v
	}
}
