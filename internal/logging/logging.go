// Package logging provides the server's diagnostic logger.
//
// Diagnostic text must never reach stdout: stdout is the JSON-RPC response
// channel. AppLogger therefore only ever writes to stderr (or, under
// DEBUG, to a log file) and is kept entirely separate from the audit
// trail in package audit, which is structured application data rather
// than human diagnostics.
package logging

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// AppLogger wraps a charmbracelet/log logger configured to keep diagnostic
// output off the protocol stream.
type AppLogger struct {
	logger *log.Logger
	debug  bool
}

var (
	defaultLogger *AppLogger
	once          sync.Once
)

// GetDefault returns the process-wide default logger.
func GetDefault() *AppLogger {
	once.Do(func() {
		defaultLogger = NewAppLogger()
	})
	return defaultLogger
}

func Info(msg string, keyvals ...interface{})  { GetDefault().Info(msg, keyvals...) }
func Warn(msg string, keyvals ...interface{})  { GetDefault().Warn(msg, keyvals...) }
func Error(msg string, keyvals ...interface{}) { GetDefault().Error(msg, keyvals...) }
func Debug(msg string, keyvals ...interface{}) { GetDefault().Debug(msg, keyvals...) }

// NewAppLogger builds a logger that writes to stderr, or, when DEBUG is set,
// to a file so interactive debugging doesn't collide with the JSON-RPC
// stream on a developer's terminal.
func NewAppLogger() *AppLogger {
	debug := os.Getenv("DEBUG") != ""

	var logger *log.Logger

	if debug {
		cwd, err := os.Getwd()
		if err != nil {
			panic(fmt.Sprintf("failed to get current working directory: %v", err))
		}

		logPath := filepath.Join(cwd, "mcpsentry-debug.log")
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			panic(fmt.Sprintf("failed to create debug log file: %v", err))
		}

		logger = log.NewWithOptions(logFile, log.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.Kitchen,
			Prefix:          "mcpsentry",
		})
		logger.SetLevel(log.DebugLevel)
		logger.Info("debug logging enabled", "log_file", logPath)
	} else {
		logger = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          "mcpsentry",
		})
		logger.SetLevel(log.WarnLevel)
	}

	return &AppLogger{logger: logger, debug: debug}
}

func (al *AppLogger) Info(msg string, keyvals ...interface{})  { al.logger.Info(msg, keyvals...) }
func (al *AppLogger) Warn(msg string, keyvals ...interface{})  { al.logger.Warn(msg, keyvals...) }
func (al *AppLogger) Error(msg string, keyvals ...interface{}) { al.logger.Error(msg, keyvals...) }

func (al *AppLogger) Debug(msg string, keyvals ...interface{}) {
	if al.debug {
		al.logger.Debug(msg, keyvals...)
	}
}

// LogStateTransition records a lifecycle or dispatch state change at debug
// level; used by internal/lifecycle when DEBUG is set.
func (al *AppLogger) LogStateTransition(component, from, to string) {
	if al.debug {
		al.logger.Debug("state transition", "component", component, "from", from, "to", to)
	}
}

// LogPerformance records how long an operation took, at debug level.
func (al *AppLogger) LogPerformance(operation string, start time.Time) {
	if al.debug {
		al.logger.Debug("performance", "operation", operation, "duration", time.Since(start))
	}
}

// NewTestLogger returns a logger that writes to an in-memory buffer, for
// assertions against diagnostic output in tests.
func NewTestLogger() (*AppLogger, *bytes.Buffer) {
	var buf bytes.Buffer

	logger := log.NewWithOptions(&buf, log.Options{
		ReportTimestamp: false,
		ReportCaller:    false,
		Prefix:          "test",
	})
	logger.SetLevel(log.DebugLevel)

	return &AppLogger{logger: logger, debug: true}, &buf
}
