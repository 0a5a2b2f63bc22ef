package logging

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestDebug_DisabledInProduction(t *testing.T) {
	var buf bytes.Buffer

	logger := log.NewWithOptions(&buf, log.Options{
		ReportTimestamp: false,
		ReportCaller:    false,
	})
	logger.SetLevel(log.DebugLevel)

	appLogger := &AppLogger{logger: logger, debug: false}
	appLogger.Debug("debug message that should not appear")

	output := buf.String()
	if strings.Contains(output, "debug message that should not appear") {
		t.Errorf("expected debug message to be suppressed in production mode, got: %s", output)
	}
}

func TestLogPerformance(t *testing.T) {
	logger, buf := NewTestLogger()

	start := time.Now()
	time.Sleep(1 * time.Millisecond)
	logger.LogPerformance("test_operation", start)

	output := buf.String()
	if !strings.Contains(output, "performance") {
		t.Errorf("expected log output to contain 'performance', got: %s", output)
	}
	if !strings.Contains(output, "test_operation") {
		t.Errorf("expected log output to contain operation name, got: %s", output)
	}
	if !strings.Contains(output, "duration") {
		t.Errorf("expected log output to contain duration, got: %s", output)
	}
}

func TestLogStateTransition(t *testing.T) {
	logger, buf := NewTestLogger()

	logger.LogStateTransition("lifecycle", "initializing", "ready")

	output := buf.String()
	for _, want := range []string{"state transition", "lifecycle", "initializing", "ready"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected log output to contain %q, got: %s", want, output)
		}
	}
}

func TestPackageLevelFunctions(t *testing.T) {
	defaultLogger = nil
	once = sync.Once{}

	os.Setenv("DEBUG", "1")
	defer os.Unsetenv("DEBUG")

	Info("package level info")
	Warn("package level warn")
	Error("package level error")
	Debug("package level debug")

	GetDefault().LogPerformance("package_operation", time.Now())
}

func TestGetDefault_Singleton(t *testing.T) {
	defaultLogger = nil
	once = sync.Once{}

	logger1 := GetDefault()
	logger2 := GetDefault()

	if logger1 != logger2 {
		t.Error("expected GetDefault() to return the same instance (singleton)")
	}
}

func BenchmarkInfo(b *testing.B) {
	logger, _ := NewTestLogger()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("benchmark message", "iteration", i)
	}
}

func BenchmarkDebug(b *testing.B) {
	logger, _ := NewTestLogger()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Debug("benchmark debug message", "iteration", i)
	}
}
