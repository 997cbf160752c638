package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.SetLevel(LevelInfo)

	// Debug should be filtered
	logger.Debug("debug message")
	if buf.Len() > 0 {
		t.Error("debug message should be filtered at INFO level")
	}

	logger.Info("info message")
	if buf.Len() == 0 {
		t.Error("info message should be logged")
	}

	output := buf.String()
	if !strings.Contains(output, "INFO") {
		t.Error("log should contain INFO level")
	}
	if !strings.Contains(output, "info message") {
		t.Error("log should contain the message")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{" INFO ", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"Error", LevelError},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.WithComponent("scheduler").Info("test message")

	output := buf.String()
	if !strings.Contains(output, "[scheduler]") {
		t.Errorf("expected component 'scheduler' in log, got: %s", output)
	}
}

func TestLogger_WithTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.WithTraceID("run-123").Info("test message")

	if !strings.Contains(buf.String(), "trace_id=run-123") {
		t.Errorf("expected trace id in log, got: %s", buf.String())
	}
}

func TestLogger_FieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.Info("publish", map[string]interface{}{
		"topic": "t",
		"size":  12,
		"id":    7,
	})

	output := buf.String()
	if !strings.Contains(output, "id=7 size=12 topic=t") {
		t.Errorf("expected sorted fields, got: %s", output)
	}
}

func TestLogger_Nop(t *testing.T) {
	// Must not panic or write anywhere observable.
	Nop().Error("dropped", map[string]interface{}{"k": "v"})
}

func TestLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.WithComponent("test").Info("hello world", map[string]interface{}{"key": "value"})

	output := buf.String()
	// Format: LEVEL TIMESTAMP [component] message key=value
	// Example: INFO  2026-02-05T04:00:00.000Z [test] hello world key=value
	if !strings.HasPrefix(output, "INFO ") {
		t.Errorf("expected line to start with 'INFO ', got: %s", output)
	}
	if !strings.Contains(output, "[test]") {
		t.Errorf("expected component [test], got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("expected key=value, got: %s", output)
	}
}

func TestLogger_AgentLifecycle(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.AgentStarted("thing-1", 300*time.Second)
	logger.AgentStopped("thing-1", 15*time.Millisecond)

	output := buf.String()
	if !strings.Contains(output, "agent_started") || !strings.Contains(output, "period=5m0s") {
		t.Errorf("expected agent_started with period, got: %s", output)
	}
	if !strings.Contains(output, "agent_stopped") {
		t.Errorf("expected agent_stopped, got: %s", output)
	}
}

func TestLogger_TickComplete(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	// Success is Debug and filtered at INFO.
	logger.TickComplete("thing-1", time.Millisecond, nil)
	if buf.Len() != 0 {
		t.Errorf("successful tick should log at DEBUG, got: %s", buf.String())
	}

	logger.TickComplete("thing-1", time.Millisecond, errors.New("publish failed"))
	output := buf.String()
	if !strings.HasPrefix(output, "ERROR") || !strings.Contains(output, "tick_failed") {
		t.Errorf("failed tick should log at ERROR, got: %s", output)
	}
}

func TestLogger_Acks(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.ReportPublished("$aws/things/t/defender/metrics/cbor", 42, 96)
	logger.AckReceived("accepted", 42, true)
	logger.AckReceived("rejected", 43, false)

	output := buf.String()
	for _, want := range []string{"report_published", "size=96", "ack_received", "ack_unmatched", "matched=false"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in log, got: %s", want, output)
		}
	}
}
