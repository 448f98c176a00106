package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerKeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("plate-server", &buf)

	l.Info("run finished", "outcome", "success", "confidence", 0.8, "dangling")

	line := buf.String()
	for _, want := range []string{"[plate-server] ", "[INFO] run finished", " outcome=success", " confidence=0.8"} {
		if !strings.Contains(line, want) {
			t.Errorf("Expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, "dangling") {
		t.Errorf("Trailing key without value should be dropped: %q", line)
	}
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	base := NewLoggerWithWriter("svc", &buf)
	req := base.With("request_id", "abc")

	req.Warn("slow run", "ms", 1200)
	base.Error("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[WARN] slow run request_id=abc ms=1200") {
		t.Errorf("Unexpected line %q", lines[0])
	}
	if strings.Contains(lines[1], "request_id") {
		t.Errorf("With must not change the parent logger: %q", lines[1])
	}
}

func TestLoggerDebug(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("svc", &buf)

	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("Debug output should be off by default, got %q", buf.String())
	}

	l.SetDebug(true)
	l.Debug("shown", "k", "v")
	if !strings.Contains(buf.String(), "[DEBUG] shown k=v") {
		t.Errorf("Expected debug line, got %q", buf.String())
	}
}
