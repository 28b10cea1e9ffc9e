package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("failed to parse log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestLogger_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "cache.lookup.hit", F("key", "user:1"), F("latency", 2*time.Millisecond))

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e["msg"] != "cache.lookup.hit" {
		t.Errorf("msg = %v, want cache.lookup.hit", e["msg"])
	}
	if e["level"] != "info" {
		t.Errorf("level = %v, want info", e["level"])
	}
	if e["key"] != "user:1" {
		t.Errorf("key = %v, want user:1", e["key"])
	}
	if e["latency"] != "2ms" {
		t.Errorf("latency = %v, want 2ms", e["latency"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("warn", &buf)
	ctx := context.Background()

	logger.Debug(ctx, "debug")
	logger.Info(ctx, "info")
	logger.Warn(ctx, "warn")
	logger.Error(ctx, "error")
	logger.Critical(ctx, "critical")

	entries := decodeLines(t, &buf)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries at warn level, got %d", len(entries))
	}
	if entries[2]["level"] != "critical" {
		t.Errorf("last level = %v, want critical", entries[2]["level"])
	}
}

func TestLogger_WithAddsBaseFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("debug", &buf).With(F("component", "lookup"))

	logger.Debug(context.Background(), "evt", Err(errors.New("boom")))

	e := decodeLines(t, &buf)[0]
	if e["component"] != "lookup" {
		t.Errorf("component = %v, want lookup", e["component"])
	}
	if e["error"] != "boom" {
		t.Errorf("error = %v, want boom", e["error"])
	}
}

func TestLogger_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "config.loaded", F("password", "hunter2"), F("encryption_key", "k"))

	e := decodeLines(t, &buf)[0]
	if e["password"] != "[REDACTED]" || e["encryption_key"] != "[REDACTED]" {
		t.Errorf("secrets not redacted: %v", e)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":    LevelDebug,
		"info":     LevelInfo,
		"warning":  LevelWarn,
		"error":    LevelError,
		"critical": LevelCritical,
		"bogus":    LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOrNop(t *testing.T) {
	l := OrNop(nil)
	// Must not panic.
	l.Critical(context.Background(), "ignored")
	if l.With(F("a", 1)) == nil {
		t.Fatal("With on nop logger returned nil")
	}
}
