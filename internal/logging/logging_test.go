package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestCorrelationIDRoundTrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "abc-123")
	if got := CorrelationID(ctx); got != "abc-123" {
		t.Errorf("expected abc-123, got %q", got)
	}

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("expected empty id, got %q", got)
	}
}

func TestNewCorrelationIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewCorrelationID()
		if seen[id] {
			t.Fatalf("duplicate correlation id %s", id)
		}
		seen[id] = true

		if !strings.Contains(id, "-") {
			t.Fatalf("expected time-suffix form, got %s", id)
		}
	}
}

func TestFromContextTagsCorrelationID(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	Setup(Config{Format: "json", Level: "debug", Output: &buf})

	ctx := WithCorrelationID(context.Background(), "req-42")
	FromContext(ctx).Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log line: %v", err)
	}
	if entry["correlation_id"] != "req-42" {
		t.Errorf("expected correlation_id=req-42, got %v", entry["correlation_id"])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
