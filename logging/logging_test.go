package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewJSONHandlerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf, Level: "warn", JSON: true})

	logger.Info("dropped")
	logger.Warn("kept", "contract_id", "c-1")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected exactly one json line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "kept" || entry["contract_id"] != "c-1" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q): expected %v got %v", in, want, got)
		}
	}
}

func TestTintHandlerWritesText(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Writer: &buf, Color: true}).Info("relay started", "batch", 10)
	if !bytes.Contains(buf.Bytes(), []byte("relay started")) {
		t.Fatalf("expected message in output, got %q", buf.String())
	}
}
