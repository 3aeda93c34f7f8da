package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewWritesJSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info"}, &buf)

	logger.Info().Str("portfolio_id", "1").Msg("state saved")

	line := buf.String()
	if !strings.Contains(line, `"portfolio_id":"1"`) {
		t.Fatalf("expected portfolio_id field, got %q", line)
	}
	if !strings.Contains(line, `"message":"state saved"`) {
		t.Fatalf("expected message field, got %q", line)
	}
}

func TestNewHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "WARN"}, &buf)

	logger.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	logger.Error().Msg("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected error entry, got %q", buf.String())
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("expected discard logger")
	}
	logger := Discard()
	if OrDiscard(logger) != logger {
		t.Fatal("expected same logger")
	}
	logger.Error().Msg("dropped")
}
