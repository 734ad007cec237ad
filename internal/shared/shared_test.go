package shared

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestGenerateID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateID()
		if len(id) != 36 {
			t.Fatalf("expected 36-char UUID, got %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("with nil writer", func(t *testing.T) {
		logger := NewLogger(nil)
		if logger == nil {
			t.Fatal("expected logger to be created")
		}
	})

	t.Run("writes to provided writer", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)
		logger.Info("hello from test")

		if !strings.Contains(buf.String(), "hello from test") {
			t.Errorf("expected log output, got %q", buf.String())
		}
	})

	t.Run("child logger carries fields", func(t *testing.T) {
		var buf bytes.Buffer
		logger := WithLogger(NewLogger(&buf), "component", "scheduler")
		logger.Info("cycle started")

		if !strings.Contains(buf.String(), "scheduler") {
			t.Errorf("expected component field in output, got %q", buf.String())
		}
	})

	t.Run("level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)
		SetLogLevel(logger, log.ErrorLevel)
		logger.Info("should be filtered")

		if strings.Contains(buf.String(), "should be filtered") {
			t.Errorf("expected info to be filtered at error level, got %q", buf.String())
		}
	})
}
