// logging_test.go: logging interface and adapter tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
)

// TestLogger_BasicMessageCapture covers Debug, Info, Warn and Error capture.
func TestLogger_BasicMessageCapture(t *testing.T) {
	tests := []struct {
		name    string
		logFunc func(*TestLogger, string, ...any)
		level   string
		message string
		args    []any
	}{
		{"Debug_SimpleMessage", (*TestLogger).Debug, "DEBUG", "debug message", nil},
		{"Info_SimpleMessage", (*TestLogger).Info, "INFO", "info message", nil},
		{"Warn_SimpleMessage", (*TestLogger).Warn, "WARN", "warn message", nil},
		{"Error_SimpleMessage", (*TestLogger).Error, "ERROR", "error message", nil},
		{"Info_WithStructuredArgs", (*TestLogger).Info, "INFO", "plugin loaded", []any{"plugin", "calc", "duration", "15ms"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewTestLogger()
			tt.logFunc(logger, tt.message, tt.args...)

			messages := logger.Messages()
			if len(messages) != 1 {
				t.Fatalf("Expected 1 message, got %d", len(messages))
			}
			if messages[0].Level != tt.level {
				t.Errorf("Expected level %s, got %s", tt.level, messages[0].Level)
			}
			if messages[0].Message != tt.message {
				t.Errorf("Expected message %q, got %q", tt.message, messages[0].Message)
			}
			if len(messages[0].Args) != len(tt.args) {
				t.Errorf("Expected %d args, got %d", len(tt.args), len(messages[0].Args))
			}
			if !logger.HasMessage(tt.level, tt.message) {
				t.Error("HasMessage should find the captured message")
			}
		})
	}
}

func TestLogger_WithSharesSink(t *testing.T) {
	root := NewTestLogger()
	child := root.With("component", "registry")
	grandchild := child.With("plugin", "calc")

	grandchild.Info("Plugin loaded", "duration", "1ms")

	messages := root.Messages()
	if len(messages) != 1 {
		t.Fatalf("Expected child output on the root sink, got %d messages", len(messages))
	}
	want := []any{"component", "registry", "plugin", "calc", "duration", "1ms"}
	if len(messages[0].Args) != len(want) {
		t.Fatalf("Expected args %v, got %v", want, messages[0].Args)
	}
	for i := range want {
		if messages[0].Args[i] != want[i] {
			t.Errorf("arg %d: expected %v, got %v", i, want[i], messages[0].Args[i])
		}
	}

	root.Clear()
	if len(root.Messages()) != 0 {
		t.Error("Clear should drop all messages")
	}
}

func TestLogger_HasMessageContaining(t *testing.T) {
	logger := NewTestLogger()
	logger.Warn("Cleanup after failed load")

	if !logger.HasMessageContaining("WARN", "failed load") {
		t.Error("Expected substring match")
	}
	if logger.HasMessageContaining("ERROR", "failed load") {
		t.Error("Level must also match")
	}
}

func TestLogger_ConcurrentAccess(t *testing.T) {
	logger := NewTestLogger()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			child := logger.With("worker", i)
			for j := 0; j < 50; j++ {
				child.Debug("tick")
			}
		}()
	}
	wg.Wait()

	if got := len(logger.Messages()); got != 500 {
		t.Errorf("Expected 500 messages, got %d", got)
	}
}

func TestNewLogger(t *testing.T) {
	if _, ok := NewLogger(nil).(*NoOpLogger); !ok {
		t.Error("nil should produce a NoOpLogger")
	}

	custom := NewTestLogger()
	if NewLogger(custom) != Logger(custom) {
		t.Error("a Logger should be used directly")
	}

	defer func() {
		if recover() == nil {
			t.Error("unsupported logger type should panic")
		}
	}()
	NewLogger("not a logger")
}

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()
	logger.Debug("x")
	logger.Info("x")
	logger.Warn("x")
	logger.Error("x")
	if logger.With("k", "v") == nil {
		t.Error("With must return a logger")
	}
	if DefaultLogger() == nil {
		t.Error("DefaultLogger must not be nil")
	}
}

func TestKVToFields(t *testing.T) {
	fields := kvToFields([]any{"plugin", "calc", 42, "answer", "error", errors.New("boom"), "dangling"})

	if fields["plugin"] != "calc" {
		t.Errorf("plugin = %v", fields["plugin"])
	}
	if fields["42"] != "answer" {
		t.Errorf("non-string key should be stringified, got %v", fields)
	}
	if fields["error"] != "boom" {
		t.Errorf("errors should be rendered as strings, got %v", fields["error"])
	}
	if fields["!BADKEY"] != "dangling" {
		t.Errorf("dangling key should be kept under !BADKEY, got %v", fields)
	}
}

func TestZerologAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologAdapter(zerolog.New(&buf).Level(zerolog.DebugLevel)).With("component", "manager")

	logger.Info("Plugin loaded", "plugin", "calc", "error", errors.New("none"))

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("Expected one JSON line, got %q: %v", buf.String(), err)
	}
	if entry["level"] != "info" || entry["message"] != "Plugin loaded" {
		t.Errorf("Unexpected entry %v", entry)
	}
	if entry["component"] != "manager" || entry["plugin"] != "calc" || entry["error"] != "none" {
		t.Errorf("Expected fields in entry, got %v", entry)
	}

	buf.Reset()
	logger.Debug("d")
	logger.Warn("w")
	logger.Error("e")
	if lines := strings.Count(buf.String(), "\n"); lines != 3 {
		t.Errorf("Expected 3 lines, got %d", lines)
	}
}

func TestLogrusAdapter(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetLevel(logrus.DebugLevel)
	base.SetFormatter(&logrus.JSONFormatter{})

	logger := NewLogrusAdapter(base).With("component", "watcher")
	logger.Warn("Module changed", "file", "/tmp/x")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("Expected one JSON line, got %q: %v", buf.String(), err)
	}
	if entry["level"] != "warning" || entry["msg"] != "Module changed" {
		t.Errorf("Unexpected entry %v", entry)
	}
	if entry["component"] != "watcher" || entry["file"] != "/tmp/x" {
		t.Errorf("Expected fields in entry, got %v", entry)
	}
}
