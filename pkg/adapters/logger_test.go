// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-tablesync.
//
// go-tablesync is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package adapters

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("LogLevel.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		expected LogLevel
	}{
		{"debug", DebugLevel},
		{"DEBUG", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"garbage", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.name); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.expected)
		}
	}
}

func newBufferedLogger() (*DefaultLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &DefaultLogger{logger: slog.New(handler), level: InfoLevel}, &buf
}

func TestDefaultLogger(t *testing.T) {
	logger, buf := newBufferedLogger()
	ctx := context.Background()

	t.Run("Debug", func(t *testing.T) {
		buf.Reset()
		logger.SetLevel(DebugLevel)
		logger.Debug(ctx, "test debug message")
		output := buf.String()
		if !strings.Contains(output, "level=DEBUG") || !strings.Contains(output, "test debug message") {
			t.Errorf("Debug log missing expected content, got: %s", output)
		}
	})

	t.Run("Info", func(t *testing.T) {
		buf.Reset()
		logger.SetLevel(InfoLevel)
		logger.Info(ctx, "test info message")
		output := buf.String()
		if !strings.Contains(output, "level=INFO") || !strings.Contains(output, "test info message") {
			t.Errorf("Info log missing expected content, got: %s", output)
		}
	})

	t.Run("Warn", func(t *testing.T) {
		buf.Reset()
		logger.SetLevel(WarnLevel)
		logger.Warn(ctx, "test warn message")
		output := buf.String()
		if !strings.Contains(output, "level=WARN") || !strings.Contains(output, "test warn message") {
			t.Errorf("Warn log missing expected content, got: %s", output)
		}
	})

	t.Run("Error", func(t *testing.T) {
		buf.Reset()
		logger.SetLevel(ErrorLevel)
		logger.Error(ctx, "test error message")
		output := buf.String()
		if !strings.Contains(output, "level=ERROR") || !strings.Contains(output, "test error message") {
			t.Errorf("Error log missing expected content, got: %s", output)
		}
	})
}

func TestDefaultLogger_LevelFiltering(t *testing.T) {
	logger, buf := newBufferedLogger()
	logger.SetLevel(WarnLevel)

	logger.Debug(context.Background(), "suppressed debug")
	logger.Info(context.Background(), "suppressed info")
	if buf.Len() != 0 {
		t.Errorf("expected no output below warn level, got: %s", buf.String())
	}

	logger.Warn(context.Background(), "visible warn")
	if !strings.Contains(buf.String(), "visible warn") {
		t.Errorf("expected warn output, got: %s", buf.String())
	}
}

func TestDefaultLoggerWithFields(t *testing.T) {
	logger, buf := newBufferedLogger()

	child := logger.WithFields(Field{Key: "table", Value: "customers"})
	child.Info(context.Background(), "sync started", Field{Key: "rows", Value: 3})

	output := buf.String()
	if !strings.Contains(output, "table=customers") || !strings.Contains(output, "rows=3") {
		t.Errorf("expected both inherited and call-site fields, got: %s", output)
	}

	// The parent is unchanged.
	buf.Reset()
	logger.Info(context.Background(), "plain")
	if strings.Contains(buf.String(), "table=customers") {
		t.Errorf("parent logger leaked child fields: %s", buf.String())
	}
}

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()
	logger.SetLevel(DebugLevel)
	logger.Debug(context.Background(), "discarded")
	logger.Info(nil, "discarded") //nolint:staticcheck // nil context must be tolerated
	if logger.WithFields(Field{Key: "k", Value: "v"}) != logger {
		t.Error("NoOpLogger.WithFields should return itself")
	}
}
