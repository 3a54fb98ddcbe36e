package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"mercator-hq/workbench/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid JSON config", Config{Level: "info", Format: "json", Redact: true}, false},
		{"valid text config", Config{Level: "debug", Format: "text"}, false},
		{"empty config uses defaults", Config{}, false},
		{"invalid log level", Config{Level: "invalid", Format: "json"}, true},
		{"invalid format", Config{Level: "info", Format: "console"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.config.Writer = &buf
			logger, level, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (logger == nil || level == nil) {
				t.Error("New() returned nil logger or level")
			}
		})
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, level, err := New(Config{Level: "warn", Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn message should be logged")
	}

	level.Set(slog.LevelDebug)
	logger.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Error("debug message should be logged after lowering the level")
	}
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Config{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := WithRequestID(context.Background(), "req-42")
	ctx = WithUser(ctx, "alice")
	logger.InfoContext(ctx, "dispatching", "path", "/rpc/console")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if entry["request_id"] != "req-42" {
		t.Errorf("request_id = %v, want req-42", entry["request_id"])
	}
	if entry["user"] != "alice" {
		t.Errorf("user = %v, want alice", entry["user"])
	}
	if entry["path"] != "/rpc/console" {
		t.Errorf("path = %v, want /rpc/console", entry["path"])
	}
}

func TestLogger_Redaction(t *testing.T) {
	tests := []struct {
		name    string
		redact  bool
		args    []any
		hidden  string
		visible string
	}{
		{"cookie key", true, []any{"cookie", "user-id=abc123"}, "abc123", `"cookie":"***"`},
		{"password in value", true, []any{"body", "user=alice&password=hunter2"}, "hunter2", "password=***"},
		{"nested group", true, []any{slog.Group("headers", "authorization", "Bearer xyz")}, "xyz", "***"},
		{"disabled", false, []any{"cookie", "user-id=abc123"}, "", "abc123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, _, err := New(Config{Format: "json", Redact: tt.redact, Writer: &buf})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			logger.Info("message", tt.args...)

			out := buf.String()
			if tt.hidden != "" && strings.Contains(out, tt.hidden) {
				t.Errorf("output leaks %q: %s", tt.hidden, out)
			}
			if !strings.Contains(out, tt.visible) {
				t.Errorf("output missing %q: %s", tt.visible, out)
			}
		})
	}
}

func TestLogger_WithAttrsRedacted(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Config{Format: "json", Redact: true, Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.With("shared_secret", "s3cr3t").Info("launched")
	if strings.Contains(buf.String(), "s3cr3t") {
		t.Errorf("With() attributes not redacted: %s", buf.String())
	}
}

func TestInstall(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	if _, err := Install(Config{Format: "text", Writer: &buf}); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	slog.Info("through default")
	if !strings.Contains(buf.String(), "through default") {
		t.Error("Install() did not replace the default logger")
	}
}

func TestFromConfig(t *testing.T) {
	var buf bytes.Buffer
	cfg := FromConfig(config.LoggingConfig{Level: "error", Format: "text", Redact: true}, &buf)
	if cfg.Level != "error" || cfg.Format != "text" || !cfg.Redact || cfg.Writer != &buf {
		t.Errorf("FromConfig() = %+v", cfg)
	}
}

func BenchmarkLogger_Filtered(b *testing.B) {
	var buf bytes.Buffer
	logger, _, _ := New(Config{Level: "error", Writer: &buf, Redact: true})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		logger.Info("filtered", "i", i)
	}
}
