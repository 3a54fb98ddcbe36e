package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Errorf("expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &Config{}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation to fail")
	}

	validationErr, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(validationErr.Errors) < 2 {
		t.Errorf("expected multiple errors, got %d", len(validationErr.Errors))
	}
	if !strings.Contains(validationErr.Error(), "validation failed with") {
		t.Errorf("error message should mention multiple errors: %s", validationErr.Error())
	}
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Config)
		errorField string
	}{
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"pool size zero", func(c *Config) { c.Server.ThreadPoolSize = 0 }, "server.thread_pool_size"},
		{"relative working dir", func(c *Config) { c.Server.WorkingDir = "var/lib" }, "server.working_dir"},
		{"negative async timeout", func(c *Config) { c.Server.AsyncTimeout = -1 }, "server.async_timeout"},
		{"events timeout not below async", func(c *Config) { c.Session.EventsTimeout = c.Server.AsyncTimeout }, "session.events_timeout"},
		{"content timeout above async", func(c *Config) { c.Session.ContentTimeout = c.Server.AsyncTimeout * 2 }, "session.content_timeout"},
		{"rpc timeout not below async", func(c *Config) { c.Server.AsyncTimeout = c.Session.RPCTimeout }, "session.rpc_timeout"},
		{"empty server user", func(c *Config) { c.Server.ServerUser = "" }, "server.server_user"},
		{"persist shorter than cookie", func(c *Config) { c.Auth.PersistLifetime = c.Auth.CookieLifetime / 2 }, "auth.persist_lifetime"},
		{"blank allowed user", func(c *Config) { c.Auth.AllowedUsers = []string{"alice", " "} }, "auth.allowed_users[1]"},
		{"unknown session mode", func(c *Config) { c.Session.Mode = "remote" }, "session.mode"},
		{"static without url", func(c *Config) { c.Session.Mode = SessionModeStatic }, "session.static_url"},
		{"static with bad url", func(c *Config) {
			c.Session.Mode = SessionModeStatic
			c.Session.StaticURL = "localhost"
		}, "session.static_url"},
		{"launch without command", func(c *Config) { c.Session.Command = "" }, "session.command"},
		{"unknown backend", func(c *Config) { c.ClientLog.Backend = "postgres" }, "client_log.backend"},
		{"unknown driver", func(c *Config) {
			c.ClientLog.Backend = "sqlite"
			c.ClientLog.SQLite.Driver = "pgx"
		}, "client_log.sqlite.driver"},
		{"duplicate addin", func(c *Config) { c.Addins.Enabled = []string{"health", "health"} }, "addins.enabled[1]"},
		{"bad log level", func(c *Config) { c.Telemetry.Logging.Level = "trace" }, "telemetry.logging.level"},
		{"bad log format", func(c *Config) { c.Telemetry.Logging.Format = "console" }, "telemetry.logging.format"},
		{"tracing without endpoint", func(c *Config) { c.Telemetry.Tracing.Enabled = true }, "telemetry.tracing.endpoint"},
		{"bad sample ratio", func(c *Config) { c.Telemetry.Tracing.SampleRatio = 1.5 }, "telemetry.tracing.sample_ratio"},
		{"relative liveness path", func(c *Config) { c.Telemetry.Health.LivenessPath = "live" }, "telemetry.health.liveness_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatalf("expected validation error for %s", tt.errorField)
			}
			verr := err.(ValidationError)
			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.errorField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error for field %s, got %v", tt.errorField, verr.Errors)
			}
		})
	}
}

func TestFieldError_Error(t *testing.T) {
	fe := FieldError{Field: "server.port", Message: "bad"}
	if fe.Error() != "server.port: bad" {
		t.Errorf("unexpected message %q", fe.Error())
	}
}

func TestValidate_DefaultProxyTimeoutsExpireFirst(t *testing.T) {
	cfg := Default()
	for name, d := range map[string]time.Duration{
		"rpc":     cfg.Session.RPCTimeout,
		"events":  cfg.Session.EventsTimeout,
		"content": cfg.Session.ContentTimeout,
	} {
		if d >= cfg.Server.AsyncTimeout {
			t.Errorf("default %s timeout %v does not expire before async timeout %v", name, d, cfg.Server.AsyncTimeout)
		}
	}
}
