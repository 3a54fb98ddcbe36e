package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.port").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateSession(&cfg.Session)...)
	errs = append(errs, validateProxyTimeouts(&cfg.Server, &cfg.Session)...)
	errs = append(errs, validateClientLog(&cfg.ClientLog)...)
	errs = append(errs, validateAddins(&cfg.Addins)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateProxyTimeouts requires every proxy timeout to expire before the
// server's async timeout, so a stalled session is answered by the proxy.
func validateProxyTimeouts(srv *ServerConfig, sess *SessionConfig) []FieldError {
	if srv.AsyncTimeout <= 0 {
		return nil
	}

	var errs []FieldError
	for _, t := range []struct {
		field string
		value time.Duration
	}{
		{"session.rpc_timeout", sess.RPCTimeout},
		{"session.events_timeout", sess.EventsTimeout},
		{"session.content_timeout", sess.ContentTimeout},
	} {
		if t.value >= srv.AsyncTimeout {
			errs = append(errs, FieldError{
				Field:   t.field,
				Message: fmt.Sprintf("must be shorter than server.async_timeout (%s)", srv.AsyncTimeout),
			})
		}
	}
	return errs
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.Address == "" {
		errs = append(errs, FieldError{
			Field:   "server.address",
			Message: "address is required",
		})
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, FieldError{
			Field:   "server.port",
			Message: fmt.Sprintf("port %d out of range 1-65535", cfg.Port),
		})
	}
	if cfg.ThreadPoolSize < 1 {
		errs = append(errs, FieldError{
			Field:   "server.thread_pool_size",
			Message: "thread pool size must be at least 1",
		})
	}
	if cfg.WWWRoot == "" {
		errs = append(errs, FieldError{
			Field:   "server.www_root",
			Message: "www root is required",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.idle_timeout",
			Message: "idle timeout must be positive",
		})
	}
	if cfg.AsyncTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "server.async_timeout",
			Message: "async timeout must be positive",
		})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}

	if cfg.WorkingDir != "" && !filepath.IsAbs(cfg.WorkingDir) {
		errs = append(errs, FieldError{
			Field:   "server.working_dir",
			Message: "working directory must be an absolute path",
		})
	}
	if cfg.ServerUser == "" {
		errs = append(errs, FieldError{
			Field:   "server.server_user",
			Message: "server user is required",
		})
	}

	return errs
}

func validateAuth(cfg *AuthConfig) []FieldError {
	var errs []FieldError

	if cfg.CookieKeyFile == "" {
		errs = append(errs, FieldError{
			Field:   "auth.cookie_key_file",
			Message: "cookie key file is required",
		})
	}
	if cfg.CookieLifetime <= 0 {
		errs = append(errs, FieldError{
			Field:   "auth.cookie_lifetime",
			Message: "cookie lifetime must be positive",
		})
	}
	if cfg.PersistLifetime < cfg.CookieLifetime {
		errs = append(errs, FieldError{
			Field:   "auth.persist_lifetime",
			Message: "persist lifetime must not be shorter than cookie lifetime",
		})
	}
	for i, user := range cfg.AllowedUsers {
		if strings.TrimSpace(user) == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("auth.allowed_users[%d]", i),
				Message: "user name must not be empty",
			})
		}
	}

	return errs
}

func validateSession(cfg *SessionConfig) []FieldError {
	var errs []FieldError

	switch cfg.Mode {
	case SessionModeLaunch:
		if cfg.Command == "" {
			errs = append(errs, FieldError{
				Field:   "session.command",
				Message: "session command is required in launch mode",
			})
		}
		if cfg.SocketDir == "" {
			errs = append(errs, FieldError{
				Field:   "session.socket_dir",
				Message: "socket directory is required in launch mode",
			})
		}
	case SessionModeStatic:
		if cfg.StaticURL == "" {
			errs = append(errs, FieldError{
				Field:   "session.static_url",
				Message: "static URL is required in static mode",
			})
		} else if u, err := url.Parse(cfg.StaticURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, FieldError{
				Field:   "session.static_url",
				Message: fmt.Sprintf("invalid static URL %q", cfg.StaticURL),
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "session.mode",
			Message: fmt.Sprintf("invalid session mode %q: must be 'launch' or 'static'", cfg.Mode),
		})
	}

	if cfg.LaunchTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "session.launch_timeout",
			Message: "launch timeout must be positive",
		})
	}
	if cfg.RPCTimeout <= 0 || cfg.EventsTimeout <= 0 || cfg.ContentTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "session.timeouts",
			Message: "proxy timeouts must be positive",
		})
	}
	if cfg.MaxProxies < 1 {
		errs = append(errs, FieldError{
			Field:   "session.max_proxies",
			Message: "max proxies must be at least 1",
		})
	}

	return errs
}

func validateClientLog(cfg *ClientLogConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
		if cfg.MaxEntries < 1 {
			errs = append(errs, FieldError{
				Field:   "client_log.max_entries",
				Message: "max entries must be at least 1",
			})
		}
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "client_log.sqlite.path",
				Message: "SQLite path is required when backend is 'sqlite'",
			})
		}
		if cfg.SQLite.Driver != "sqlite" && cfg.SQLite.Driver != "sqlite3" {
			errs = append(errs, FieldError{
				Field:   "client_log.sqlite.driver",
				Message: fmt.Sprintf("invalid driver %q: must be 'sqlite' or 'sqlite3'", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.MaxOpenConns < 1 {
			errs = append(errs, FieldError{
				Field:   "client_log.sqlite.max_open_conns",
				Message: "max open connections must be at least 1",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "client_log.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory' or 'sqlite'", cfg.Backend),
		})
	}

	if cfg.Retention <= 0 {
		errs = append(errs, FieldError{
			Field:   "client_log.retention",
			Message: "retention must be positive",
		})
	}
	if cfg.PruneInterval <= 0 {
		errs = append(errs, FieldError{
			Field:   "client_log.prune_interval",
			Message: "prune interval must be positive",
		})
	}

	return errs
}

func validateAddins(cfg *AddinsConfig) []FieldError {
	var errs []FieldError

	seen := make(map[string]bool)
	for i, name := range cfg.Enabled {
		if seen[name] {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("addins.enabled[%d]", i),
				Message: fmt.Sprintf("add-in %q listed more than once", name),
			})
		}
		seen[name] = true
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Logging.Level == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: "logging level is required",
		})
	} else if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	// Validate logging format
	validFormats := map[string]bool{"json": true, "text": true}
	if cfg.Logging.Format == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: "logging format is required",
		})
	} else if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	// Validate tracing configuration
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	switch cfg.Tracing.Sampler {
	case "always", "never", "ratio":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	if !strings.HasPrefix(cfg.Health.LivenessPath, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.health.liveness_path",
			Message: "liveness path must start with /",
		})
	}
	if !strings.HasPrefix(cfg.Health.ReadinessPath, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.health.readiness_path",
			Message: "readiness path must start with /",
		})
	}
	if cfg.Health.CheckTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.health.check_timeout",
			Message: "check timeout must be positive",
		})
	}

	return errs
}
