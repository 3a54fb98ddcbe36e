package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "/etc/workbench/workbench.yaml"

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "WORKBENCH_"

// LoadConfig loads configuration from a YAML file at the specified path.
// Values from the file are layered over Default(), then validated.
// The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	// Fields explicitly emptied in the file fall back to defaults.
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention WORKBENCH_SECTION_FIELD (e.g., WORKBENCH_SERVER_PORT).
// Environment variables always take precedence over file-based configuration.
//
// When path is DefaultPath and the file does not exist, defaults are used
// so a bare install can start without a configuration file.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		if path != DefaultPath || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = Default()
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("SERVER_ADDRESS", &cfg.Server.Address)
	envInt("SERVER_PORT", &cfg.Server.Port)
	envInt("SERVER_THREAD_POOL_SIZE", &cfg.Server.ThreadPoolSize)
	envString("SERVER_WWW_ROOT", &cfg.Server.WWWRoot)
	envString("SERVER_DOCS_ROOT", &cfg.Server.DocsRoot)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_ASYNC_TIMEOUT", &cfg.Server.AsyncTimeout)
	envString("SERVER_WORKING_DIR", &cfg.Server.WorkingDir)
	envString("SERVER_SERVER_USER", &cfg.Server.ServerUser)
	envBool("SERVER_DAEMONIZE", &cfg.Server.Daemonize)
	envBool("SERVER_OFFLINE", &cfg.Server.Offline)
	envBool("SERVER_APP_ARMOR", &cfg.Server.AppArmor)

	// Auth overrides
	envString("AUTH_COOKIE_KEY_FILE", &cfg.Auth.CookieKeyFile)
	envBool("AUTH_COOKIE_SECURE", &cfg.Auth.CookieSecure)
	envDuration("AUTH_COOKIE_LIFETIME", &cfg.Auth.CookieLifetime)
	envString("AUTH_USERS_FILE", &cfg.Auth.UsersFile)
	if val := os.Getenv(EnvPrefix + "AUTH_ALLOWED_USERS"); val != "" {
		cfg.Auth.AllowedUsers = splitList(val)
	}

	// Session overrides
	envString("SESSION_MODE", &cfg.Session.Mode)
	envString("SESSION_COMMAND", &cfg.Session.Command)
	envString("SESSION_SOCKET_DIR", &cfg.Session.SocketDir)
	envString("SESSION_STATIC_URL", &cfg.Session.StaticURL)
	envDuration("SESSION_RPC_TIMEOUT", &cfg.Session.RPCTimeout)

	// R overrides
	envString("R_PATH", &cfg.R.Path)
	envString("R_HOME", &cfg.R.Home)

	// Client log overrides
	envBool("CLIENT_LOG_ENABLED", &cfg.ClientLog.Enabled)
	envString("CLIENT_LOG_BACKEND", &cfg.ClientLog.Backend)
	envString("CLIENT_LOG_SQLITE_PATH", &cfg.ClientLog.SQLite.Path)
	envString("CLIENT_LOG_SQLITE_DRIVER", &cfg.ClientLog.SQLite.Driver)
	envDuration("CLIENT_LOG_RETENTION", &cfg.ClientLog.Retention)

	// Add-in overrides
	if val, ok := os.LookupEnv(EnvPrefix + "ADDINS_ENABLED"); ok {
		cfg.Addins.Enabled = splitList(val)
	}

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

// splitList splits a comma-separated value, dropping empty items.
func splitList(val string) []string {
	items := []string{}
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
