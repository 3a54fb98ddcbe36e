package config

import "time"

// Config is the root configuration structure for the workbench server.
// It contains every section read at startup: the HTTP front end, the
// authentication layer, the per-user session back ends, the R environment,
// client log storage, add-ins, and telemetry.
type Config struct {
	// Server contains HTTP front-end configuration including the listen
	// address, worker pool size, timeouts, and process-level settings.
	Server ServerConfig `yaml:"server"`

	// Auth contains authentication configuration including the secure cookie
	// key location and the built-in password provider settings.
	Auth AuthConfig `yaml:"auth"`

	// Session contains configuration for locating or launching the per-user
	// back-end session processes that requests are proxied to.
	Session SessionConfig `yaml:"session"`

	// R contains configuration used to detect the R environment handed to
	// launched sessions.
	R REnvironmentConfig `yaml:"r"`

	// ClientLog contains configuration for storing log messages posted by
	// browser clients to the /log endpoint.
	ClientLog ClientLogConfig `yaml:"client_log"`

	// Addins lists optional handler bundles registered at startup.
	Addins AddinsConfig `yaml:"addins"`

	// Telemetry contains configuration for observability including logging,
	// metrics, tracing, and health endpoints.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP front end.
type ServerConfig struct {
	// Address is the interface address to bind.
	// Default: "0.0.0.0"
	Address string `yaml:"address"`

	// Port is the TCP port to bind.
	// Default: 8787
	Port int `yaml:"port"`

	// ThreadPoolSize is the number of workers invoking request handlers.
	// Default: 2
	ThreadPoolSize int `yaml:"thread_pool_size"`

	// WWWRoot is the directory served by the default file handler.
	// Default: "www"
	WWWRoot string `yaml:"www_root"`

	// DocsRoot is the directory served under /docs.
	// Default: "www/docs"
	DocsRoot string `yaml:"docs_root"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero value means no timeout.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Long-polling event requests hold responses open, so the
	// default is no timeout.
	// Default: 0
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for in-flight
	// requests during graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AsyncTimeout bounds how long a connection may wait for its handler to
	// write a response. Connections exceeding it are completed with 504.
	// Default: 5m
	AsyncTimeout time.Duration `yaml:"async_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes read parsing the
	// request header.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// WorkingDir is the directory the process changes into at startup.
	// Default: "/"
	WorkingDir string `yaml:"working_dir"`

	// FileLimit is the open-file limit applied when started as root.
	// Default: 4096
	FileLimit uint64 `yaml:"file_limit"`

	// ServerUser is the unprivileged account the process runs as after
	// startup when started as root.
	// Default: "workbench-server"
	ServerUser string `yaml:"server_user"`

	// Daemonize detaches the process from the controlling terminal.
	// Default: false
	Daemonize bool `yaml:"daemonize"`

	// Offline serves only the offline handler set.
	// Default: false
	Offline bool `yaml:"offline"`

	// AppArmor confines the process to the restricted AppArmor profile when
	// it is available.
	// Default: false
	AppArmor bool `yaml:"app_armor"`
}

// AuthConfig contains authentication configuration.
type AuthConfig struct {
	// CookieKeyFile is the path of the secure cookie key. The key is created
	// with mode 0600 when the file does not exist.
	// Default: "/var/lib/workbench/secure-cookie-key"
	CookieKeyFile string `yaml:"cookie_key_file"`

	// CookieSecure marks identity cookies as Secure (HTTPS only).
	// Default: false
	CookieSecure bool `yaml:"cookie_secure"`

	// CookieLifetime is how long a signed-in identity remains valid.
	// Default: 24h
	CookieLifetime time.Duration `yaml:"cookie_lifetime"`

	// PersistLifetime is the identity lifetime when the user asks to stay
	// signed in.
	// Default: 720h (30 days)
	PersistLifetime time.Duration `yaml:"persist_lifetime"`

	// UsersFile is the password file read by the built-in provider. Each
	// line has the form "username:argon2id$...".
	// Default: "/etc/workbench/users"
	UsersFile string `yaml:"users_file"`

	// WatchUsersFile reloads UsersFile when it changes on disk.
	// Default: true
	WatchUsersFile bool `yaml:"watch_users_file"`

	// AllowedUsers restricts access to the listed users. Empty allows every
	// authenticated user.
	AllowedUsers []string `yaml:"allowed_users"`
}

// SessionConfig contains configuration for the per-user session back ends.
type SessionConfig struct {
	// Mode selects how back ends are located.
	// Options: "launch" (spawn one process per user), "static" (forward to a
	// single fixed back end)
	// Default: "launch"
	Mode string `yaml:"mode"`

	// Command is the session executable started in launch mode.
	// Default: "/usr/lib/workbench/bin/wsession"
	Command string `yaml:"command"`

	// Args are extra arguments passed to every launched session.
	Args []string `yaml:"args"`

	// SocketDir holds the unix sockets launched sessions listen on.
	// Default: "/var/run/workbench"
	SocketDir string `yaml:"socket_dir"`

	// StaticURL is the back end used in static mode.
	// Example: "http://127.0.0.1:8788"
	StaticURL string `yaml:"static_url"`

	// LaunchTimeout bounds how long a newly launched session may take to
	// accept connections.
	// Default: 30s
	LaunchTimeout time.Duration `yaml:"launch_timeout"`

	// RPCTimeout bounds a proxied RPC request.
	// Default: 60s
	RPCTimeout time.Duration `yaml:"rpc_timeout"`

	// EventsTimeout bounds a proxied long-poll events request. Must be
	// shorter than Server.AsyncTimeout.
	// Default: 4m
	EventsTimeout time.Duration `yaml:"events_timeout"`

	// ContentTimeout bounds a proxied content request. Must be shorter
	// than Server.AsyncTimeout.
	// Default: 4m
	ContentTimeout time.Duration `yaml:"content_timeout"`

	// MaxProxies is the number of per-user reverse proxies kept cached.
	// Default: 256
	MaxProxies int `yaml:"max_proxies"`
}

// REnvironmentConfig contains configuration for R environment detection.
type REnvironmentConfig struct {
	// Path is the R executable queried for R_HOME.
	// Default: "/usr/bin/R"
	Path string `yaml:"path"`

	// Home overrides detection with a fixed R_HOME.
	Home string `yaml:"home"`

	// LdLibraryPath is appended to the library path of launched sessions.
	LdLibraryPath string `yaml:"ld_library_path"`

	// DetectTimeout bounds the helper process used for detection.
	// Default: 10s
	DetectTimeout time.Duration `yaml:"detect_timeout"`
}

// ClientLogConfig contains configuration for client log storage.
type ClientLogConfig struct {
	// Enabled controls whether posted client log entries are stored.
	// Entries are always written to the server log.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects the store.
	// Options: "memory", "sqlite"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// MaxEntries caps the memory store.
	// Default: 10000
	MaxEntries int `yaml:"max_entries"`

	// Retention is how long entries are kept before pruning.
	// Default: 168h (7 days)
	Retention time.Duration `yaml:"retention"`

	// PruneInterval is how often the pruner runs.
	// Default: 1h
	PruneInterval time.Duration `yaml:"prune_interval"`

	// SQLite contains SQLite backend configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/client-log.db"
	Path string `yaml:"path"`

	// Driver selects the database/sql driver.
	// Options: "sqlite" (pure Go), "sqlite3" (cgo)
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 4
	MaxOpenConns int `yaml:"max_open_conns"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait for a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// AddinsConfig contains add-in configuration.
type AddinsConfig struct {
	// Enabled lists the add-ins to register.
	// Options: "health", "metrics"
	// Default: ["health", "metrics"]
	Enabled []string `yaml:"enabled"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// Redact masks cookies, passwords, and session secrets in log entries.
	// Default: true
	Redact bool `yaml:"redact"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "workbench"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "server"
	Subsystem string `yaml:"subsystem"`

	// RequestDurationBuckets defines histogram buckets for request duration (seconds).
	// Default: [0.005, 0.025, 0.1, 0.25, 1, 2.5, 10, 60]
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio".
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "workbench-server"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS for the collector connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for span exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// LivenessPath is the path for the liveness probe endpoint.
	// Default: "/health/live"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness probe endpoint.
	// Default: "/health/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// CheckTimeout is the timeout for individual component health checks.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}
