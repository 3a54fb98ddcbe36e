package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultServerAddress         = "0.0.0.0"
	DefaultServerPort            = 8787
	DefaultThreadPoolSize        = 2
	DefaultWWWRoot               = "www"
	DefaultDocsRoot              = "www/docs"
	DefaultReadTimeout           = 30 * time.Second
	DefaultIdleTimeout           = 120 * time.Second
	DefaultShutdownTimeout       = 10 * time.Second
	DefaultAsyncTimeout          = 5 * time.Minute
	DefaultMaxHeaderBytes        = 1048576 // 1MB
	DefaultWorkingDir            = "/"
	DefaultFileLimit      uint64 = 4096
	DefaultServerUser            = "workbench-server"

	// Auth defaults
	DefaultCookieKeyFile   = "/var/lib/workbench/secure-cookie-key"
	DefaultCookieLifetime  = 24 * time.Hour
	DefaultPersistLifetime = 30 * 24 * time.Hour
	DefaultUsersFile       = "/etc/workbench/users"
	DefaultWatchUsersFile  = true

	// Session defaults
	DefaultSessionMode           = SessionModeLaunch
	DefaultSessionCommand        = "/usr/lib/workbench/bin/wsession"
	DefaultSessionSocketDir      = "/var/run/workbench"
	DefaultSessionLaunchTimeout  = 30 * time.Second
	DefaultSessionRPCTimeout     = 60 * time.Second
	DefaultSessionEventsTimeout  = 4 * time.Minute
	DefaultSessionContentTimeout = 4 * time.Minute
	DefaultSessionMaxProxies     = 256

	// R defaults
	DefaultRPath         = "/usr/bin/R"
	DefaultDetectTimeout = 10 * time.Second

	// Client log defaults
	DefaultClientLogEnabled       = true
	DefaultClientLogBackend       = "memory"
	DefaultClientLogMaxEntries    = 10000
	DefaultClientLogRetention     = 7 * 24 * time.Hour
	DefaultClientLogPruneInterval = time.Hour
	DefaultSQLitePath             = "data/client-log.db"
	DefaultSQLiteDriver           = "sqlite"
	DefaultSQLiteMaxOpenConns     = 4
	DefaultSQLiteWALMode          = true
	DefaultSQLiteBusyTimeout      = 5 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel        = "info"
	DefaultLoggingFormat       = "json"
	DefaultLoggingRedact       = true
	DefaultMetricsEnabled      = true
	DefaultPrometheusPath      = "/metrics"
	DefaultMetricsNamespace    = "workbench"
	DefaultMetricsSubsystem    = "server"
	DefaultTracingSampler      = "ratio"
	DefaultTracingSampleRatio  = 0.1
	DefaultTracingServiceName  = "workbench-server"
	DefaultTracingInsecure     = true
	DefaultTracingTimeout      = 10 * time.Second
	DefaultHealthLivenessPath  = "/health/live"
	DefaultHealthReadinessPath = "/health/ready"
	DefaultHealthCheckTimeout  = 5 * time.Second
)

// Session modes.
const (
	SessionModeLaunch = "launch"
	SessionModeStatic = "static"
)

// DefaultRequestDurationBuckets are the default request duration histogram
// buckets in seconds.
var DefaultRequestDurationBuckets = []float64{0.005, 0.025, 0.1, 0.25, 1, 2.5, 10, 60}

// DefaultAddins are the add-ins registered when none are configured.
var DefaultAddins = []string{"health", "metrics"}

// Default returns a configuration with every field at its default value.
// Boolean fields whose default is true are set here, since ApplyDefaults
// cannot distinguish an explicit false from an unset field.
func Default() *Config {
	cfg := &Config{}
	cfg.Auth.WatchUsersFile = DefaultWatchUsersFile
	cfg.ClientLog.Enabled = DefaultClientLogEnabled
	cfg.ClientLog.SQLite.WALMode = DefaultSQLiteWALMode
	cfg.Telemetry.Logging.Redact = DefaultLoggingRedact
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Tracing.Insecure = DefaultTracingInsecure
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset (zero-valued) field with its default.
// It never overwrites a value that is already set.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyAuthDefaults(&cfg.Auth)
	applySessionDefaults(&cfg.Session)

	if cfg.R.Path == "" {
		cfg.R.Path = DefaultRPath
	}
	if cfg.R.DetectTimeout == 0 {
		cfg.R.DetectTimeout = DefaultDetectTimeout
	}

	applyClientLogDefaults(&cfg.ClientLog)

	if cfg.Addins.Enabled == nil {
		cfg.Addins.Enabled = append([]string(nil), DefaultAddins...)
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Address == "" {
		cfg.Address = DefaultServerAddress
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultServerPort
	}
	if cfg.ThreadPoolSize == 0 {
		cfg.ThreadPoolSize = DefaultThreadPoolSize
	}
	if cfg.WWWRoot == "" {
		cfg.WWWRoot = DefaultWWWRoot
	}
	if cfg.DocsRoot == "" {
		cfg.DocsRoot = DefaultDocsRoot
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.AsyncTimeout == 0 {
		cfg.AsyncTimeout = DefaultAsyncTimeout
	}
	if cfg.MaxHeaderBytes == 0 {
		cfg.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.WorkingDir == "" {
		cfg.WorkingDir = DefaultWorkingDir
	}
	if cfg.FileLimit == 0 {
		cfg.FileLimit = DefaultFileLimit
	}
	if cfg.ServerUser == "" {
		cfg.ServerUser = DefaultServerUser
	}
}

func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.CookieKeyFile == "" {
		cfg.CookieKeyFile = DefaultCookieKeyFile
	}
	if cfg.CookieLifetime == 0 {
		cfg.CookieLifetime = DefaultCookieLifetime
	}
	if cfg.PersistLifetime == 0 {
		cfg.PersistLifetime = DefaultPersistLifetime
	}
	if cfg.UsersFile == "" {
		cfg.UsersFile = DefaultUsersFile
	}
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.Mode == "" {
		cfg.Mode = DefaultSessionMode
	}
	if cfg.Command == "" {
		cfg.Command = DefaultSessionCommand
	}
	if cfg.SocketDir == "" {
		cfg.SocketDir = DefaultSessionSocketDir
	}
	if cfg.LaunchTimeout == 0 {
		cfg.LaunchTimeout = DefaultSessionLaunchTimeout
	}
	if cfg.RPCTimeout == 0 {
		cfg.RPCTimeout = DefaultSessionRPCTimeout
	}
	if cfg.EventsTimeout == 0 {
		cfg.EventsTimeout = DefaultSessionEventsTimeout
	}
	if cfg.ContentTimeout == 0 {
		cfg.ContentTimeout = DefaultSessionContentTimeout
	}
	if cfg.MaxProxies == 0 {
		cfg.MaxProxies = DefaultSessionMaxProxies
	}
}

func applyClientLogDefaults(cfg *ClientLogConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultClientLogBackend
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = DefaultClientLogMaxEntries
	}
	if cfg.Retention == 0 {
		cfg.Retention = DefaultClientLogRetention
	}
	if cfg.PruneInterval == 0 {
		cfg.PruneInterval = DefaultClientLogPruneInterval
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = DefaultSQLitePath
	}
	if cfg.SQLite.Driver == "" {
		cfg.SQLite.Driver = DefaultSQLiteDriver
	}
	if cfg.SQLite.MaxOpenConns == 0 {
		cfg.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.SQLite.BusyTimeout == 0 {
		cfg.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Subsystem == "" {
		cfg.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Metrics.RequestDurationBuckets) == 0 {
		cfg.Metrics.RequestDurationBuckets = append([]float64(nil), DefaultRequestDurationBuckets...)
	}
	if cfg.Tracing.Sampler == "" {
		cfg.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Tracing.Timeout == 0 {
		cfg.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Health.LivenessPath == "" {
		cfg.Health.LivenessPath = DefaultHealthLivenessPath
	}
	if cfg.Health.ReadinessPath == "" {
		cfg.Health.ReadinessPath = DefaultHealthReadinessPath
	}
	if cfg.Health.CheckTimeout == 0 {
		cfg.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}
