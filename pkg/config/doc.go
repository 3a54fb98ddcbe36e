// Package config provides configuration management for the workbench server.
//
// This package handles loading and validating configuration from YAML files
// with environment variable overrides. The loaded *Config is passed
// explicitly to every component; there is no process-wide instance.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("workbench.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("workbench.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention WORKBENCH_SECTION_FIELD.
// For example:
//
//   - WORKBENCH_SERVER_PORT overrides server.port
//   - WORKBENCH_SESSION_MODE overrides session.mode
//   - WORKBENCH_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Command-line flags (applied by the options package)
//  5. Validation (fails fast if invalid)
//
// # Validation
//
// Validation collects every problem into a single ValidationError whose
// Errors field lists one FieldError per offending field.
package config
