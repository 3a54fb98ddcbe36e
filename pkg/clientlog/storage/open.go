// Package storage provides client log storage backends.
package storage

import (
	"fmt"

	"mercator-hq/workbench/pkg/clientlog"
	"mercator-hq/workbench/pkg/config"
)

// Open returns the backend selected by cfg.Backend.
func Open(cfg config.ClientLogConfig) (clientlog.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(cfg.MaxEntries), nil
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite)
	default:
		return nil, fmt.Errorf("unknown client log backend %q", cfg.Backend)
	}
}
