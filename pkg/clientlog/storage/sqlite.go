package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/workbench/pkg/clientlog"
	"mercator-hq/workbench/pkg/config"
)

const sqliteBackend = "sqlite"

// SQLiteStore keeps client log entries in a SQLite database. The driver is
// either "sqlite" (modernc.org/sqlite, pure Go) or "sqlite3"
// (github.com/mattn/go-sqlite3, cgo).
type SQLiteStore struct {
	db     *sql.DB
	config config.SQLiteConfig

	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens the database and applies the schema.
func NewSQLiteStore(cfg config.SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, clientlog.NewStorageError(sqliteBackend, "open", fmt.Errorf("database path is required"))
	}
	switch cfg.Driver {
	case "":
		cfg.Driver = config.DefaultSQLiteDriver
	case "sqlite", "sqlite3":
	default:
		return nil, clientlog.NewStorageError(sqliteBackend, "open", fmt.Errorf("unknown driver %q", cfg.Driver))
	}

	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, clientlog.NewStorageError(sqliteBackend, "open", err)
			}
		}
	}

	db, err := sql.Open(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, clientlog.NewStorageError(sqliteBackend, "open", err)
	}

	maxConns := cfg.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 1
	}
	// Every connection to ":memory:" gets its own database.
	if cfg.Path == ":memory:" {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)

	s := &SQLiteStore{db: db, config: cfg}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	if s.config.WALMode && s.config.Path != ":memory:" {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return clientlog.NewStorageError(sqliteBackend, "initialize", fmt.Errorf("enable WAL: %w", err))
		}
	}

	if s.config.BusyTimeout > 0 {
		ms := s.config.BusyTimeout.Milliseconds()
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", ms)); err != nil {
			return clientlog.NewStorageError(sqliteBackend, "initialize", fmt.Errorf("set busy timeout: %w", err))
		}
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return clientlog.NewStorageError(sqliteBackend, "initialize", fmt.Errorf("create schema: %w", err))
	}

	if _, err := s.db.Exec(insertSchemaVersion, SchemaVersion); err != nil {
		return clientlog.NewStorageError(sqliteBackend, "initialize", fmt.Errorf("record schema version: %w", err))
	}

	var version int
	if err := s.db.QueryRow(getSchemaVersion).Scan(&version); err != nil {
		return clientlog.NewStorageError(sqliteBackend, "initialize", fmt.Errorf("read schema version: %w", err))
	}
	if version != SchemaVersion {
		return clientlog.NewStorageError(sqliteBackend, "initialize",
			fmt.Errorf("schema version mismatch: expected %d, got %d", SchemaVersion, version))
	}
	return nil
}

func (s *SQLiteStore) check() error {
	if s.closed {
		return clientlog.ErrClosed
	}
	return nil
}

// Append implements clientlog.Store.
func (s *SQLiteStore) Append(ctx context.Context, e *clientlog.Entry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO client_log (id, logged_at, user_name, level, message, client_id, user_agent)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Time.UnixNano(), e.User, int(e.Level), e.Message, e.ClientID, e.UserAgent)
	if err != nil {
		return clientlog.NewStorageError(sqliteBackend, "append", err)
	}
	return nil
}

// Query implements clientlog.Store.
func (s *SQLiteStore) Query(ctx context.Context, q clientlog.Query) ([]*clientlog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if q.User != "" {
		where = append(where, "user_name = ?")
		args = append(args, q.User)
	}
	if !q.Since.IsZero() {
		where = append(where, "logged_at >= ?")
		args = append(args, q.Since.UnixNano())
	}

	var b strings.Builder
	b.WriteString("SELECT id, logged_at, user_name, level, message, client_id, user_agent FROM client_log")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY logged_at DESC")
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, clientlog.NewStorageError(sqliteBackend, "query", err)
	}
	defer rows.Close()

	var out []*clientlog.Entry
	for rows.Next() {
		var (
			e         clientlog.Entry
			nanos     int64
			level     int
			clientID  sql.NullString
			userAgent sql.NullString
		)
		if err := rows.Scan(&e.ID, &nanos, &e.User, &level, &e.Message, &clientID, &userAgent); err != nil {
			return nil, clientlog.NewStorageError(sqliteBackend, "query", err)
		}
		e.Time = time.Unix(0, nanos).UTC()
		e.Level = clientlog.Level(level)
		e.ClientID = clientID.String
		e.UserAgent = userAgent.String
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, clientlog.NewStorageError(sqliteBackend, "query", err)
	}
	return out, nil
}

// Count implements clientlog.Store.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return 0, err
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM client_log").Scan(&n); err != nil {
		return 0, clientlog.NewStorageError(sqliteBackend, "count", err)
	}
	return n, nil
}

// PruneBefore implements clientlog.Store.
func (s *SQLiteStore) PruneBefore(ctx context.Context, t time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM client_log WHERE logged_at < ?", t.UnixNano())
	if err != nil {
		return 0, clientlog.NewStorageError(sqliteBackend, "prune", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, clientlog.NewStorageError(sqliteBackend, "prune", err)
	}
	return n, nil
}

// Chown hands the database files to uid and gid. A server opening its
// storage as root calls it before dropping privileges.
func (s *SQLiteStore) Chown(uid, gid int) error {
	if s.config.Path == ":memory:" {
		return nil
	}
	for _, name := range []string{s.config.Path, s.config.Path + "-wal", s.config.Path + "-shm"} {
		if err := os.Lchown(name, uid, gid); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return clientlog.NewStorageError(sqliteBackend, "chown", err)
		}
	}
	return nil
}

// Close implements clientlog.Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return clientlog.NewStorageError(sqliteBackend, "close", err)
	}
	return nil
}
