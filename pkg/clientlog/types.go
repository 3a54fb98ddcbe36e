package clientlog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Level is the severity reported by the client.
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	return l >= LevelError && l <= LevelInfo
}

// Entry is one client log message.
type Entry struct {
	ID        string
	Time      time.Time
	User      string
	Level     Level
	Message   string
	ClientID  string
	UserAgent string
}

// NewEntry returns an entry with a fresh id stamped at now.
func NewEntry(user string, level Level, message string, now time.Time) *Entry {
	return &Entry{
		ID:      uuid.NewString(),
		Time:    now.UTC(),
		User:    user,
		Level:   level,
		Message: message,
	}
}

// Query filters stored entries. Zero fields match everything.
type Query struct {
	User  string
	Since time.Time
	// Limit caps the result; entries are returned newest first.
	Limit int
}

// Store persists client log entries.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	Query(ctx context.Context, q Query) ([]*Entry, error)
	Count(ctx context.Context) (int64, error)
	// PruneBefore deletes entries older than t and returns how many.
	PruneBefore(ctx context.Context, t time.Time) (int64, error)
	Close() error
}
