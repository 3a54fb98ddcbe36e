package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"mercator-hq/workbench/pkg/clientlog"
)

// MemoryStore keeps the most recent entries in memory, dropping the oldest
// beyond its capacity.
type MemoryStore struct {
	mu      sync.RWMutex
	max     int
	entries []*clientlog.Entry
	closed  bool
}

// NewMemoryStore returns a store holding at most max entries.
func NewMemoryStore(max int) *MemoryStore {
	if max < 1 {
		max = 1
	}
	return &MemoryStore{max: max}
}

// Append implements clientlog.Store.
func (s *MemoryStore) Append(_ context.Context, e *clientlog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return clientlog.ErrClosed
	}
	cp := *e
	s.entries = append(s.entries, &cp)
	if over := len(s.entries) - s.max; over > 0 {
		s.entries = append(s.entries[:0:0], s.entries[over:]...)
	}
	return nil
}

// Query implements clientlog.Store.
func (s *MemoryStore) Query(ctx context.Context, q clientlog.Query) ([]*clientlog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, clientlog.ErrClosed
	}

	var out []*clientlog.Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := s.entries[i]
		if q.User != "" && e.User != q.User {
			continue
		}
		if !q.Since.IsZero() && e.Time.Before(q.Since) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Count implements clientlog.Store.
func (s *MemoryStore) Count(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, clientlog.ErrClosed
	}
	return int64(len(s.entries)), nil
}

// PruneBefore implements clientlog.Store.
func (s *MemoryStore) PruneBefore(_ context.Context, t time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, clientlog.ErrClosed
	}
	kept := s.entries[:0]
	var deleted int64
	for _, e := range s.entries {
		if e.Time.Before(t) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = nil
	}
	s.entries = kept
	return deleted, nil
}

// Close implements clientlog.Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.entries = nil
	return nil
}
