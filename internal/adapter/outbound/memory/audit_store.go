package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/farm-gate/farmgate/internal/domain/audit"
)

// AuditStore implements audit.Store as an append-only in-memory log with a
// per-store monotonic sequence.
type AuditStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
	seq     int64
}

// Compile-time interface verification.
var _ audit.Store = (*AuditStore)(nil)

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// Append records entries, assigning ID, Seq, and Timestamp when unset.
func (s *AuditStore) Append(ctx context.Context, entries ...audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.seq++
		e.Seq = s.seq
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now().UTC()
		}
		s.entries = append(s.entries, e)
	}
	return nil
}

// RecentForSession returns up to limit entries for the session, newest
// first.
func (s *AuditStore) RecentForSession(ctx context.Context, sessionID string, limit int) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	var out []audit.Entry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].SessionID == sessionID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

// CountForSession returns the number of entries for the session.
func (s *AuditStore) CountForSession(ctx context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, e := range s.entries {
		if e.SessionID == sessionID {
			count++
		}
	}
	return count, nil
}
