package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/farm-gate/farmgate/internal/domain/approval"
)

// ApprovalStore implements approval.Store backed by a map plus an ordered
// ID list for creation-order listing.
type ApprovalStore struct {
	mu    sync.RWMutex
	rows  map[string]approval.Pending
	order []string
}

// Compile-time interface verification.
var _ approval.Store = (*ApprovalStore)(nil)

// NewApprovalStore creates an empty ApprovalStore.
func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{rows: make(map[string]approval.Pending)}
}

// Insert records a new pending approval.
func (s *ApprovalStore) Insert(ctx context.Context, p approval.Pending) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[p.ID] = p
	s.order = append(s.order, p.ID)
	return nil
}

// Get returns the approval, or nil if unknown.
func (s *ApprovalStore) Get(ctx context.Context, id string) (*approval.Pending, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// Update applies a pending -> terminal transition. A row that already
// reached a terminal state is never overwritten; the write fails with
// ErrAlreadyResolved instead.
func (s *ApprovalStore) Update(ctx context.Context, p approval.Pending) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.rows[p.ID]
	if !ok {
		return approval.ErrNotFound
	}
	if current.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", approval.ErrAlreadyResolved, p.ID, current.Status)
	}
	s.rows[p.ID] = p
	return nil
}

// ListPending returns the session's pending approvals in creation order.
func (s *ApprovalStore) ListPending(ctx context.Context, sessionID string) ([]approval.Pending, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []approval.Pending
	for _, id := range s.order {
		p := s.rows[id]
		if p.Status != approval.StatusPending {
			continue
		}
		if sessionID != "" && p.SessionID != sessionID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
