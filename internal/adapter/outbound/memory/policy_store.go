// Package memory provides in-memory implementations of the outbound store
// ports. Safe for concurrent use; intended for tests and single-process
// deployments without persistence.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/farm-gate/farmgate/internal/domain/policy"
)

// PolicyStore implements policy.Store backed by maps.
type PolicyStore struct {
	mu       sync.RWMutex
	actors   map[string]policy.Actor
	grants   map[string][]policy.WorkspaceGrant // actorID -> grants
	profiles map[string]policy.SecurityProfile
}

// Compile-time interface verification.
var _ policy.Store = (*PolicyStore)(nil)

// NewPolicyStore creates an empty PolicyStore.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{
		actors:   make(map[string]policy.Actor),
		grants:   make(map[string][]policy.WorkspaceGrant),
		profiles: make(map[string]policy.SecurityProfile),
	}
}

// CreateActor registers a new actor.
func (s *PolicyStore) CreateActor(ctx context.Context, a policy.Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.actors[a.ID]; exists {
		return fmt.Errorf("actor %s already exists", a.ID)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.actors[a.ID] = a
	return nil
}

// GetActor returns the actor, or nil if unknown.
func (s *PolicyStore) GetActor(ctx context.Context, actorID string) (*policy.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[actorID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// AddGrant records a workspace grant, replacing any grant with the same
// prefix.
func (s *PolicyStore) AddGrant(ctx context.Context, g policy.WorkspaceGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	grants := s.grants[g.ActorID]
	for i, existing := range grants {
		if existing.Prefix == g.Prefix {
			grants[i] = g
			return nil
		}
	}
	s.grants[g.ActorID] = append(grants, g)
	return nil
}

// Grants returns the actor's workspace grants.
func (s *PolicyStore) Grants(ctx context.Context, actorID string) ([]policy.WorkspaceGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grants := s.grants[actorID]
	out := make([]policy.WorkspaceGrant, len(grants))
	copy(out, grants)
	return out, nil
}

// SetProfile creates or replaces the actor's security profile.
func (s *PolicyStore) SetProfile(ctx context.Context, p policy.SecurityProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ActorID] = p
	return nil
}

// Profile returns the actor's security profile, or nil.
func (s *PolicyStore) Profile(ctx context.Context, actorID string) (*policy.SecurityProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[actorID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}
