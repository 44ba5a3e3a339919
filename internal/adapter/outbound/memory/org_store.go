package memory

import (
	"context"
	"sync"
	"time"

	"github.com/farm-gate/farmgate/internal/domain/org"
)

// OrgStore implements org.Store backed by maps and an ordered call log.
type OrgStore struct {
	mu      sync.RWMutex
	orgs    map[string]org.Org
	perms   map[string]map[string]org.ToolPermission // orgID -> tool -> perm
	denials map[string][]org.DenialRule              // orgID -> rules
	calls   map[string]org.Call
	// callOrder preserves insertion order per session for chain queries.
	callOrder map[string][]string // sessionID -> call IDs
	deps      []org.TaskDependency
	seq       int64
}

// Compile-time interface verification.
var _ org.Store = (*OrgStore)(nil)

// NewOrgStore creates an empty OrgStore.
func NewOrgStore() *OrgStore {
	return &OrgStore{
		orgs:      make(map[string]org.Org),
		perms:     make(map[string]map[string]org.ToolPermission),
		denials:   make(map[string][]org.DenialRule),
		calls:     make(map[string]org.Call),
		callOrder: make(map[string][]string),
	}
}

// SaveOrg creates or replaces an org registration.
func (s *OrgStore) SaveOrg(ctx context.Context, o org.Org) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	s.orgs[o.ID] = o
	return nil
}

// GetOrg returns the org, or nil if unknown.
func (s *OrgStore) GetOrg(ctx context.Context, orgID string) (*org.Org, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orgs[orgID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

// ListOrgs returns all registered orgs.
func (s *OrgStore) ListOrgs(ctx context.Context) ([]org.Org, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]org.Org, 0, len(s.orgs))
	for _, o := range s.orgs {
		out = append(out, o)
	}
	return out, nil
}

// SetToolPermission creates or replaces a tool permission row.
func (s *OrgStore) SetToolPermission(ctx context.Context, p org.ToolPermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	perms := s.perms[p.OrgID]
	if perms == nil {
		perms = make(map[string]org.ToolPermission)
		s.perms[p.OrgID] = perms
	}
	perms[p.ToolName] = p
	return nil
}

// ToolPermission returns the permission row, or nil when absent.
func (s *OrgStore) ToolPermission(ctx context.Context, orgID, toolName string) (*org.ToolPermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.perms[orgID][toolName]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// AddDenialRule records a denial rule, replacing a duplicate
// (org, type, pattern) row.
func (s *OrgStore) AddDenialRule(ctx context.Context, r org.DenialRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rules := s.denials[r.OrgID]
	for i, existing := range rules {
		if existing.Type == r.Type && existing.Pattern == r.Pattern {
			rules[i] = r
			return nil
		}
	}
	s.denials[r.OrgID] = append(rules, r)
	return nil
}

// DenialRules returns the org's denial rules, filtered by type when given.
func (s *OrgStore) DenialRules(ctx context.Context, orgID string, denialType org.DenialType) ([]org.DenialRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []org.DenialRule
	for _, r := range s.denials[orgID] {
		if denialType == "" || r.Type == denialType {
			out = append(out, r)
		}
	}
	return out, nil
}

// InsertCall records a new delegation call and assigns its sequence number.
func (s *OrgStore) InsertCall(ctx context.Context, c *org.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	c.Seq = s.seq
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.calls[c.ID] = *c
	s.callOrder[c.SessionID] = append(s.callOrder[c.SessionID], c.ID)
	return nil
}

// GetCall returns the call, or nil if unknown.
func (s *OrgStore) GetCall(ctx context.Context, callID string) (*org.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.calls[callID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// UpdateCall replaces a call row.
func (s *OrgStore) UpdateCall(ctx context.Context, c org.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[c.ID] = c
	return nil
}

// CallsForSession returns the session's calls in insertion order.
func (s *OrgStore) CallsForSession(ctx context.Context, sessionID string) ([]org.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.callOrder[sessionID]
	out := make([]org.Call, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.calls[id])
	}
	return out, nil
}

// AddDependency records a task dependency, replacing a duplicate
// (task, depends_on) row.
func (s *OrgStore) AddDependency(ctx context.Context, d org.TaskDependency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.deps {
		if existing.TaskID == d.TaskID && existing.DependsOn == d.DependsOn {
			s.deps[i] = d
			return nil
		}
	}
	s.deps = append(s.deps, d)
	return nil
}

// Dependencies returns all recorded task dependencies.
func (s *OrgStore) Dependencies(ctx context.Context) ([]org.TaskDependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]org.TaskDependency, len(s.deps))
	copy(out, s.deps)
	return out, nil
}
