package tool

import (
	"context"
	"sort"
	"sync"
)

// ApprovalPredicate decides whether a specific call to the tool must be
// gated behind human approval. Each registered tool declares its own
// predicate instead of living on a hardcoded global list.
type ApprovalPredicate func(ctx context.Context, req Request) (required bool, reason string, err error)

// NeverRequiresApproval is the predicate for unconditionally ungated tools.
func NeverRequiresApproval(context.Context, Request) (bool, string, error) {
	return false, "", nil
}

// AlwaysRequiresApproval returns a predicate that gates every call with the
// given reason. Used for shell execution and destructive operations.
func AlwaysRequiresApproval(reason string) ApprovalPredicate {
	return func(context.Context, Request) (bool, string, error) {
		return true, reason, nil
	}
}

// PolicyCheck evaluates the actor's policy for one call before dispatch. A
// non-empty violations slice denies the call with the given reason.
type PolicyCheck func(ctx context.Context, req Request) (violations []Violation, reason string, err error)

// NoPolicyCheck is the check for tools with no per-call policy.
func NoPolicyCheck(context.Context, Request) ([]Violation, string, error) {
	return nil, "", nil
}

// Registration binds a tool name to its handler, approval predicate, and
// policy check.
type Registration struct {
	Name    string
	Handler Handler
	// RequiresApproval is consulted before policy evaluation; nil means
	// never.
	RequiresApproval ApprovalPredicate
	// Check runs after the approval gate and before dispatch; nil means no
	// per-call policy.
	Check PolicyCheck
}

// Registry is the dispatch table mapping tool names to registrations.
// Registration happens at boot; lookups are concurrent-safe.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Registration
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Registration)}
}

// Register adds or replaces a tool registration.
func (r *Registry) Register(reg Registration) {
	if reg.RequiresApproval == nil {
		reg.RequiresApproval = NeverRequiresApproval
	}
	if reg.Check == nil {
		reg.Check = NoPolicyCheck
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[reg.Name] = reg
}

// Lookup returns the registration for a tool name.
func (r *Registry) Lookup(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	return reg, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
