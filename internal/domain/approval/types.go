// Package approval contains the human-in-the-loop approval state machine:
// pending -> approved | denied | expired, terminal states immutable.
package approval

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a pending approval.
type Status string

const (
	// StatusPending awaits a human decision.
	StatusPending Status = "pending"
	// StatusApproved is terminal: the gated call may proceed.
	StatusApproved Status = "approved"
	// StatusDenied is terminal: the gated call is refused.
	StatusDenied Status = "denied"
	// StatusExpired is terminal: the TTL elapsed before resolution.
	StatusExpired Status = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusDenied || s == StatusExpired
}

// ErrAlreadyResolved is returned when resolving an approval that is no
// longer pending. Terminal states are never silently overwritten.
var ErrAlreadyResolved = errors.New("approval already resolved")

// ErrNotFound is returned for unknown approval IDs.
var ErrNotFound = errors.New("approval not found")

// Pending is one gated tool call awaiting a decision.
type Pending struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	ActorID   string         `json:"actor_id"`
	ToolName  string         `json:"tool_name"`
	Params    map[string]any `json:"params,omitempty"`
	// Reason explains why the call was gated.
	Reason    string    `json:"reason"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	// ExpiresAt is the lazy-expiry deadline. Zero means no expiry.
	ExpiresAt  time.Time  `json:"expires_at,omitzero"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
}

// ExpiredAt reports whether the approval's deadline has passed as of now.
// Only meaningful for pending approvals.
func (p Pending) ExpiredAt(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// Store persists pending approvals. Implementations must make the
// pending -> terminal transition atomic per row.
type Store interface {
	// Insert records a new pending approval.
	Insert(ctx context.Context, p Pending) error
	// Get returns the approval, or nil if unknown.
	Get(ctx context.Context, id string) (*Pending, error)
	// Update replaces an approval row. Used only for state transitions.
	Update(ctx context.Context, p Pending) error
	// ListPending returns the session's pending approvals in creation
	// order. An empty sessionID lists pending approvals for all sessions.
	ListPending(ctx context.Context, sessionID string) ([]Pending, error)
}
