package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/farm-gate/farmgate/internal/domain/approval"
	"github.com/farm-gate/farmgate/internal/domain/audit"
)

// DefaultApprovalTTL bounds how long an approval stays actionable. Expiry is
// lazy: rows transition to expired when next observed, never by a background
// sweeper.
const DefaultApprovalTTL = 15 * time.Minute

// ApprovalService owns the pending-approval lifecycle. Creation happens
// inside the gateway's per-actor critical section; resolution comes from the
// admin surface.
type ApprovalService struct {
	store approval.Store
	ttl   time.Duration
	log   *slog.Logger
	now   func() time.Time
}

// NewApprovalService creates an ApprovalService. A ttl of zero selects
// DefaultApprovalTTL.
func NewApprovalService(store approval.Store, ttl time.Duration, log *slog.Logger) *ApprovalService {
	if ttl <= 0 {
		ttl = DefaultApprovalTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &ApprovalService{
		store: store,
		ttl:   ttl,
		log:   log,
		now:   time.Now,
	}
}

// Request records a new pending approval for a gated call and returns it.
// Parameters are redacted before persistence.
func (s *ApprovalService) Request(ctx context.Context, sessionID, actorID, toolName string, params map[string]any, reason string) (approval.Pending, error) {
	now := s.now().UTC()
	p := approval.Pending{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		ActorID:   actorID,
		ToolName:  toolName,
		Params:    audit.Redact(params),
		Reason:    reason,
		Status:    approval.StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.Insert(ctx, p); err != nil {
		return approval.Pending{}, fmt.Errorf("insert approval: %w", err)
	}
	s.log.Info("approval requested",
		"approval_id", p.ID,
		"actor_id", actorID,
		"tool", toolName,
		"reason", reason)
	return p, nil
}

// Get returns the approval by ID, expiring it first if its deadline passed.
func (s *ApprovalService) Get(ctx context.Context, id string) (approval.Pending, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return approval.Pending{}, err
	}
	if p == nil {
		return approval.Pending{}, approval.ErrNotFound
	}
	return s.expireIfDue(ctx, *p), nil
}

// Resolve transitions a pending approval to approved or denied. Resolving a
// terminal approval returns ErrAlreadyResolved; a lapsed deadline expires
// the row instead of applying the decision.
func (s *ApprovalService) Resolve(ctx context.Context, id string, approve bool, resolvedBy string) (approval.Pending, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return approval.Pending{}, err
	}
	if p == nil {
		return approval.Pending{}, approval.ErrNotFound
	}
	if p.Status.Terminal() {
		return *p, fmt.Errorf("%w: %s is %s", approval.ErrAlreadyResolved, id, p.Status)
	}
	now := s.now().UTC()
	if p.ExpiredAt(now) {
		expired := s.expireIfDue(ctx, *p)
		return expired, fmt.Errorf("%w: %s expired at %s", approval.ErrAlreadyResolved, id, p.ExpiresAt.Format(time.RFC3339))
	}
	if approve {
		p.Status = approval.StatusApproved
	} else {
		p.Status = approval.StatusDenied
	}
	p.ResolvedAt = &now
	p.ResolvedBy = resolvedBy
	if err := s.store.Update(ctx, *p); err != nil {
		return approval.Pending{}, fmt.Errorf("update approval: %w", err)
	}
	s.log.Info("approval resolved",
		"approval_id", p.ID,
		"status", p.Status,
		"resolved_by", resolvedBy)
	return *p, nil
}

// ListPending returns a session's still-actionable approvals in creation
// order, expiring any whose deadline passed. An empty sessionID spans all
// sessions.
func (s *ApprovalService) ListPending(ctx context.Context, sessionID string) ([]approval.Pending, error) {
	pending, err := s.store.ListPending(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	live := pending[:0]
	for _, p := range pending {
		got := s.expireIfDue(ctx, p)
		if got.Status == approval.StatusPending {
			live = append(live, got)
		}
	}
	return live, nil
}

// expireIfDue lazily writes the expired state for a pending approval whose
// deadline has passed. Store failures are logged, not propagated; the caller
// still observes the expired view.
func (s *ApprovalService) expireIfDue(ctx context.Context, p approval.Pending) approval.Pending {
	if p.Status != approval.StatusPending || !p.ExpiredAt(s.now().UTC()) {
		return p
	}
	p.Status = approval.StatusExpired
	if err := s.store.Update(ctx, p); err != nil {
		s.log.Warn("failed to persist approval expiry", "approval_id", p.ID, "error", err)
	}
	return p
}
