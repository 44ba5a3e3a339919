package org

import "context"

// Store persists orgs, their tool permissions and denial rules, delegation
// calls, and task dependencies. Permission/denial reads return zero values
// when nothing is configured; absence is meaningful (default-deny).
type Store interface {
	// SaveOrg creates or replaces an org registration.
	SaveOrg(ctx context.Context, o Org) error
	// GetOrg returns the org, or nil if unknown.
	GetOrg(ctx context.Context, orgID string) (*Org, error)
	// ListOrgs returns all registered orgs.
	ListOrgs(ctx context.Context) ([]Org, error)

	// SetToolPermission creates or replaces a tool permission row.
	SetToolPermission(ctx context.Context, p ToolPermission) error
	// ToolPermission returns the permission for (orgID, tool), or nil if
	// no row exists.
	ToolPermission(ctx context.Context, orgID, tool string) (*ToolPermission, error)

	// AddDenialRule records a denial rule. Duplicate (org, type, pattern)
	// rows replace the existing rule.
	AddDenialRule(ctx context.Context, r DenialRule) error
	// DenialRules returns the org's denial rules of the given type.
	// An empty denialType returns all rules for the org.
	DenialRules(ctx context.Context, orgID string, denialType DenialType) ([]DenialRule, error)

	// InsertCall records a new delegation call, assigning its session
	// sequence number.
	InsertCall(ctx context.Context, c *Call) error
	// GetCall returns the call, or nil if unknown.
	GetCall(ctx context.Context, callID string) (*Call, error)
	// UpdateCall replaces a call row (used for completion).
	UpdateCall(ctx context.Context, c Call) error
	// CallsForSession returns the session's calls in insertion order.
	CallsForSession(ctx context.Context, sessionID string) ([]Call, error)

	// AddDependency records a task dependency.
	AddDependency(ctx context.Context, d TaskDependency) error
	// Dependencies returns all recorded task dependencies.
	Dependencies(ctx context.Context) ([]TaskDependency, error)
}
