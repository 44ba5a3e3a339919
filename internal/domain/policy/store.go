package policy

import "context"

// Store persists actors, workspace grants, and security profiles.
// Read methods return zero values rather than errors when configuration is
// absent: absence is a meaningful state (default-deny).
type Store interface {
	// CreateActor registers a new actor. Creating an existing actor ID is
	// an error.
	CreateActor(ctx context.Context, a Actor) error
	// GetActor returns the actor, or nil if unknown.
	GetActor(ctx context.Context, actorID string) (*Actor, error)

	// AddGrant records a workspace grant for an actor. Re-adding the same
	// prefix replaces the existing grant's mode.
	AddGrant(ctx context.Context, g WorkspaceGrant) error
	// Grants returns all workspace grants for the actor (possibly empty).
	Grants(ctx context.Context, actorID string) ([]WorkspaceGrant, error)

	// SetProfile creates or replaces the actor's security profile.
	SetProfile(ctx context.Context, p SecurityProfile) error
	// Profile returns the actor's security profile, or nil if none is set.
	Profile(ctx context.Context, actorID string) (*SecurityProfile, error)
}
