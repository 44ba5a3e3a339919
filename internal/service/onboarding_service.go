package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/farm-gate/farmgate/internal/domain/policy"
)

// ErrActorNotFound is returned when configuring an unknown actor.
var ErrActorNotFound = errors.New("actor not found")

// OnboardingService creates actors and their policy configuration. Every
// mutation invalidates the gateway's decision cache; stale cached denials or
// allows would otherwise outlive the policy that produced them.
type OnboardingService struct {
	store      policy.Store
	invalidate func()
	log        *slog.Logger
	now        func() time.Time
}

// NewOnboardingService creates an OnboardingService. invalidate is called
// after every policy mutation; nil is allowed.
func NewOnboardingService(store policy.Store, invalidate func(), log *slog.Logger) *OnboardingService {
	if invalidate == nil {
		invalidate = func() {}
	}
	if log == nil {
		log = slog.Default()
	}
	return &OnboardingService{
		store:      store,
		invalidate: invalidate,
		log:        log,
		now:        time.Now,
	}
}

// CreateActor registers an actor and applies the preset's security profile.
// An empty preset selects standard.
func (s *OnboardingService) CreateActor(ctx context.Context, id, name string, preset policy.SecurityPreset) (policy.Actor, error) {
	if preset == "" {
		preset = policy.PresetStandard
	}
	a := policy.Actor{
		ID:        id,
		Name:      name,
		Preset:    preset,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateActor(ctx, a); err != nil {
		return policy.Actor{}, fmt.Errorf("create actor: %w", err)
	}
	if err := s.store.SetProfile(ctx, policy.ProfileForPreset(id, preset)); err != nil {
		return policy.Actor{}, fmt.Errorf("set profile: %w", err)
	}
	s.invalidate()
	s.log.Info("actor onboarded", "actor_id", id, "preset", preset)
	return a, nil
}

// AddWorkspaceGrant grants the actor access to a path prefix. An empty mode
// selects the actor's preset default.
func (s *OnboardingService) AddWorkspaceGrant(ctx context.Context, actorID, prefix, name string, mode policy.WorkspaceMode) error {
	a, err := s.store.GetActor(ctx, actorID)
	if err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("%w: %s", ErrActorNotFound, actorID)
	}
	if mode == "" {
		mode = a.Preset.DefaultMode()
	}
	if err := s.store.AddGrant(ctx, policy.WorkspaceGrant{
		ActorID: actorID,
		Prefix:  prefix,
		Mode:    mode,
		Name:    name,
	}); err != nil {
		return fmt.Errorf("add grant: %w", err)
	}
	s.invalidate()
	s.log.Info("workspace grant added",
		"actor_id", actorID,
		"prefix", prefix,
		"mode", mode)
	return nil
}

// SetSecurityProfile replaces the actor's security profile.
func (s *OnboardingService) SetSecurityProfile(ctx context.Context, p policy.SecurityProfile) error {
	a, err := s.store.GetActor(ctx, p.ActorID)
	if err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("%w: %s", ErrActorNotFound, p.ActorID)
	}
	if err := s.store.SetProfile(ctx, p); err != nil {
		return fmt.Errorf("set profile: %w", err)
	}
	s.invalidate()
	s.log.Info("security profile updated", "actor_id", p.ActorID, "shell_enabled", p.ShellEnabled)
	return nil
}
