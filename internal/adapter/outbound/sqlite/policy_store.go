package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/farm-gate/farmgate/internal/domain/policy"
)

// PolicyStore implements policy.Store on SQLite.
type PolicyStore struct {
	db *sql.DB
}

// Compile-time interface verification.
var _ policy.Store = (*PolicyStore)(nil)

// NewPolicyStore creates a PolicyStore over an opened database.
func NewPolicyStore(db *sql.DB) *PolicyStore {
	return &PolicyStore{db: db}
}

// CreateActor registers a new actor.
func (s *PolicyStore) CreateActor(ctx context.Context, a policy.Actor) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO actors(id, name, preset, created_at) VALUES (?,?,?,?)`,
		a.ID, a.Name, string(a.Preset), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create actor %s: %w", a.ID, err)
	}
	return nil
}

// GetActor returns the actor, or nil if unknown.
func (s *PolicyStore) GetActor(ctx context.Context, actorID string) (*policy.Actor, error) {
	var a policy.Actor
	var preset string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, preset, created_at FROM actors WHERE id=?`, actorID).
		Scan(&a.ID, &a.Name, &preset, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Preset = policy.SecurityPreset(preset)
	return &a, nil
}

// AddGrant records a workspace grant, replacing a same-prefix row.
func (s *PolicyStore) AddGrant(ctx context.Context, g policy.WorkspaceGrant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workspace_grants(actor_id, prefix, mode, name) VALUES (?,?,?,?)
		 ON CONFLICT(actor_id, prefix) DO UPDATE SET mode=excluded.mode, name=excluded.name`,
		g.ActorID, g.Prefix, string(g.Mode), g.Name)
	return err
}

// Grants returns the actor's workspace grants.
func (s *PolicyStore) Grants(ctx context.Context, actorID string) ([]policy.WorkspaceGrant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT actor_id, prefix, mode, name FROM workspace_grants WHERE actor_id=?`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []policy.WorkspaceGrant
	for rows.Next() {
		var g policy.WorkspaceGrant
		var mode string
		if err := rows.Scan(&g.ActorID, &g.Prefix, &mode, &g.Name); err != nil {
			return nil, err
		}
		g.Mode = policy.WorkspaceMode(mode)
		out = append(out, g)
	}
	return out, rows.Err()
}

// SetProfile creates or replaces the actor's security profile.
func (s *PolicyStore) SetProfile(ctx context.Context, p policy.SecurityProfile) error {
	blocklist, err := json.Marshal(p.ShellBlocklist)
	if err != nil {
		return err
	}
	sensitive, err := json.Marshal(p.SensitivePatterns)
	if err != nil {
		return err
	}
	allowed, err := json.Marshal(p.AllowedDomains)
	if err != nil {
		return err
	}
	blocked, err := json.Marshal(p.BlockedDomains)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO security_profiles(actor_id, shell_enabled, shell_blocklist, sensitive_patterns, allowed_domains, blocked_domains)
		 VALUES (?,?,?,?,?,?)
		 ON CONFLICT(actor_id) DO UPDATE SET
			shell_enabled=excluded.shell_enabled,
			shell_blocklist=excluded.shell_blocklist,
			sensitive_patterns=excluded.sensitive_patterns,
			allowed_domains=excluded.allowed_domains,
			blocked_domains=excluded.blocked_domains`,
		p.ActorID, p.ShellEnabled, string(blocklist), string(sensitive), string(allowed), string(blocked))
	return err
}

// Profile returns the actor's security profile, or nil.
func (s *PolicyStore) Profile(ctx context.Context, actorID string) (*policy.SecurityProfile, error) {
	var p policy.SecurityProfile
	var blocklist, sensitive, allowed, blocked string
	err := s.db.QueryRowContext(ctx,
		`SELECT actor_id, shell_enabled, shell_blocklist, sensitive_patterns, allowed_domains, blocked_domains
		 FROM security_profiles WHERE actor_id=?`, actorID).
		Scan(&p.ActorID, &p.ShellEnabled, &blocklist, &sensitive, &allowed, &blocked)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := decodeList(blocklist, &p.ShellBlocklist); err != nil {
		return nil, err
	}
	if err := decodeList(sensitive, &p.SensitivePatterns); err != nil {
		return nil, err
	}
	if err := decodeList(allowed, &p.AllowedDomains); err != nil {
		return nil, err
	}
	if err := decodeList(blocked, &p.BlockedDomains); err != nil {
		return nil, err
	}
	return &p, nil
}

func decodeList(raw string, dst *[]string) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode profile list: %w", err)
	}
	return nil
}
