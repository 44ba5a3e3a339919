package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/farm-gate/farmgate/internal/domain/org"
)

// OrgStore implements org.Store on SQLite.
type OrgStore struct {
	db *sql.DB
}

// Compile-time interface verification.
var _ org.Store = (*OrgStore)(nil)

// NewOrgStore creates an OrgStore over an opened database.
func NewOrgStore(db *sql.DB) *OrgStore {
	return &OrgStore{db: db}
}

// SaveOrg creates or replaces an org registration.
func (s *OrgStore) SaveOrg(ctx context.Context, o org.Org) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orgs(id, name, org_type, description, model_primary, model_secondary, system_prompt, enabled, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, org_type=excluded.org_type, description=excluded.description,
			model_primary=excluded.model_primary, model_secondary=excluded.model_secondary,
			system_prompt=excluded.system_prompt, enabled=excluded.enabled`,
		o.ID, o.Name, o.Type, o.Description, o.ModelPrimary, o.ModelSecondary, o.SystemPrompt, o.Enabled, o.CreatedAt)
	return err
}

// GetOrg returns the org, or nil if unknown.
func (s *OrgStore) GetOrg(ctx context.Context, orgID string) (*org.Org, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, org_type, description, model_primary, model_secondary, system_prompt, enabled, created_at
		 FROM orgs WHERE id=?`, orgID)
	o, err := scanOrg(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOrgs returns all registered orgs.
func (s *OrgStore) ListOrgs(ctx context.Context) ([]org.Org, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, org_type, description, model_primary, model_secondary, system_prompt, enabled, created_at
		 FROM orgs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []org.Org
	for rows.Next() {
		o, err := scanOrg(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrg(scan func(...any) error) (org.Org, error) {
	var o org.Org
	err := scan(&o.ID, &o.Name, &o.Type, &o.Description, &o.ModelPrimary,
		&o.ModelSecondary, &o.SystemPrompt, &o.Enabled, &o.CreatedAt)
	return o, err
}

// SetToolPermission creates or replaces a tool permission row.
func (s *OrgStore) SetToolPermission(ctx context.Context, p org.ToolPermission) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO org_tools(org_id, tool_name, enabled, requires_approval) VALUES (?,?,?,?)
		 ON CONFLICT(org_id, tool_name) DO UPDATE SET
			enabled=excluded.enabled, requires_approval=excluded.requires_approval`,
		p.OrgID, p.ToolName, p.Enabled, p.RequiresApproval)
	return err
}

// ToolPermission returns the permission row, or nil when absent.
func (s *OrgStore) ToolPermission(ctx context.Context, orgID, toolName string) (*org.ToolPermission, error) {
	var p org.ToolPermission
	err := s.db.QueryRowContext(ctx,
		`SELECT org_id, tool_name, enabled, requires_approval FROM org_tools WHERE org_id=? AND tool_name=?`,
		orgID, toolName).
		Scan(&p.OrgID, &p.ToolName, &p.Enabled, &p.RequiresApproval)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// AddDenialRule records a denial rule, replacing a duplicate row.
func (s *OrgStore) AddDenialRule(ctx context.Context, r org.DenialRule) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO org_denials(org_id, denial_type, pattern, reason, condition) VALUES (?,?,?,?,?)
		 ON CONFLICT(org_id, denial_type, pattern) DO UPDATE SET
			reason=excluded.reason, condition=excluded.condition`,
		r.OrgID, string(r.Type), r.Pattern, r.Reason, r.Condition)
	return err
}

// DenialRules returns the org's denial rules, filtered by type when given.
func (s *OrgStore) DenialRules(ctx context.Context, orgID string, denialType org.DenialType) ([]org.DenialRule, error) {
	query := `SELECT org_id, denial_type, pattern, reason, condition FROM org_denials WHERE org_id=?`
	args := []any{orgID}
	if denialType != "" {
		query += ` AND denial_type=?`
		args = append(args, string(denialType))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []org.DenialRule
	for rows.Next() {
		var r org.DenialRule
		var dt string
		if err := rows.Scan(&r.OrgID, &dt, &r.Pattern, &r.Reason, &r.Condition); err != nil {
			return nil, err
		}
		r.Type = org.DenialType(dt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertCall records a new delegation call and assigns its sequence number.
func (s *OrgStore) InsertCall(ctx context.Context, c *org.Call) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM org_calls`).Scan(&c.Seq); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO org_calls(id, seq, session_id, caller_org, target_org, task, status, result, created_at, completed_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Seq, c.SessionID, c.CallerOrg, c.TargetOrg, c.Task, string(c.Status), c.Result, c.CreatedAt, c.CompletedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// GetCall returns the call, or nil if unknown.
func (s *OrgStore) GetCall(ctx context.Context, callID string) (*org.Call, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, seq, session_id, caller_org, target_org, task, status, result, created_at, completed_at
		 FROM org_calls WHERE id=?`, callID)
	c, err := scanCall(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateCall replaces a call row.
func (s *OrgStore) UpdateCall(ctx context.Context, c org.Call) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE org_calls SET status=?, result=?, completed_at=? WHERE id=?`,
		string(c.Status), c.Result, c.CompletedAt, c.ID)
	return err
}

// CallsForSession returns the session's calls in insertion order.
func (s *OrgStore) CallsForSession(ctx context.Context, sessionID string) ([]org.Call, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, seq, session_id, caller_org, target_org, task, status, result, created_at, completed_at
		 FROM org_calls WHERE session_id=? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []org.Call
	for rows.Next() {
		c, err := scanCall(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCall(scan func(...any) error) (org.Call, error) {
	var c org.Call
	var status string
	var completed sql.NullTime
	err := scan(&c.ID, &c.Seq, &c.SessionID, &c.CallerOrg, &c.TargetOrg,
		&c.Task, &status, &c.Result, &c.CreatedAt, &completed)
	if err != nil {
		return c, err
	}
	c.Status = org.CallStatus(status)
	if completed.Valid {
		t := completed.Time
		c.CompletedAt = &t
	}
	return c, nil
}

// AddDependency records a task dependency.
func (s *OrgStore) AddDependency(ctx context.Context, d org.TaskDependency) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_dependencies(task_id, depends_on, dependency_type) VALUES (?,?,?)
		 ON CONFLICT(task_id, depends_on) DO UPDATE SET dependency_type=excluded.dependency_type`,
		d.TaskID, d.DependsOn, d.Type)
	return err
}

// Dependencies returns all recorded task dependencies.
func (s *OrgStore) Dependencies(ctx context.Context) ([]org.TaskDependency, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, depends_on, dependency_type FROM task_dependencies ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []org.TaskDependency
	for rows.Next() {
		var d org.TaskDependency
		if err := rows.Scan(&d.TaskID, &d.DependsOn, &d.Type); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
