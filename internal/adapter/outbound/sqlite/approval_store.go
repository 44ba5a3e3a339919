package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/farm-gate/farmgate/internal/domain/approval"
)

// ApprovalStore implements approval.Store on SQLite.
type ApprovalStore struct {
	db *sql.DB
}

// Compile-time interface verification.
var _ approval.Store = (*ApprovalStore)(nil)

// NewApprovalStore creates an ApprovalStore over an opened database.
func NewApprovalStore(db *sql.DB) *ApprovalStore {
	return &ApprovalStore{db: db}
}

// Insert records a new pending approval.
func (s *ApprovalStore) Insert(ctx context.Context, p approval.Pending) error {
	params, err := json.Marshal(p.Params)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_approvals(id, session_id, actor_id, tool_name, params, reason, status, created_at, expires_at, resolved_at, resolved_by)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.SessionID, p.ActorID, p.ToolName, string(params), p.Reason,
		string(p.Status), p.CreatedAt, nullTime(p.ExpiresAt), p.ResolvedAt, p.ResolvedBy)
	return err
}

// Get returns the approval, or nil if unknown.
func (s *ApprovalStore) Get(ctx context.Context, id string) (*approval.Pending, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, actor_id, tool_name, params, reason, status, created_at, expires_at, resolved_at, resolved_by
		 FROM pending_approvals WHERE id=?`, id)
	p, err := scanApproval(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Update applies a pending -> terminal transition. The WHERE clause makes
// the transition atomic per row: a row that already reached a terminal
// state is never overwritten, and the write fails with ErrAlreadyResolved.
func (s *ApprovalStore) Update(ctx context.Context, p approval.Pending) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_approvals SET status=?, resolved_at=?, resolved_by=? WHERE id=? AND status='pending'`,
		string(p.Status), p.ResolvedAt, p.ResolvedBy, p.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		current, err := s.Get(ctx, p.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return approval.ErrNotFound
		}
		return fmt.Errorf("%w: %s is %s", approval.ErrAlreadyResolved, p.ID, current.Status)
	}
	return nil
}

// ListPending returns the session's pending approvals in creation order.
func (s *ApprovalStore) ListPending(ctx context.Context, sessionID string) ([]approval.Pending, error) {
	query := `SELECT id, session_id, actor_id, tool_name, params, reason, status, created_at, expires_at, resolved_at, resolved_by
		 FROM pending_approvals WHERE status='pending'`
	args := []any{}
	if sessionID != "" {
		query += ` AND session_id=?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []approval.Pending
	for rows.Next() {
		p, err := scanApproval(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanApproval(scan func(...any) error) (approval.Pending, error) {
	var p approval.Pending
	var params, status string
	var expires, resolved sql.NullTime
	err := scan(&p.ID, &p.SessionID, &p.ActorID, &p.ToolName, &params, &p.Reason,
		&status, &p.CreatedAt, &expires, &resolved, &p.ResolvedBy)
	if err != nil {
		return p, err
	}
	p.Status = approval.Status(status)
	if params != "" {
		if err := json.Unmarshal([]byte(params), &p.Params); err != nil {
			return p, err
		}
	}
	if expires.Valid {
		p.ExpiresAt = expires.Time
	}
	if resolved.Valid {
		t := resolved.Time
		p.ResolvedAt = &t
	}
	return p, nil
}

// nullTime maps a zero time to NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
