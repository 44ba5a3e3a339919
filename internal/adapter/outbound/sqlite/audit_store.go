package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/farm-gate/farmgate/internal/domain/audit"
)

// AuditStore implements audit.Store on SQLite. The audit_log table is
// append-only: no code path updates or deletes rows, and the AUTOINCREMENT
// seq column preserves creation order.
type AuditStore struct {
	db *sql.DB
}

// Compile-time interface verification.
var _ audit.Store = (*AuditStore)(nil)

// NewAuditStore creates an AuditStore over an opened database.
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// Append records entries, assigning ID and Timestamp when unset.
func (s *AuditStore) Append(ctx context.Context, entries ...audit.Entry) error {
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now().UTC()
		}
		params, err := json.Marshal(e.Parameters)
		if err != nil {
			return err
		}
		violations, err := json.Marshal(e.Violations)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO audit_log(id, session_id, actor_id, entry_type, tool_name, parameters, result, decision, violations, timestamp)
			 VALUES (?,?,?,?,?,?,?,?,?,?)`,
			e.ID, e.SessionID, e.ActorID, e.EntryType, e.ToolName,
			string(params), e.Result, e.Decision, string(violations), e.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

// RecentForSession returns up to limit entries for the session, newest
// first.
func (s *AuditStore) RecentForSession(ctx context.Context, sessionID string, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, session_id, actor_id, entry_type, tool_name, parameters, result, decision, violations, timestamp
		 FROM audit_log WHERE session_id=? ORDER BY seq DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var params, violations string
		if err := rows.Scan(&e.Seq, &e.ID, &e.SessionID, &e.ActorID, &e.EntryType,
			&e.ToolName, &params, &e.Result, &e.Decision, &violations, &e.Timestamp); err != nil {
			return nil, err
		}
		if params != "" && params != "null" {
			if err := json.Unmarshal([]byte(params), &e.Parameters); err != nil {
				return nil, err
			}
		}
		if violations != "" && violations != "null" {
			if err := json.Unmarshal([]byte(violations), &e.Violations); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountForSession returns the number of entries for the session.
func (s *AuditStore) CountForSession(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_log WHERE session_id=?`, sessionID).Scan(&n)
	return n, err
}
