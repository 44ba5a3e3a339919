// Package sqlite provides persistent implementations of the outbound store
// ports on an embedded SQLite database.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS actors (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	preset      TEXT NOT NULL DEFAULT 'standard',
	created_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS workspace_grants (
	actor_id    TEXT NOT NULL,
	prefix      TEXT NOT NULL,
	mode        TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (actor_id, prefix)
);

CREATE TABLE IF NOT EXISTS security_profiles (
	actor_id           TEXT PRIMARY KEY,
	shell_enabled      INTEGER NOT NULL DEFAULT 0,
	shell_blocklist    TEXT NOT NULL DEFAULT '[]',
	sensitive_patterns TEXT NOT NULL DEFAULT '[]',
	allowed_domains    TEXT NOT NULL DEFAULT '[]',
	blocked_domains    TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS orgs (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	org_type        TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	model_primary   TEXT NOT NULL DEFAULT '',
	model_secondary TEXT NOT NULL DEFAULT '',
	system_prompt   TEXT NOT NULL DEFAULT '',
	enabled         INTEGER NOT NULL DEFAULT 1,
	created_at      TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS org_tools (
	org_id            TEXT NOT NULL,
	tool_name         TEXT NOT NULL,
	enabled           INTEGER NOT NULL DEFAULT 1,
	requires_approval INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (org_id, tool_name)
);

CREATE TABLE IF NOT EXISTS org_denials (
	org_id      TEXT NOT NULL,
	denial_type TEXT NOT NULL,
	pattern     TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	condition   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (org_id, denial_type, pattern)
);

CREATE TABLE IF NOT EXISTS org_calls (
	id           TEXT PRIMARY KEY,
	seq          INTEGER NOT NULL,
	session_id   TEXT NOT NULL,
	caller_org   TEXT NOT NULL,
	target_org   TEXT NOT NULL,
	task         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	result       TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_org_calls_session ON org_calls(session_id, seq);

CREATE TABLE IF NOT EXISTS task_dependencies (
	task_id         TEXT NOT NULL,
	depends_on      TEXT NOT NULL,
	dependency_type TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (task_id, depends_on)
);

CREATE TABLE IF NOT EXISTS pending_approvals (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	actor_id    TEXT NOT NULL,
	tool_name   TEXT NOT NULL,
	params      TEXT NOT NULL DEFAULT '{}',
	reason      TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'pending',
	created_at  TIMESTAMP NOT NULL,
	expires_at  TIMESTAMP,
	resolved_at TIMESTAMP,
	resolved_by TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_approvals_session ON pending_approvals(session_id, status);

CREATE TABLE IF NOT EXISTS audit_log (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL,
	session_id TEXT NOT NULL,
	actor_id   TEXT NOT NULL DEFAULT '',
	entry_type TEXT NOT NULL,
	tool_name  TEXT NOT NULL DEFAULT '',
	parameters TEXT NOT NULL DEFAULT '{}',
	result     TEXT NOT NULL DEFAULT '',
	decision   TEXT NOT NULL DEFAULT '',
	violations TEXT NOT NULL DEFAULT '[]',
	timestamp  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_log(session_id, seq);
`

// Open opens (creating if needed) a SQLite database at path and applies the
// schema. A path of ":memory:" yields an ephemeral database.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The sqlite driver serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent appends.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}
