// Package audit contains domain types for the append-only authorization
// audit trail. Entries are never updated or deleted; this is the system of
// record for "what happened and why it was allowed or blocked".
package audit

import (
	"context"
	"strings"
	"time"
)

// EntryType classifies an audit entry.
const (
	// EntryToolCall records a dispatched (or failed) tool call.
	EntryToolCall = "tool_call"
	// EntryViolation records a policy denial.
	EntryViolation = "violation"
	// EntryApprovalRequest records a call gated behind approval.
	EntryApprovalRequest = "approval_request"
)

// Decision constants for audit entries.
const (
	DecisionAllow            = "allow"
	DecisionDeny             = "deny"
	DecisionApprovalRequired = "approval_required"
	DecisionError            = "error"
)

// Entry is a single audit record.
type Entry struct {
	// ID is the store-assigned identifier.
	ID string `json:"id"`
	// Seq is a per-store monotonic sequence preserving creation order.
	Seq       int64     `json:"seq"`
	SessionID string    `json:"session_id"`
	ActorID   string    `json:"actor_id"`
	EntryType string    `json:"entry_type"`
	ToolName  string    `json:"tool_name,omitempty"`
	// Parameters are the tool call arguments, redacted before storage.
	Parameters map[string]any `json:"parameters,omitempty"`
	// Result is a JSON-encoded summary of the handler outcome.
	Result   string `json:"result,omitempty"`
	Decision string `json:"decision"`
	// Violations lists the policy violations behind a deny decision.
	Violations []string  `json:"violations,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store is an append-only audit sink with a per-session query surface.
type Store interface {
	// Append records entries, assigning ID, Seq, and Timestamp when unset.
	Append(ctx context.Context, entries ...Entry) error
	// RecentForSession returns up to limit entries for the session,
	// newest first.
	RecentForSession(ctx context.Context, sessionID string, limit int) ([]Entry, error)
	// CountForSession returns the number of entries for the session.
	CountForSession(ctx context.Context, sessionID string) (int, error)
}

// sensitiveKeywords flags argument keys whose values must not be persisted.
// Comparison is case-insensitive.
var sensitiveKeywords = []string{
	"password", "secret", "token", "api_key", "apikey",
	"credential", "auth", "private_key", "privatekey",
}

// Redact returns a copy of params with sensitive values masked. A key is
// sensitive if it contains any of the sensitiveKeywords.
func Redact(params map[string]any) map[string]any {
	if len(params) == 0 {
		return params
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if isSensitiveKey(k) {
			out[k] = "***REDACTED***"
		} else {
			out[k] = v
		}
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
