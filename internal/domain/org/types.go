// Package org contains domain types for cross-organization delegation:
// org registrations, per-org tool permissions and denial rules, delegation
// calls, and task dependencies.
package org

import "time"

// Org is a registered organization that can issue and receive delegated
// tasks.
type Org struct {
	ID          string
	Name        string
	Type        string
	Description string
	// ModelPrimary is the model a dispatched task runs on.
	ModelPrimary string
	// ModelSecondary is the fallback model.
	ModelSecondary string
	// SystemPrompt is the org's role prompt, passed to the dispatcher.
	SystemPrompt string
	Enabled      bool
	CreatedAt    time.Time
}

// ToolPermission grants an org the right to execute a tool. Absence of a
// permission row for a tool means the tool is not allowed (default-deny).
type ToolPermission struct {
	OrgID    string
	ToolName string
	Enabled  bool
	// RequiresApproval gates the tool behind human approval even when
	// enabled.
	RequiresApproval bool
}

// DenialType classifies what a denial rule's pattern applies to.
type DenialType string

const (
	// DenialTool matches tool names.
	DenialTool DenialType = "tool"
	// DenialWorkspace matches workspace paths in call parameters.
	DenialWorkspace DenialType = "workspace"
	// DenialShell matches shell commands.
	DenialShell DenialType = "shell"
	// DenialPattern matches file path globs.
	DenialPattern DenialType = "pattern"
)

// DenialRule denies matching actions for an org. Denial rules take
// precedence over tool permissions (deny overrides allow).
type DenialRule struct {
	OrgID string
	Type  DenialType
	// Pattern is a glob; "*" matches everything of the rule's type.
	Pattern string
	// Reason is surfaced verbatim in the denial result.
	Reason string
	// Condition is an optional CEL expression over the call parameters.
	// A rule with a condition only matches when the condition evaluates to
	// true. Empty means unconditional.
	Condition string
}

// CallStatus is the lifecycle state of a delegation call.
type CallStatus string

const (
	// CallPending means the target org has not yet reported a result.
	CallPending CallStatus = "pending"
	// CallCompleted means the target org reported a result.
	CallCompleted CallStatus = "completed"
)

// Call represents one delegation hop between orgs. The ordered sequence of
// Call rows for a session is the session's delegation chain.
type Call struct {
	ID        string
	SessionID string
	CallerOrg string
	TargetOrg string
	Task      string
	Status    CallStatus
	// Result is the JSON-encoded outcome, set on completion.
	Result      string
	CreatedAt   time.Time
	CompletedAt *time.Time
	// Seq is the insertion sequence within the session, used to
	// reconstruct the call chain.
	Seq int64
}

// DispatchStatus is the status a Dispatch descriptor reports to the
// orchestrator. The underlying Call row stays pending until the target org
// reports a result.
const DispatchStatus = "dispatched"

// Dispatch describes where a newly created call should be executed. It is
// returned to the orchestrator, which owns the actual model invocation.
type Dispatch struct {
	CallID    string `json:"call_id"`
	TargetOrg string `json:"target_org"`
	// Model is the target org's primary model.
	Model  string `json:"model"`
	Task   string `json:"task"`
	Status string `json:"status"`
}

// TaskDependency links a task to a delegation call it depends on. A task is
// ready iff every dependency's underlying call is completed.
type TaskDependency struct {
	TaskID string
	// DependsOn is the ID of the Call that must complete.
	DependsOn string
	// Type is a free-form dependency label (e.g. "blocking").
	Type string
}

// PermissionDecision is the outcome of an org-level permission check.
type PermissionDecision struct {
	Allowed          bool
	RequiresApproval bool
	Reason           string
	// DeniedByRule distinguishes a denial-rule hit from a missing or
	// disabled permission.
	DeniedByRule bool
}
