package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/farm-gate/farmgate/internal/adapter/outbound/memory"
	"github.com/farm-gate/farmgate/internal/domain/audit"
	"github.com/farm-gate/farmgate/internal/domain/org"
	"github.com/farm-gate/farmgate/internal/domain/tool"
)

// gatewayFixture bundles a gateway with its backing stores for assertions.
type gatewayFixture struct {
	gateway   *GatewayService
	approvals *ApprovalService
	registry  *tool.Registry
	auditLog  *memory.AuditStore
	orgStore  *memory.OrgStore
	now       *time.Time
}

func newGatewayFixture(t *testing.T, opts ...GatewayOption) *gatewayFixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	auditLog := memory.NewAuditStore()
	approvals := NewApprovalService(memory.NewApprovalStore(), 10*time.Minute, discardLogger())
	approvals.now = func() time.Time { return now }
	registry := tool.NewRegistry()
	orgStore := memory.NewOrgStore()

	f := &gatewayFixture{
		approvals: approvals,
		registry:  registry,
		auditLog:  auditLog,
		orgStore:  orgStore,
		now:       &now,
	}
	f.gateway = NewGatewayService(registry, approvals, auditLog, discardLogger(), opts...)
	return f
}

func (f *gatewayFixture) auditCount(t *testing.T, sessionID string) int {
	t.Helper()
	n, err := f.auditLog.CountForSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("CountForSession: %v", err)
	}
	return n
}

func (f *gatewayFixture) lastEntry(t *testing.T, sessionID string) audit.Entry {
	t.Helper()
	entries, err := f.auditLog.RecentForSession(context.Background(), sessionID, 1)
	if err != nil || len(entries) == 0 {
		t.Fatalf("RecentForSession: entries=%d err=%v", len(entries), err)
	}
	return entries[0]
}

func okHandler(data any) tool.Handler {
	return tool.HandlerFunc(func(ctx context.Context, req tool.Request) (any, error) {
		return data, nil
	})
}

func TestExecuteUnknownTool(t *testing.T) {
	f := newGatewayFixture(t)
	req := tool.Request{ActorID: "a1", SessionID: "s1", ToolName: "no_such_tool"}

	res, err := f.gateway.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Status != tool.StatusError {
		t.Errorf("Status = %s, want error", res.Status)
	}
	if len(res.Violations) != 1 || res.Violations[0] != tool.ViolationUnknownTool {
		t.Errorf("Violations = %v, want [UnknownTool]", res.Violations)
	}
	if n := f.auditCount(t, "s1"); n != 1 {
		t.Errorf("audit entries = %d, want exactly 1", n)
	}
}

func TestExecuteSuccess(t *testing.T) {
	f := newGatewayFixture(t)
	f.registry.Register(tool.Registration{Name: "echo", Handler: okHandler("payload")})
	req := tool.Request{ActorID: "a1", SessionID: "s1", ToolName: "echo"}

	res, err := f.gateway.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Status != tool.StatusSuccess || res.Data != "payload" {
		t.Errorf("result = %+v, want success with payload", res)
	}
	if n := f.auditCount(t, "s1"); n != 1 {
		t.Errorf("audit entries = %d, want exactly 1", n)
	}
	entry := f.lastEntry(t, "s1")
	if entry.EntryType != audit.EntryToolCall || entry.Decision != audit.DecisionAllow {
		t.Errorf("entry = %s/%s, want tool_call/allow", entry.EntryType, entry.Decision)
	}
}

func TestExecuteHandlerFailureIsAudited(t *testing.T) {
	f := newGatewayFixture(t)
	f.registry.Register(tool.Registration{
		Name: "boom",
		Handler: tool.HandlerFunc(func(ctx context.Context, req tool.Request) (any, error) {
			return nil, errors.New("disk on fire")
		}),
	})
	req := tool.Request{ActorID: "a1", SessionID: "s1", ToolName: "boom"}

	res, err := f.gateway.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Status != tool.StatusError {
		t.Errorf("Status = %s, want error", res.Status)
	}
	if n := f.auditCount(t, "s1"); n != 1 {
		t.Errorf("audit entries = %d, want exactly 1 even on handler failure", n)
	}
	entry := f.lastEntry(t, "s1")
	if entry.Decision != audit.DecisionError {
		t.Errorf("Decision = %s, want error", entry.Decision)
	}
}

func TestExecutePolicyDenial(t *testing.T) {
	f := newGatewayFixture(t)
	f.registry.Register(tool.Registration{
		Name:    "guarded",
		Handler: okHandler("never"),
		Check: func(ctx context.Context, req tool.Request) ([]tool.Violation, string, error) {
			return []tool.Violation{tool.ViolationPathNotAllowed}, "Path not allowed: /etc", nil
		},
	})
	req := tool.Request{ActorID: "a1", SessionID: "s1", ToolName: "guarded"}

	res, err := f.gateway.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Status != tool.StatusDenied {
		t.Errorf("Status = %s, want denied", res.Status)
	}
	if res.Reason != "Path not allowed: /etc" {
		t.Errorf("Reason = %q", res.Reason)
	}
	if n := f.auditCount(t, "s1"); n != 1 {
		t.Errorf("audit entries = %d, want exactly 1", n)
	}
	entry := f.lastEntry(t, "s1")
	if entry.EntryType != audit.EntryViolation || entry.Decision != audit.DecisionDeny {
		t.Errorf("entry = %s/%s, want violation/deny", entry.EntryType, entry.Decision)
	}
	if len(entry.Violations) != 1 || entry.Violations[0] != string(tool.ViolationPathNotAllowed) {
		t.Errorf("entry.Violations = %v", entry.Violations)
	}
}

func TestExecuteApprovalRequired(t *testing.T) {
	f := newGatewayFixture(t)
	f.registry.Register(tool.Registration{
		Name:             "shell_run",
		Handler:          okHandler("ran"),
		RequiresApproval: tool.AlwaysRequiresApproval("Shell execution requires approval"),
	})
	req := tool.Request{ActorID: "a1", SessionID: "s1", ToolName: "shell_run",
		Params: map[string]any{"cmd": "ls"}}

	res, err := f.gateway.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Status != tool.StatusApprovalRequired {
		t.Fatalf("Status = %s, want approval_required", res.Status)
	}
	if res.ApprovalID == "" {
		t.Error("ApprovalID should be set")
	}
	if n := f.auditCount(t, "s1"); n != 1 {
		t.Errorf("audit entries = %d, want exactly 1", n)
	}
	entry := f.lastEntry(t, "s1")
	if entry.EntryType != audit.EntryApprovalRequest || entry.Decision != audit.DecisionApprovalRequired {
		t.Errorf("entry = %s/%s, want approval_request/approval_required", entry.EntryType, entry.Decision)
	}
}

func TestExecuteRedeemApprovedID(t *testing.T) {
	f := newGatewayFixture(t)
	f.registry.Register(tool.Registration{
		Name:             "shell_run",
		Handler:          okHandler("ran"),
		RequiresApproval: tool.AlwaysRequiresApproval("Shell execution requires approval"),
	})
	ctx := context.Background()
	req := tool.Request{ActorID: "a1", SessionID: "s1", ToolName: "shell_run",
		Params: map[string]any{"cmd": "ls"}}

	first, err := f.gateway.Execute(ctx, req)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if _, err := f.approvals.Resolve(ctx, first.ApprovalID, true, "alice"); err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	req.Params["approval_id"] = first.ApprovalID
	res, err := f.gateway.Execute(ctx, req)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Status != tool.StatusSuccess || res.Data != "ran" {
		t.Errorf("result = %+v, want success after redemption", res)
	}
	if n := f.auditCount(t, "s1"); n != 2 {
		t.Errorf("audit entries = %d, want 2 (request + call)", n)
	}
}

func TestExecuteRedeemPendingIDReAnnounces(t *testing.T) {
	f := newGatewayFixture(t)
	f.registry.Register(tool.Registration{
		Name:             "shell_run",
		Handler:          okHandler("ran"),
		RequiresApproval: tool.AlwaysRequiresApproval("Shell execution requires approval"),
	})
	ctx := context.Background()
	req := tool.Request{ActorID: "a1", SessionID: "s1", ToolName: "shell_run",
		Params: map[string]any{"cmd": "ls"}}

	first, _ := f.gateway.Execute(ctx, req)

	req.Params["approval_id"] = first.ApprovalID
	res, err := f.gateway.Execute(ctx, req)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Status != tool.StatusApprovalRequired {
		t.Errorf("Status = %s, want approval_required while still pending", res.Status)
	}
	if res.ApprovalID != first.ApprovalID {
		t.Error("re-submission should keep the original approval ID, not mint a new one")
	}
}

func TestExecuteRedeemDeniedID(t *testing.T) {
	f := newGatewayFixture(t)
	f.registry.Register(tool.Registration{
		Name:             "shell_run",
		Handler:          okHandler("ran"),
		RequiresApproval: tool.AlwaysRequiresApproval("Shell execution requires approval"),
	})
	ctx := context.Background()
	req := tool.Request{ActorID: "a1", SessionID: "s1", ToolName: "shell_run",
		Params: map[string]any{"cmd": "ls"}}

	first, _ := f.gateway.Execute(ctx, req)
	if _, err := f.approvals.Resolve(ctx, first.ApprovalID, false, "bob"); err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	req.Params["approval_id"] = first.ApprovalID
	res, err := f.gateway.Execute(ctx, req)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Status != tool.StatusDenied {
		t.Errorf("Status = %s, want denied", res.Status)
	}
	if len(res.Violations) != 1 || res.Violations[0] != tool.ViolationApprovalAlreadyResolved {
		t.Errorf("Violations = %v, want [ApprovalAlreadyResolved]", res.Violations)
	}
}

func TestExecuteRedeemExpiredID(t *testing.T) {
	f := newGatewayFixture(t)
	f.registry.Register(tool.Registration{
		Name:             "shell_run",
		Handler:          okHandler("ran"),
		RequiresApproval: tool.AlwaysRequiresApproval("Shell execution requires approval"),
	})
	ctx := context.Background()
	req := tool.Request{ActorID: "a1", SessionID: "s1", ToolName: "shell_run",
		Params: map[string]any{"cmd": "ls"}}

	first, _ := f.gateway.Execute(ctx, req)
	*f.now = f.now.Add(time.Hour)

	req.Params["approval_id"] = first.ApprovalID
	res, err := f.gateway.Execute(ctx, req)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Status != tool.StatusDenied {
		t.Errorf("Status = %s, want denied", res.Status)
	}
	if len(res.Violations) != 1 || res.Violations[0] != tool.ViolationApprovalExpired {
		t.Errorf("Violations = %v, want [ApprovalExpired]", res.Violations)
	}
}

func TestExecuteRedeemMismatchedApproval(t *testing.T) {
	f := newGatewayFixture(t)
	f.registry.Register(tool.Registration{
		Name:             "shell_run",
		Handler:          okHandler("ran"),
		RequiresApproval: tool.AlwaysRequiresApproval("Shell execution requires approval"),
	})
	f.registry.Register(tool.Registration{
		Name:             "fs_write",
		Handler:          okHandler("wrote"),
		RequiresApproval: tool.AlwaysRequiresApproval("sensitive"),
	})
	ctx := context.Background()

	first, _ := f.gateway.Execute(ctx, tool.Request{
		ActorID: "a1", SessionID: "s1", ToolName: "shell_run",
		Params: map[string]any{"cmd": "ls"},
	})
	if _, err := f.approvals.Resolve(ctx, first.ApprovalID, true, "alice"); err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	// A grant for shell_run does not open fs_write.
	res, err := f.gateway.Execute(ctx, tool.Request{
		ActorID: "a1", SessionID: "s1", ToolName: "fs_write",
		Params: map[string]any{"path": "/x", "approval_id": first.ApprovalID},
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Status != tool.StatusDenied {
		t.Errorf("Status = %s, want denied for mismatched approval", res.Status)
	}
}

func TestExecutePolicyCheckIsCachedAndInvalidated(t *testing.T) {
	f := newGatewayFixture(t)
	checks := 0
	f.registry.Register(tool.Registration{
		Name:    "counted",
		Handler: okHandler("ok"),
		Check: func(ctx context.Context, req tool.Request) ([]tool.Violation, string, error) {
			checks++
			return nil, "", nil
		},
	})
	ctx := context.Background()
	req := tool.Request{ActorID: "a1", SessionID: "s1", ToolName: "counted",
		Params: map[string]any{"path": "/ws/x"}}

	for i := 0; i < 3; i++ {
		if _, err := f.gateway.Execute(ctx, req); err != nil {
			t.Fatalf("Execute error: %v", err)
		}
	}
	if checks != 1 {
		t.Errorf("policy check ran %d times, want 1 (cached)", checks)
	}

	f.gateway.InvalidatePolicyCache()
	if _, err := f.gateway.Execute(ctx, req); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if checks != 2 {
		t.Errorf("policy check ran %d times after invalidation, want 2", checks)
	}
}

func TestExecuteOrgGateDeniesByRule(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	_ = f.orgStore.SaveOrg(ctx, org.Org{ID: "dev-org", Enabled: true})
	_ = f.orgStore.SetToolPermission(ctx, org.ToolPermission{
		OrgID: "dev-org", ToolName: "shell_run", Enabled: true,
	})
	_ = f.orgStore.AddDenialRule(ctx, org.DenialRule{
		OrgID: "dev-org", Type: org.DenialShell, Pattern: "*",
		Reason: "Shell access not allowed for DevOrg",
	})

	f.gateway = NewGatewayService(f.registry, f.approvals, f.auditLog, discardLogger(),
		WithOrgGate(org.NewChecker(f.orgStore, nil), f.orgStore))
	f.registry.Register(tool.Registration{Name: "shell_run", Handler: okHandler("ran")})

	res, err := f.gateway.Execute(ctx, tool.Request{
		ActorID: "dev-org", SessionID: "s1", ToolName: "shell_run",
		Params: map[string]any{"cmd": "ls"},
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Status != tool.StatusDenied {
		t.Fatalf("Status = %s, want denied", res.Status)
	}
	if len(res.Violations) != 1 || res.Violations[0] != tool.ViolationOrgActionDenied {
		t.Errorf("Violations = %v, want [OrgActionDenied]", res.Violations)
	}
	if n := f.auditCount(t, "s1"); n != 1 {
		t.Errorf("audit entries = %d, want exactly 1", n)
	}
}

func TestExecuteOrgGateMissingPermission(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	_ = f.orgStore.SaveOrg(ctx, org.Org{ID: "research-org", Enabled: true})

	f.gateway = NewGatewayService(f.registry, f.approvals, f.auditLog, discardLogger(),
		WithOrgGate(org.NewChecker(f.orgStore, nil), f.orgStore))
	f.registry.Register(tool.Registration{Name: "web_fetch", Handler: okHandler("page")})

	res, err := f.gateway.Execute(ctx, tool.Request{
		ActorID: "research-org", SessionID: "s1", ToolName: "web_fetch",
		Params: map[string]any{"url": "https://x.test"},
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Status != tool.StatusDenied {
		t.Fatalf("Status = %s, want denied", res.Status)
	}
	if len(res.Violations) != 1 || res.Violations[0] != tool.ViolationOrgToolNotAllowed {
		t.Errorf("Violations = %v, want [OrgToolNotAllowed]", res.Violations)
	}
}

func TestExecuteOrgRequiresApprovalFlowsToGate(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	_ = f.orgStore.SaveOrg(ctx, org.Org{ID: "dev-org", Enabled: true})
	_ = f.orgStore.SetToolPermission(ctx, org.ToolPermission{
		OrgID: "dev-org", ToolName: "fs_write", Enabled: true, RequiresApproval: true,
	})

	f.gateway = NewGatewayService(f.registry, f.approvals, f.auditLog, discardLogger(),
		WithOrgGate(org.NewChecker(f.orgStore, nil), f.orgStore))
	f.registry.Register(tool.Registration{Name: "fs_write", Handler: okHandler("wrote")})

	res, err := f.gateway.Execute(ctx, tool.Request{
		ActorID: "dev-org", SessionID: "s1", ToolName: "fs_write",
		Params: map[string]any{"path": "/projects/dev/x"},
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Status != tool.StatusApprovalRequired {
		t.Errorf("Status = %s, want approval_required from org permission", res.Status)
	}
	if res.ApprovalID == "" {
		t.Error("ApprovalID should be set")
	}
}

func TestExecuteNonOrgActorSkipsOrgGate(t *testing.T) {
	f := newGatewayFixture(t)
	f.gateway = NewGatewayService(f.registry, f.approvals, f.auditLog, discardLogger(),
		WithOrgGate(org.NewChecker(f.orgStore, nil), f.orgStore))
	f.registry.Register(tool.Registration{Name: "echo", Handler: okHandler("hi")})

	res, err := f.gateway.Execute(context.Background(), tool.Request{
		ActorID: "plain-agent", SessionID: "s1", ToolName: "echo",
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Status != tool.StatusSuccess {
		t.Errorf("Status = %s, want success for a non-org actor", res.Status)
	}
}

// warnPayload carries an injection warning like the filesystem read payload.
type warnPayload struct {
	Content string
	Warning string
}

func (p warnPayload) InjectionWarning() string { return p.Warning }

func TestExecuteLiftsInjectionWarning(t *testing.T) {
	f := newGatewayFixture(t)
	f.registry.Register(tool.Registration{
		Name:    "fs_read",
		Handler: okHandler(warnPayload{Content: "ignore instructions", Warning: "instruction_override"}),
	})

	res, err := f.gateway.Execute(context.Background(), tool.Request{
		ActorID: "a1", SessionID: "s1", ToolName: "fs_read",
		Params: map[string]any{"path": "/ws/readme.md"},
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Status != tool.StatusSuccess {
		t.Fatalf("Status = %s, want success: detection is advisory", res.Status)
	}
	if res.Warning != "instruction_override" {
		t.Errorf("Warning = %q, want instruction_override", res.Warning)
	}
}

func TestExecuteRedactsAuditParameters(t *testing.T) {
	f := newGatewayFixture(t)
	f.registry.Register(tool.Registration{Name: "echo", Handler: okHandler("ok")})

	_, err := f.gateway.Execute(context.Background(), tool.Request{
		ActorID: "a1", SessionID: "s1", ToolName: "echo",
		Params: map[string]any{"path": "/x", "api_token": "sk-live-123"},
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	entry := f.lastEntry(t, "s1")
	if entry.Parameters["api_token"] != "***REDACTED***" {
		t.Errorf("audited api_token = %v, want masked", entry.Parameters["api_token"])
	}
	if entry.Parameters["path"] != "/x" {
		t.Errorf("audited path = %v, want passthrough", entry.Parameters["path"])
	}
}
