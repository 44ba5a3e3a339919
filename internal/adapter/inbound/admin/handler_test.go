package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/farm-gate/farmgate/internal/adapter/outbound/memory"
	"github.com/farm-gate/farmgate/internal/domain/audit"
	"github.com/farm-gate/farmgate/internal/domain/org"
	"github.com/farm-gate/farmgate/internal/service"
)

const testKey = "test-admin-key"

type handlerFixture struct {
	handler   http.Handler
	approvals *service.ApprovalService
	orgs      *service.OrgService
	auditLog  *memory.AuditStore
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	approvals := service.NewApprovalService(memory.NewApprovalStore(), 15*time.Minute, log)
	orgStore := memory.NewOrgStore()
	orgs := service.NewOrgService(orgStore, org.NewChecker(orgStore, nil), log)
	policyStore := memory.NewPolicyStore()
	onboarding := service.NewOnboardingService(policyStore, nil, log)
	auditLog := memory.NewAuditStore()

	hash, err := HashKey(testKey)
	if err != nil {
		t.Fatalf("hash key: %v", err)
	}
	h := NewHandler(approvals, orgs, onboarding, auditLog, NewKeyVerifier([]string{hash}), log)
	return &handlerFixture{
		handler:   h.Routes(),
		approvals: approvals,
		orgs:      orgs,
		auditLog:  auditLog,
	}
}

// do issues an authenticated request and decodes the JSON response body.
func (f *handlerFixture) do(t *testing.T, method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("X-API-Key", testKey)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func auditEntry(sessionID, toolName string) audit.Entry {
	return audit.Entry{
		SessionID: sessionID,
		ActorID:   "a1",
		EntryType: audit.EntryToolCall,
		ToolName:  toolName,
		Decision:  "allow",
	}
}

func TestRoutesRequireAPIKey(t *testing.T) {
	f := newHandlerFixture(t)
	for _, target := range []string{
		"/admin/api/approvals",
		"/admin/api/audit?session_id=s1",
		"/admin/api/orgs",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without key = %d, want 401", target, rec.Code)
		}

		req = httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("X-API-Key", "wrong")
		rec = httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s with bad key = %d, want 401", target, rec.Code)
		}
	}
}

func TestListApprovals(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	_, err := f.approvals.Request(ctx, "s1", "a1", "fs_write", map[string]any{"path": "/ws/.env"}, "sensitive file")
	if err != nil {
		t.Fatalf("seed approval: %v", err)
	}
	_, err = f.approvals.Request(ctx, "s2", "a2", "shell_run", nil, "shell")
	if err != nil {
		t.Fatalf("seed approval: %v", err)
	}

	rec, body := f.do(t, http.MethodGet, "/admin/api/approvals?session_id=s1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	items, ok := body["approvals"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("approvals = %v, want 1 item", body["approvals"])
	}

	rec, body = f.do(t, http.MethodGet, "/admin/api/approvals", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if items, _ := body["approvals"].([]any); len(items) != 2 {
		t.Errorf("unscoped approvals = %v, want 2 items", body["approvals"])
	}
}

func TestResolveApproval(t *testing.T) {
	f := newHandlerFixture(t)
	p, err := f.approvals.Request(context.Background(), "s1", "a1", "fs_write", nil, "sensitive file")
	if err != nil {
		t.Fatalf("seed approval: %v", err)
	}

	rec, body := f.do(t, http.MethodPost, "/admin/api/approvals/resolve", map[string]any{
		"approval_id": p.ID, "decision": "approved", "resolved_by": "alex",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if body["decision"] != "approved" || body["resolved_by"] != "alex" {
		t.Errorf("response = %v", body)
	}

	// Second resolution conflicts.
	rec, _ = f.do(t, http.MethodPost, "/admin/api/approvals/resolve", map[string]any{
		"approval_id": p.ID, "decision": "denied",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("re-resolve status = %d, want 409", rec.Code)
	}
}

func TestResolveApprovalValidation(t *testing.T) {
	f := newHandlerFixture(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"unknown id", map[string]any{"approval_id": "nope", "decision": "approved"}, http.StatusNotFound},
		{"missing id", map[string]any{"decision": "approved"}, http.StatusBadRequest},
		{"bad decision", map[string]any{"approval_id": "x", "decision": "maybe"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := f.do(t, http.MethodPost, "/admin/api/approvals/resolve", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/api/approvals/resolve", strings.NewReader("{not json"))
	req.Header.Set("X-API-Key", testKey)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON status = %d, want 400", rec.Code)
	}
}

func TestQueryAudit(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	for _, tool := range []string{"fs_read", "fs_write", "fs_list"} {
		err := f.auditLog.Append(ctx, auditEntry("s1", tool))
		if err != nil {
			t.Fatalf("seed audit: %v", err)
		}
	}

	rec, body := f.do(t, http.MethodGet, "/admin/api/audit?session_id=s1&limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	entries, _ := body["entries"].([]any)
	if len(entries) != 2 {
		t.Errorf("entries = %d, want 2", len(entries))
	}
	if body["total"] != float64(3) {
		t.Errorf("total = %v, want 3", body["total"])
	}

	rec, _ = f.do(t, http.MethodGet, "/admin/api/audit", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing session_id status = %d, want 400", rec.Code)
	}
	rec, _ = f.do(t, http.MethodGet, "/admin/api/audit?session_id=s1&limit=zero", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
}

func TestListOrgsAndCallChain(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	if err := f.orgs.Seed(ctx); err != nil {
		t.Fatalf("seed orgs: %v", err)
	}
	if _, err := f.orgs.CallOrg(ctx, "orchestrator-org", "dev-org", "s1", "build the feature"); err != nil {
		t.Fatalf("call org: %v", err)
	}

	rec, body := f.do(t, http.MethodGet, "/admin/api/orgs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("orgs status = %d", rec.Code)
	}
	if orgs, _ := body["orgs"].([]any); len(orgs) != 5 {
		t.Errorf("len(orgs) = %d, want 5", len(orgs))
	}

	rec, body = f.do(t, http.MethodGet, "/admin/api/orgs/chain?session_id=s1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("chain status = %d", rec.Code)
	}
	if calls, _ := body["calls"].([]any); len(calls) != 1 {
		t.Errorf("len(calls) = %d, want 1", len(calls))
	}

	rec, _ = f.do(t, http.MethodGet, "/admin/api/orgs/chain", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing session_id status = %d, want 400", rec.Code)
	}
}

func TestCreateActor(t *testing.T) {
	f := newHandlerFixture(t)

	rec, body := f.do(t, http.MethodPost, "/admin/api/actors", map[string]any{
		"actor_id": "a1", "name": "Builder", "preset": "power",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if body["actor_id"] != "a1" || body["preset"] != "power" {
		t.Errorf("response = %v", body)
	}

	rec, _ = f.do(t, http.MethodPost, "/admin/api/actors", map[string]any{"name": "noid"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing actor_id status = %d, want 400", rec.Code)
	}
	rec, _ = f.do(t, http.MethodPost, "/admin/api/actors", map[string]any{
		"actor_id": "a2", "preset": "superuser",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad preset status = %d, want 400", rec.Code)
	}
}

func TestAddGrant(t *testing.T) {
	f := newHandlerFixture(t)
	rec, _ := f.do(t, http.MethodPost, "/admin/api/actors", map[string]any{"actor_id": "a1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create actor status = %d", rec.Code)
	}

	rec, body := f.do(t, http.MethodPost, "/admin/api/actors/grants", map[string]any{
		"actor_id": "a1", "prefix": "/ws/project", "mode": "writer",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if body["prefix"] != "/ws/project" {
		t.Errorf("response = %v", body)
	}

	rec, _ = f.do(t, http.MethodPost, "/admin/api/actors/grants", map[string]any{
		"actor_id": "ghost", "prefix": "/ws",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown actor status = %d, want 404", rec.Code)
	}
	rec, _ = f.do(t, http.MethodPost, "/admin/api/actors/grants", map[string]any{
		"actor_id": "a1", "prefix": "/ws", "mode": "root",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad mode status = %d, want 400", rec.Code)
	}
}
