// Package admin provides the HTTP surface for human reviewers and
// operators: listing and resolving pending approvals, querying the audit
// trail, and inspecting orgs and delegation chains. All routes require an
// API key.
package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/farm-gate/farmgate/internal/domain/approval"
	"github.com/farm-gate/farmgate/internal/domain/audit"
	"github.com/farm-gate/farmgate/internal/domain/policy"
	"github.com/farm-gate/farmgate/internal/service"
)

// defaultAuditLimit is applied when an audit query omits limit.
const defaultAuditLimit = 50

// Handler serves the admin API routes.
type Handler struct {
	approvals  *service.ApprovalService
	orgs       *service.OrgService
	onboarding *service.OnboardingService
	auditLog   audit.Store
	keys       *KeyVerifier
	log        *slog.Logger
}

// NewHandler creates an admin Handler.
func NewHandler(approvals *service.ApprovalService, orgs *service.OrgService, onboarding *service.OnboardingService, auditLog audit.Store, keys *KeyVerifier, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		approvals:  approvals,
		orgs:       orgs,
		onboarding: onboarding,
		auditLog:   auditLog,
		keys:       keys,
		log:        log,
	}
}

// Routes returns an http.Handler with all admin routes mounted.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/api/approvals", h.requireAuth(h.listApprovals))
	mux.HandleFunc("POST /admin/api/approvals/resolve", h.requireAuth(h.resolveApproval))
	mux.HandleFunc("GET /admin/api/audit", h.requireAuth(h.queryAudit))
	mux.HandleFunc("GET /admin/api/orgs", h.requireAuth(h.listOrgs))
	mux.HandleFunc("GET /admin/api/orgs/chain", h.requireAuth(h.callChain))
	mux.HandleFunc("POST /admin/api/actors", h.requireAuth(h.createActor))
	mux.HandleFunc("POST /admin/api/actors/grants", h.requireAuth(h.addGrant))
	return mux
}

// requireAuth wraps a handler with API key verification. The key arrives in
// the X-API-Key header.
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.keys.Verify(r.Header.Get("X-API-Key")); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next(w, r)
	}
}

// listApprovals returns pending approvals, optionally scoped to a session.
func (h *Handler) listApprovals(w http.ResponseWriter, r *http.Request) {
	pending, err := h.approvals.ListPending(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		h.log.Error("list approvals failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list approvals failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": pending})
}

// resolveRequest is the JSON body for resolving an approval.
type resolveRequest struct {
	ApprovalID string `json:"approval_id"`
	Decision   string `json:"decision"`
	ResolvedBy string `json:"resolved_by"`
}

// resolveResponse echoes the applied resolution.
type resolveResponse struct {
	ApprovalID string `json:"approval_id"`
	ToolName   string `json:"tool_name"`
	Decision   string `json:"decision"`
	ResolvedBy string `json:"resolved_by"`
}

// resolveApproval applies a human decision to a pending approval.
func (h *Handler) resolveApproval(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ApprovalID == "" {
		writeError(w, http.StatusBadRequest, "approval_id required")
		return
	}
	var approve bool
	switch req.Decision {
	case "approved":
		approve = true
	case "denied":
	default:
		writeError(w, http.StatusBadRequest, `decision must be "approved" or "denied"`)
		return
	}

	p, err := h.approvals.Resolve(r.Context(), req.ApprovalID, approve, req.ResolvedBy)
	switch {
	case errors.Is(err, approval.ErrNotFound):
		writeError(w, http.StatusNotFound, "approval not found")
		return
	case errors.Is(err, approval.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.log.Error("resolve approval failed", "approval_id", req.ApprovalID, "error", err)
		writeError(w, http.StatusInternalServerError, "resolve failed")
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		ApprovalID: p.ID,
		ToolName:   p.ToolName,
		Decision:   string(p.Status),
		ResolvedBy: p.ResolvedBy,
	})
}

// queryAudit returns recent audit entries for a session, newest first.
func (h *Handler) queryAudit(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id required")
		return
	}
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := h.auditLog.RecentForSession(r.Context(), sessionID, limit)
	if err != nil {
		h.log.Error("audit query failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	total, err := h.auditLog.CountForSession(r.Context(), sessionID)
	if err != nil {
		h.log.Error("audit count failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "total": total})
}

// listOrgs returns all registered orgs.
func (h *Handler) listOrgs(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.orgs.ListOrgs(r.Context())
	if err != nil {
		h.log.Error("list orgs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list orgs failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orgs": orgs})
}

// callChain returns a session's delegation calls in dispatch order.
func (h *Handler) callChain(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id required")
		return
	}
	chain, err := h.orgs.CallChain(r.Context(), sessionID)
	if err != nil {
		h.log.Error("call chain query failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "call chain query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": chain})
}

// createActorRequest is the JSON body for onboarding an actor.
type createActorRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name"`
	Preset  string `json:"preset"`
}

// createActor onboards an actor with a security preset.
func (h *Handler) createActor(w http.ResponseWriter, r *http.Request) {
	var req createActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ActorID == "" {
		writeError(w, http.StatusBadRequest, "actor_id required")
		return
	}
	switch req.Preset {
	case "", string(policy.PresetConservative), string(policy.PresetStandard), string(policy.PresetPower):
	default:
		writeError(w, http.StatusBadRequest, `preset must be "conservative", "standard", or "power"`)
		return
	}
	a, err := h.onboarding.CreateActor(r.Context(), req.ActorID, req.Name, policy.SecurityPreset(req.Preset))
	if err != nil {
		h.log.Error("create actor failed", "actor_id", req.ActorID, "error", err)
		writeError(w, http.StatusInternalServerError, "create actor failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"actor_id": a.ID,
		"name":     a.Name,
		"preset":   string(a.Preset),
	})
}

// addGrantRequest is the JSON body for granting workspace access.
type addGrantRequest struct {
	ActorID string `json:"actor_id"`
	Prefix  string `json:"prefix"`
	Name    string `json:"name"`
	Mode    string `json:"mode"`
}

// addGrant grants an actor access to a workspace path prefix. An empty mode
// selects the actor's preset default.
func (h *Handler) addGrant(w http.ResponseWriter, r *http.Request) {
	var req addGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ActorID == "" || req.Prefix == "" {
		writeError(w, http.StatusBadRequest, "actor_id and prefix required")
		return
	}
	switch req.Mode {
	case "", string(policy.ModeReader), string(policy.ModeWriter), string(policy.ModeOperator):
	default:
		writeError(w, http.StatusBadRequest, `mode must be "reader", "writer", or "operator"`)
		return
	}
	err := h.onboarding.AddWorkspaceGrant(r.Context(), req.ActorID, req.Prefix, req.Name, policy.WorkspaceMode(req.Mode))
	switch {
	case errors.Is(err, service.ErrActorNotFound):
		writeError(w, http.StatusNotFound, "actor not found")
		return
	case err != nil:
		h.log.Error("add grant failed", "actor_id", req.ActorID, "error", err)
		writeError(w, http.StatusInternalServerError, "add grant failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"actor_id": req.ActorID,
		"prefix":   req.Prefix,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
