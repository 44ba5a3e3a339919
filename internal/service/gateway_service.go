package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/farm-gate/farmgate/internal/domain/approval"
	"github.com/farm-gate/farmgate/internal/domain/audit"
	"github.com/farm-gate/farmgate/internal/domain/org"
	"github.com/farm-gate/farmgate/internal/domain/tool"
)

// paramApprovalID is the request parameter carrying a previously granted
// approval. A call re-submitted with an approved ID skips the approval gate
// exactly once; policy checks still run.
const paramApprovalID = "approval_id"

// GatewayService is the single entry point for tool execution. Every call
// flows through dispatch lookup, the approval gate, the policy check, and
// the handler, and leaves exactly one audit entry behind regardless of
// outcome.
type GatewayService struct {
	registry  *tool.Registry
	approvals *ApprovalService
	auditLog  audit.Store
	cache     *decisionCache
	metrics   *Metrics
	tracer    trace.Tracer
	log       *slog.Logger

	// orgChecker and orgStore gate calls from actors that are registered
	// orgs; nil disables the org layer.
	orgChecker *org.Checker
	orgStore   org.Store

	// actorLocks serializes calls per actor so the check-then-dispatch
	// window cannot interleave with a policy change for the same actor.
	mu         sync.Mutex
	actorLocks map[string]*sync.Mutex
}

// GatewayOption configures a GatewayService.
type GatewayOption func(*GatewayService)

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *Metrics) GatewayOption {
	return func(g *GatewayService) { g.metrics = m }
}

// WithTracer attaches an OpenTelemetry tracer.
func WithTracer(t trace.Tracer) GatewayOption {
	return func(g *GatewayService) { g.tracer = t }
}

// WithCacheSize bounds the policy decision cache.
func WithCacheSize(n int) GatewayOption {
	return func(g *GatewayService) { g.cache = newDecisionCache(n) }
}

// WithOrgGate enables the org permission layer: calls from actors that are
// registered orgs must also pass the org's tool permissions and denial
// rules.
func WithOrgGate(checker *org.Checker, store org.Store) GatewayOption {
	return func(g *GatewayService) {
		g.orgChecker = checker
		g.orgStore = store
	}
}

// NewGatewayService creates a GatewayService.
func NewGatewayService(registry *tool.Registry, approvals *ApprovalService, auditLog audit.Store, log *slog.Logger, opts ...GatewayOption) *GatewayService {
	if log == nil {
		log = slog.Default()
	}
	g := &GatewayService{
		registry:   registry,
		approvals:  approvals,
		auditLog:   auditLog,
		cache:      newDecisionCache(0),
		metrics:    NopMetrics(),
		tracer:     noop.NewTracerProvider().Tracer("farmgate"),
		log:        log,
		actorLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// InvalidatePolicyCache drops all memoized policy decisions. Must be called
// after any grant, profile, or org permission change.
func (g *GatewayService) InvalidatePolicyCache() {
	g.cache.Clear()
}

// Execute runs one tool call end to end. The result is always well-formed;
// handler failures surface as StatusError, never as a returned error. The
// error return is reserved for audit persistence failures, which are fatal
// because an unrecorded call must not look successful.
func (g *GatewayService) Execute(ctx context.Context, req tool.Request) (tool.Result, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.Execute", trace.WithAttributes(
		attribute.String("farmgate.actor_id", req.ActorID),
		attribute.String("farmgate.tool", req.ToolName),
	))
	defer span.End()

	start := time.Now()
	res, err := g.execute(ctx, req)
	g.metrics.ExecuteDuration.WithLabelValues(req.ToolName).Observe(time.Since(start).Seconds())
	if err == nil {
		g.metrics.DecisionsTotal.WithLabelValues(req.ToolName, decisionFor(res.Status)).Inc()
		span.SetAttributes(attribute.String("farmgate.decision", decisionFor(res.Status)))
	}
	return res, err
}

func (g *GatewayService) execute(ctx context.Context, req tool.Request) (tool.Result, error) {
	reg, ok := g.registry.Lookup(req.ToolName)
	if !ok {
		res := tool.Errored(fmt.Sprintf("unknown tool: %s", req.ToolName), tool.ViolationUnknownTool)
		if err := g.auditViolation(ctx, req, audit.DecisionError, res); err != nil {
			return tool.Result{}, err
		}
		return res, nil
	}

	unlock := g.lockActor(req.ActorID)
	defer unlock()

	orgApproval, res, final, err := g.orgGate(ctx, req)
	if err != nil || final {
		return res, err
	}

	gated, res, err := g.approvalGate(ctx, reg, req, orgApproval)
	if err != nil || gated {
		return res, err
	}

	if res, denied, err := g.policyCheck(ctx, reg, req); err != nil {
		return tool.Result{}, err
	} else if denied {
		return res, nil
	}

	return g.dispatch(ctx, reg, req)
}

// orgGate applies org-level permissions when the actor is a registered org.
// A denial is final; a requires_approval permission is handed to the
// approval gate as orgReason.
func (g *GatewayService) orgGate(ctx context.Context, req tool.Request) (orgReason string, res tool.Result, final bool, err error) {
	if g.orgChecker == nil || g.orgStore == nil {
		return "", tool.Result{}, false, nil
	}
	o, err := g.orgStore.GetOrg(ctx, req.ActorID)
	if err != nil {
		return "", tool.Result{}, false, err
	}
	if o == nil {
		// Not an org actor; only per-actor policy applies.
		return "", tool.Result{}, false, nil
	}
	d, err := g.orgChecker.CanExecute(ctx, req.ActorID, req.ToolName, req.Params)
	if err != nil {
		return "", tool.Result{}, false, err
	}
	if !d.Allowed {
		v := tool.ViolationOrgToolNotAllowed
		if d.DeniedByRule {
			v = tool.ViolationOrgActionDenied
		}
		res = tool.Denied(d.Reason, v)
		if aerr := g.auditViolation(ctx, req, audit.DecisionDeny, res); aerr != nil {
			return "", tool.Result{}, true, aerr
		}
		return "", res, true, nil
	}
	if d.RequiresApproval {
		return d.Reason, tool.Result{}, false, nil
	}
	return "", tool.Result{}, false, nil
}

// approvalGate runs the tool's approval predicate, honoring a prior grant
// re-submitted via the approval_id parameter. Returns gated=true when the
// result is final for this call.
func (g *GatewayService) approvalGate(ctx context.Context, reg tool.Registration, req tool.Request, orgReason string) (gated bool, res tool.Result, err error) {
	required, reason, err := reg.RequiresApproval(ctx, req)
	if err != nil {
		res = tool.Errored(fmt.Sprintf("approval predicate: %v", err), tool.ViolationHandlerError)
		if aerr := g.auditViolation(ctx, req, audit.DecisionError, res); aerr != nil {
			return true, tool.Result{}, aerr
		}
		return true, res, nil
	}
	if !required && orgReason != "" {
		required, reason = true, orgReason
	}
	if !required {
		return false, tool.Result{}, nil
	}

	if id, ok := req.Params[paramApprovalID].(string); ok && id != "" {
		return g.redeemApproval(ctx, req, id)
	}

	p, err := g.approvals.Request(ctx, req.SessionID, req.ActorID, req.ToolName, req.Params, reason)
	if err != nil {
		return true, tool.Result{}, fmt.Errorf("request approval: %w", err)
	}
	g.metrics.ApprovalsTotal.WithLabelValues("requested").Inc()
	entry := audit.Entry{
		SessionID:  req.SessionID,
		ActorID:    req.ActorID,
		EntryType:  audit.EntryApprovalRequest,
		ToolName:   req.ToolName,
		Parameters: audit.Redact(req.Params),
		Decision:   audit.DecisionApprovalRequired,
		Result:     resultSummary(tool.Result{Status: tool.StatusApprovalRequired, Reason: reason}),
	}
	if err := g.auditLog.Append(ctx, entry); err != nil {
		return true, tool.Result{}, err
	}
	return true, tool.Result{
		Status:     tool.StatusApprovalRequired,
		Reason:     reason,
		ApprovalID: p.ID,
	}, nil
}

// redeemApproval resolves a re-submitted approval ID. Only an approved,
// unexpired grant for the same actor and tool opens the gate.
func (g *GatewayService) redeemApproval(ctx context.Context, req tool.Request, id string) (gated bool, res tool.Result, err error) {
	p, err := g.approvals.Get(ctx, id)
	if err != nil {
		res = tool.Denied(fmt.Sprintf("approval %s not found", id), tool.ViolationApprovalAlreadyResolved)
		if aerr := g.auditViolation(ctx, req, audit.DecisionDeny, res); aerr != nil {
			return true, tool.Result{}, aerr
		}
		return true, res, nil
	}
	if p.ActorID != req.ActorID || p.ToolName != req.ToolName {
		res = tool.Denied("approval does not match this call", tool.ViolationApprovalAlreadyResolved)
	} else {
		switch p.Status {
		case approval.StatusApproved:
			return false, tool.Result{}, nil
		case approval.StatusPending:
			pendingRes := tool.Result{
				Status:     tool.StatusApprovalRequired,
				Reason:     p.Reason,
				ApprovalID: p.ID,
			}
			aerr := g.auditLog.Append(ctx, audit.Entry{
				SessionID:  req.SessionID,
				ActorID:    req.ActorID,
				EntryType:  audit.EntryApprovalRequest,
				ToolName:   req.ToolName,
				Parameters: audit.Redact(req.Params),
				Decision:   audit.DecisionApprovalRequired,
				Result:     resultSummary(pendingRes),
			})
			if aerr != nil {
				return true, tool.Result{}, aerr
			}
			return true, pendingRes, nil
		case approval.StatusExpired:
			g.metrics.ApprovalsTotal.WithLabelValues("expired").Inc()
			res = tool.Denied(fmt.Sprintf("approval %s expired", id), tool.ViolationApprovalExpired)
		default:
			res = tool.Denied(fmt.Sprintf("approval %s was denied", id), tool.ViolationApprovalAlreadyResolved)
		}
	}
	if aerr := g.auditViolation(ctx, req, audit.DecisionDeny, res); aerr != nil {
		return true, tool.Result{}, aerr
	}
	return true, res, nil
}

// policyCheck runs the tool's policy check, memoizing outcomes per
// (actor, tool, params).
func (g *GatewayService) policyCheck(ctx context.Context, reg tool.Registration, req tool.Request) (res tool.Result, denied bool, err error) {
	key := decisionKey(req.ActorID, req.ToolName, req.Params)
	d, hit := g.cache.Get(key)
	if hit {
		g.metrics.CacheLookups.WithLabelValues("hit").Inc()
	} else {
		g.metrics.CacheLookups.WithLabelValues("miss").Inc()
		violations, reason, cerr := reg.Check(ctx, req)
		if cerr != nil {
			res = tool.Errored(fmt.Sprintf("policy check: %v", cerr), tool.ViolationHandlerError)
			if aerr := g.auditViolation(ctx, req, audit.DecisionError, res); aerr != nil {
				return tool.Result{}, false, aerr
			}
			return res, true, nil
		}
		d = cachedDecision{violations: violations, reason: reason}
		g.cache.Put(key, d)
	}
	if len(d.violations) == 0 {
		return tool.Result{}, false, nil
	}
	res = tool.Denied(d.reason, d.violations...)
	if aerr := g.auditViolation(ctx, req, audit.DecisionDeny, res); aerr != nil {
		return tool.Result{}, false, aerr
	}
	return res, true, nil
}

// dispatch invokes the handler and records the tool_call entry. Handler
// failures are audited with decision=error; the single-entry invariant
// holds on every path.
func (g *GatewayService) dispatch(ctx context.Context, reg tool.Registration, req tool.Request) (tool.Result, error) {
	data, err := reg.Handler.Invoke(ctx, req)
	var res tool.Result
	decision := audit.DecisionAllow
	if err != nil {
		res = tool.Errored(err.Error(), tool.ViolationHandlerError)
		decision = audit.DecisionError
		g.log.Warn("tool handler failed",
			"tool", req.ToolName,
			"actor_id", req.ActorID,
			"error", err)
	} else {
		res = tool.Success(data)
		if w, ok := data.(tool.Warner); ok && w.InjectionWarning() != "" {
			res.Warning = w.InjectionWarning()
			g.metrics.InjectionsDetected.WithLabelValues(res.Warning).Inc()
		}
	}
	entry := audit.Entry{
		SessionID:  req.SessionID,
		ActorID:    req.ActorID,
		EntryType:  audit.EntryToolCall,
		ToolName:   req.ToolName,
		Parameters: audit.Redact(req.Params),
		Decision:   decision,
		Result:     resultSummary(res),
	}
	if aerr := g.auditLog.Append(ctx, entry); aerr != nil {
		return tool.Result{}, aerr
	}
	return res, nil
}

func (g *GatewayService) auditViolation(ctx context.Context, req tool.Request, decision string, res tool.Result) error {
	violations := make([]string, 0, len(res.Violations))
	for _, v := range res.Violations {
		violations = append(violations, string(v))
	}
	return g.auditLog.Append(ctx, audit.Entry{
		SessionID:  req.SessionID,
		ActorID:    req.ActorID,
		EntryType:  audit.EntryViolation,
		ToolName:   req.ToolName,
		Parameters: audit.Redact(req.Params),
		Decision:   decision,
		Violations: violations,
		Result:     resultSummary(res),
	})
}

// lockActor acquires the actor's mutex, creating it on first use.
func (g *GatewayService) lockActor(actorID string) func() {
	g.mu.Lock()
	l, ok := g.actorLocks[actorID]
	if !ok {
		l = &sync.Mutex{}
		g.actorLocks[actorID] = l
	}
	g.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// resultSummary is the compact JSON form persisted in the audit Result
// column. Payload data is summarized, not stored.
func resultSummary(res tool.Result) string {
	summary := map[string]any{"status": res.Status}
	if res.Reason != "" {
		summary["reason"] = res.Reason
	}
	if res.Warning != "" {
		summary["warning"] = res.Warning
	}
	raw, _ := json.Marshal(summary)
	return string(raw)
}

func decisionFor(s tool.Status) string {
	switch s {
	case tool.StatusSuccess:
		return audit.DecisionAllow
	case tool.StatusDenied:
		return audit.DecisionDeny
	case tool.StatusApprovalRequired:
		return audit.DecisionApprovalRequired
	default:
		return audit.DecisionError
	}
}
