package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/farm-gate/farmgate/internal/domain/org"
)

// Sentinel errors for the delegation surface.
var (
	ErrOrgNotFound   = errors.New("org not found")
	ErrOrgDisabled   = errors.New("org disabled")
	ErrCallNotFound  = errors.New("call not found")
	ErrCallCompleted = errors.New("call already completed")
)

// OrgService owns cross-organization delegation: creating calls, completing
// them, and answering task-readiness queries. The actual model invocation
// belongs to the orchestrator; this service only records and routes.
type OrgService struct {
	store   org.Store
	checker *org.Checker
	graph   *org.Graph
	log     *slog.Logger
	now     func() time.Time
}

// NewOrgService creates an OrgService.
func NewOrgService(store org.Store, checker *org.Checker, log *slog.Logger) *OrgService {
	if log == nil {
		log = slog.Default()
	}
	return &OrgService{
		store:   store,
		checker: checker,
		graph:   org.NewGraph(store),
		log:     log,
		now:     time.Now,
	}
}

// Checker returns the permission checker for gateway policy checks.
func (s *OrgService) Checker() *org.Checker { return s.checker }

// CallOrg records a pending delegation call from callerOrg to targetOrg and
// returns the dispatch descriptor for the orchestrator to execute.
func (s *OrgService) CallOrg(ctx context.Context, callerOrg, targetOrg, sessionID, task string) (org.Dispatch, error) {
	caller, err := s.requireOrg(ctx, callerOrg)
	if err != nil {
		return org.Dispatch{}, err
	}
	target, err := s.requireOrg(ctx, targetOrg)
	if err != nil {
		return org.Dispatch{}, err
	}

	call := org.Call{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		CallerOrg: caller.ID,
		TargetOrg: target.ID,
		Task:      task,
		Status:    org.CallPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertCall(ctx, &call); err != nil {
		return org.Dispatch{}, fmt.Errorf("insert call: %w", err)
	}
	s.log.Info("org call dispatched",
		"call_id", call.ID,
		"caller", caller.ID,
		"target", target.ID,
		"seq", call.Seq)
	return org.Dispatch{
		CallID:    call.ID,
		TargetOrg: target.ID,
		Model:     target.ModelPrimary,
		Task:      task,
		Status:    org.DispatchStatus,
	}, nil
}

// CompleteOrgCall transitions a pending call to completed with the given
// result. Completing a completed call returns ErrCallCompleted.
func (s *OrgService) CompleteOrgCall(ctx context.Context, callID string, result any) (org.Call, error) {
	call, err := s.store.GetCall(ctx, callID)
	if err != nil {
		return org.Call{}, err
	}
	if call == nil {
		return org.Call{}, fmt.Errorf("%w: %s", ErrCallNotFound, callID)
	}
	if call.Status == org.CallCompleted {
		return *call, fmt.Errorf("%w: %s", ErrCallCompleted, callID)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return org.Call{}, fmt.Errorf("encode result: %w", err)
	}
	now := s.now().UTC()
	call.Status = org.CallCompleted
	call.Result = string(raw)
	call.CompletedAt = &now
	if err := s.store.UpdateCall(ctx, *call); err != nil {
		return org.Call{}, fmt.Errorf("update call: %w", err)
	}
	s.log.Info("org call completed", "call_id", call.ID, "target", call.TargetOrg)
	return *call, nil
}

// AddTaskDependency records that taskID depends on the delegation call
// dependsOn. depType defaults to "blocking".
func (s *OrgService) AddTaskDependency(ctx context.Context, taskID, dependsOn, depType string) error {
	if depType == "" {
		depType = "blocking"
	}
	return s.store.AddDependency(ctx, org.TaskDependency{
		TaskID:    taskID,
		DependsOn: dependsOn,
		Type:      depType,
	})
}

// ReadyTasks returns the tasks whose dependencies have all completed.
func (s *OrgService) ReadyTasks(ctx context.Context) ([]string, error) {
	return s.graph.ReadyTasks(ctx)
}

// CallChain returns the session's delegation calls in dispatch order.
func (s *OrgService) CallChain(ctx context.Context, sessionID string) ([]org.Call, error) {
	return s.graph.CallChain(ctx, sessionID)
}

// ListOrgs returns all registered orgs.
func (s *OrgService) ListOrgs(ctx context.Context) ([]org.Org, error) {
	return s.store.ListOrgs(ctx)
}

func (s *OrgService) requireOrg(ctx context.Context, orgID string) (org.Org, error) {
	o, err := s.store.GetOrg(ctx, orgID)
	if err != nil {
		return org.Org{}, err
	}
	if o == nil {
		return org.Org{}, fmt.Errorf("%w: %s", ErrOrgNotFound, orgID)
	}
	if !o.Enabled {
		return org.Org{}, fmt.Errorf("%w: %s", ErrOrgDisabled, orgID)
	}
	return *o, nil
}

// AddDenialRule persists a denial rule. A conditioned rule is compile-checked
// first when the condition evaluator supports validation, so invalid CEL
// cannot poison the store.
func (s *OrgService) AddDenialRule(ctx context.Context, r org.DenialRule) error {
	if r.Condition != "" {
		if v, ok := s.checker.Conditions().(org.ConditionValidator); ok {
			if err := v.ValidateExpression(r.Condition); err != nil {
				return fmt.Errorf("denial rule condition: %w", err)
			}
		}
	}
	return s.store.AddDenialRule(ctx, r)
}

// seedOrg bundles one org's registration with its permissions and denials.
type seedOrg struct {
	org     org.Org
	tools   []org.ToolPermission
	denials []org.DenialRule
}

// Seed registers the stock organizations with their tool permissions and
// denial rules. Idempotent: rows replace existing ones.
func (s *OrgService) Seed(ctx context.Context) error {
	for _, seed := range stockOrgs() {
		seed.org.Enabled = true
		seed.org.CreatedAt = s.now().UTC()
		if err := s.store.SaveOrg(ctx, seed.org); err != nil {
			return fmt.Errorf("seed org %s: %w", seed.org.ID, err)
		}
		for _, p := range seed.tools {
			p.OrgID = seed.org.ID
			p.Enabled = true
			if err := s.store.SetToolPermission(ctx, p); err != nil {
				return fmt.Errorf("seed permission %s/%s: %w", seed.org.ID, p.ToolName, err)
			}
		}
		for _, r := range seed.denials {
			r.OrgID = seed.org.ID
			if err := s.AddDenialRule(ctx, r); err != nil {
				return fmt.Errorf("seed denial %s/%s: %w", seed.org.ID, r.Pattern, err)
			}
		}
	}
	s.log.Info("seeded stock orgs", "count", len(stockOrgs()))
	return nil
}

func stockOrgs() []seedOrg {
	return []seedOrg{
		{
			org: org.Org{
				ID:             "dev-org",
				Name:           "DevOrg",
				Type:           "dev",
				Description:    "Development, code reviews, pipeline configurations",
				ModelPrimary:   "glm-4.7:cloud",
				ModelSecondary: "qwen3-coder:cloud",
				SystemPrompt:   "You are DevOrg, the development agent. Write code and pipeline configurations inside /projects/dev only.",
			},
			tools: []org.ToolPermission{
				{ToolName: "fs_read"},
				{ToolName: "fs_list"},
				{ToolName: "fs_write", RequiresApproval: true},
			},
			denials: []org.DenialRule{
				{Type: org.DenialShell, Pattern: "*", Reason: "Shell access not allowed for DevOrg"},
				{Type: org.DenialWorkspace, Pattern: "/projects/ops/*", Reason: "No access to Ops workspace"},
				{Type: org.DenialWorkspace, Pattern: "/projects/studio/*", Reason: "No access to Studio workspace"},
			},
		},
		{
			org: org.Org{
				ID:             "ops-org",
				Name:           "OpsOrg",
				Type:           "ops",
				Description:    "CI/CD pipelines, deployments, render jobs",
				ModelPrimary:   "kimi-k2.5:cloud",
				ModelSecondary: "minimax-m2.1:cloud",
				SystemPrompt:   "You are OpsOrg, the operations agent. Run deployments and operational commands; code changes come from DevOrg.",
			},
			tools: []org.ToolPermission{
				{ToolName: "fs_read"},
				{ToolName: "fs_list"},
				{ToolName: "web_fetch"},
				{ToolName: "shell_run", RequiresApproval: true},
			},
			denials: []org.DenialRule{
				{Type: org.DenialWorkspace, Pattern: "/projects/dev/*", Reason: "No write access to dev repos"},
				{Type: org.DenialTool, Pattern: "fs_write", Reason: "Code changes only via DevOrg"},
			},
		},
		{
			org: org.Org{
				ID:             "research-org",
				Name:           "ResearchOrg",
				Type:           "research",
				Description:    "External research, summaries, research notes",
				ModelPrimary:   "gpt-oss:20b-cloud",
				ModelSecondary: "minimax-m2.1:cloud",
				SystemPrompt:   "You are ResearchOrg, the research agent. Search, summarize, and keep notes under /data/research.",
			},
			tools: []org.ToolPermission{
				{ToolName: "fs_read"},
				{ToolName: "fs_write"},
				{ToolName: "fs_list"},
			},
			denials: []org.DenialRule{
				{Type: org.DenialTool, Pattern: "web_fetch", Reason: "Direct HTTP access not allowed"},
				{Type: org.DenialTool, Pattern: "shell_run", Reason: "Shell access not allowed"},
				{Type: org.DenialWorkspace, Pattern: "/projects/*", Reason: "No access to project workspaces"},
			},
		},
		{
			org: org.Org{
				ID:             "studio-org",
				Name:           "StudioOrg",
				Type:           "studio",
				Description:    "Requirements, specs, DCC briefings, shot notes",
				ModelPrimary:   "kimi-k2.5:cloud",
				ModelSecondary: "gemma3:4b-cloud",
				SystemPrompt:   "You are StudioOrg, the creative and product agent. Write briefings and specs under /projects/studio.",
			},
			tools: []org.ToolPermission{
				{ToolName: "fs_read"},
				{ToolName: "fs_write"},
				{ToolName: "fs_list"},
			},
			denials: []org.DenialRule{
				{Type: org.DenialWorkspace, Pattern: "/projects/dev/*", Reason: "No access to Dev workspace"},
				{Type: org.DenialWorkspace, Pattern: "/projects/ops/*", Reason: "No access to Ops workspace"},
				{Type: org.DenialTool, Pattern: "shell_run", Reason: "Shell access not allowed"},
				{Type: org.DenialPattern, Pattern: "*.py", Reason: "Cannot edit Python files"},
				{Type: org.DenialPattern, Pattern: "*.sh", Reason: "Cannot edit shell scripts"},
				{Type: org.DenialPattern, Pattern: "*.yaml", Reason: "Cannot edit pipeline configs"},
			},
		},
		{
			org: org.Org{
				ID:             "orchestrator-org",
				Name:           "OrchestratorOrg",
				Type:           "orchestrator",
				Description:    "Central task distribution to orgs",
				ModelPrimary:   "kimi-k2.5:cloud",
				ModelSecondary: "glm-4.7:cloud",
				SystemPrompt:   "You are OrchestratorOrg, the central coordinator. Delegate every task to the appropriate org; never execute tools yourself.",
			},
			tools: []org.ToolPermission{
				{ToolName: "org_call"},
				{ToolName: "org_call_complete"},
				{ToolName: "task_add_dependency"},
				{ToolName: "task_ready"},
			},
			denials: []org.DenialRule{
				{Type: org.DenialTool, Pattern: "fs_read", Reason: "No direct file access"},
				{Type: org.DenialTool, Pattern: "fs_write", Reason: "No direct file access"},
				{Type: org.DenialTool, Pattern: "shell_run", Reason: "No shell access"},
				{Type: org.DenialTool, Pattern: "web_fetch", Reason: "No web access"},
			},
		},
	}
}
