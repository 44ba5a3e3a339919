package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/farm-gate/farmgate/internal/domain/tool"
)

// RegisterOrgTools wires the delegation tools into the registry. Org-level
// permissions for these tools are enforced by the gateway's org gate; the
// handlers themselves validate only their inputs.
func RegisterOrgTools(reg *tool.Registry, orgs *OrgService) {
	reg.Register(tool.Registration{
		Name:    "org_call",
		Handler: tool.HandlerFunc(orgs.handleCallOrg),
	})
	reg.Register(tool.Registration{
		Name:    "org_call_complete",
		Handler: tool.HandlerFunc(orgs.handleCompleteCall),
	})
	reg.Register(tool.Registration{
		Name:    "task_add_dependency",
		Handler: tool.HandlerFunc(orgs.handleAddDependency),
	})
	reg.Register(tool.Registration{
		Name:    "task_ready",
		Handler: tool.HandlerFunc(orgs.handleReadyTasks),
	})
}

// handleCallOrg dispatches a delegation call. The calling actor is the
// caller org.
func (s *OrgService) handleCallOrg(ctx context.Context, req tool.Request) (any, error) {
	target, err := tool.StringParam(req.Params, "target_org")
	if err != nil {
		return nil, err
	}
	task, err := tool.StringParam(req.Params, "task")
	if err != nil {
		return nil, err
	}
	return s.CallOrg(ctx, req.ActorID, target, req.SessionID, task)
}

func (s *OrgService) handleCompleteCall(ctx context.Context, req tool.Request) (any, error) {
	callID, err := tool.StringParam(req.Params, "call_id")
	if err != nil {
		return nil, err
	}
	result, ok := req.Params["result"]
	if !ok {
		return nil, fmt.Errorf("%w: result", tool.ErrMissingParam)
	}
	call, err := s.CompleteOrgCall(ctx, callID, result)
	if err != nil {
		if errors.Is(err, ErrCallCompleted) {
			return nil, fmt.Errorf("call %s is already completed", callID)
		}
		return nil, err
	}
	return call, nil
}

func (s *OrgService) handleAddDependency(ctx context.Context, req tool.Request) (any, error) {
	taskID, err := tool.StringParam(req.Params, "task_id")
	if err != nil {
		return nil, err
	}
	dependsOn, err := tool.StringParam(req.Params, "depends_on")
	if err != nil {
		return nil, err
	}
	depType, _ := req.Params["type"].(string)
	if err := s.AddTaskDependency(ctx, taskID, dependsOn, depType); err != nil {
		return nil, err
	}
	return map[string]any{"task_id": taskID, "depends_on": dependsOn}, nil
}

func (s *OrgService) handleReadyTasks(ctx context.Context, req tool.Request) (any, error) {
	ready, err := s.ReadyTasks(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ready_tasks": ready}, nil
}
