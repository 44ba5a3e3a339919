package localfs

import (
	"context"
	"fmt"
	"net/url"

	"github.com/farm-gate/farmgate/internal/domain/policy"
	"github.com/farm-gate/farmgate/internal/domain/tool"
)

// Register wires the filesystem, shell, and web tools into the registry
// with their policy checks and approval predicates. Shell execution always
// requires approval; writes to sensitive files require approval; reads and
// listings never do.
func Register(reg *tool.Registry, eval *policy.Evaluator, p *Provider) {
	reg.Register(tool.Registration{
		Name:    "fs_read",
		Handler: tool.HandlerFunc(p.ReadFile),
		Check:   pathCheck(eval, false),
	})
	reg.Register(tool.Registration{
		Name:             "fs_write",
		Handler:          tool.HandlerFunc(p.WriteFile),
		RequiresApproval: sensitiveWriteApproval(eval),
		Check:            pathCheck(eval, true),
	})
	reg.Register(tool.Registration{
		Name:    "fs_list",
		Handler: tool.HandlerFunc(p.ListDir),
		Check:   pathCheck(eval, false),
	})
	reg.Register(tool.Registration{
		Name:             "shell_run",
		Handler:          tool.HandlerFunc(p.RunShell),
		RequiresApproval: tool.AlwaysRequiresApproval("Shell execution requires approval"),
		Check:            shellCheck(eval),
	})
	reg.Register(tool.Registration{
		Name:    "web_fetch",
		Handler: tool.HandlerFunc(p.FetchURL),
		Check:   domainCheck(eval),
	})
}

// pathCheck verifies the path parameter falls inside a workspace grant,
// and for writes that the grant's mode permits mutation.
func pathCheck(eval *policy.Evaluator, write bool) tool.PolicyCheck {
	return func(ctx context.Context, req tool.Request) ([]tool.Violation, string, error) {
		p, err := tool.StringParam(req.Params, "path")
		if err != nil {
			return []tool.Violation{tool.ViolationPathNotAllowed}, "path parameter required", nil
		}
		mode, ok, err := eval.Mode(ctx, req.ActorID, p)
		if err != nil {
			return nil, "", err
		}
		if !ok {
			return []tool.Violation{tool.ViolationPathNotAllowed},
				fmt.Sprintf("Path not allowed: %s", p), nil
		}
		if write && !mode.CanWrite() {
			return []tool.Violation{tool.ViolationWorkspaceReadOnly},
				fmt.Sprintf("Workspace is read-only: %s", p), nil
		}
		return nil, "", nil
	}
}

// shellCheck verifies shell execution is enabled for the actor and the
// command hits no blocklist entry.
func shellCheck(eval *policy.Evaluator) tool.PolicyCheck {
	return func(ctx context.Context, req tool.Request) ([]tool.Violation, string, error) {
		cmd, err := tool.StringParam(req.Params, "cmd")
		if err != nil {
			return []tool.Violation{tool.ViolationCommandBlocked}, "cmd parameter required", nil
		}
		enabled, err := eval.IsShellEnabled(ctx, req.ActorID)
		if err != nil {
			return nil, "", err
		}
		if !enabled {
			return []tool.Violation{tool.ViolationShellDisabled},
				"Shell execution is disabled for this actor", nil
		}
		blocked, err := eval.IsBlockedCommand(ctx, req.ActorID, cmd)
		if err != nil {
			return nil, "", err
		}
		if blocked {
			return []tool.Violation{tool.ViolationCommandBlocked},
				fmt.Sprintf("Command blocked by policy: %s", cmd), nil
		}
		return nil, "", nil
	}
}

// domainCheck verifies the fetch target's hostname against the actor's
// domain policy.
func domainCheck(eval *policy.Evaluator) tool.PolicyCheck {
	return func(ctx context.Context, req tool.Request) ([]tool.Violation, string, error) {
		rawURL, err := tool.StringParam(req.Params, "url")
		if err != nil {
			return []tool.Violation{tool.ViolationDomainBlocked}, "url parameter required", nil
		}
		u, err := url.Parse(rawURL)
		if err != nil || u.Hostname() == "" {
			return []tool.Violation{tool.ViolationDomainBlocked},
				fmt.Sprintf("Invalid URL: %s", rawURL), nil
		}
		allowed, err := eval.IsAllowedDomain(ctx, req.ActorID, u.Hostname())
		if err != nil {
			return nil, "", err
		}
		if !allowed {
			return []tool.Violation{tool.ViolationDomainBlocked},
				fmt.Sprintf("Domain not allowed: %s", u.Hostname()), nil
		}
		return nil, "", nil
	}
}

// sensitiveWriteApproval gates writes to files matching the actor's
// sensitive-file patterns.
func sensitiveWriteApproval(eval *policy.Evaluator) tool.ApprovalPredicate {
	return func(ctx context.Context, req tool.Request) (bool, string, error) {
		p, err := tool.StringParam(req.Params, "path")
		if err != nil {
			// Let the policy check report the missing parameter.
			return false, "", nil
		}
		sensitive, err := eval.IsSensitiveFile(ctx, req.ActorID, p)
		if err != nil {
			return false, "", err
		}
		if sensitive {
			return true, fmt.Sprintf("Write to sensitive file requires approval: %s", p), nil
		}
		return false, "", nil
	}
}
