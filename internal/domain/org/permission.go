package org

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// ConditionEvaluator evaluates an optional rule condition against call
// parameters. Implemented by the CEL adapter; a nil evaluator treats every
// condition as matching (fail closed for denials).
type ConditionEvaluator interface {
	// Match reports whether the condition holds for the given parameters.
	Match(ctx context.Context, condition string, params map[string]any) (bool, error)
}

// ConditionValidator is optionally implemented by a ConditionEvaluator
// that can compile-check a condition without evaluating it. Writers use
// it to reject malformed conditions before persisting a rule.
type ConditionValidator interface {
	ValidateExpression(condition string) error
}

// Checker evaluates org-level tool permissions. It is pure over Store
// reads; no I/O side effects.
type Checker struct {
	store Store
	conds ConditionEvaluator
}

// NewChecker creates a Checker. conds may be nil, in which case
// conditioned denial rules match unconditionally.
func NewChecker(store Store, conds ConditionEvaluator) *Checker {
	return &Checker{store: store, conds: conds}
}

// Conditions returns the checker's condition evaluator, or nil.
func (c *Checker) Conditions() ConditionEvaluator {
	if c == nil {
		return nil
	}
	return c.conds
}

// CanExecute decides whether orgID may execute tool with params.
//
// Evaluation order, first hit wins:
//  1. no permission row, or enabled=false  -> denied ("Tool not allowed")
//  2. matching denial rule                 -> denied with the rule's reason
//  3. requires_approval on the permission  -> allowed, approval required
//  4. otherwise                            -> allowed
//
// Denial rules override permissions by construction of this ordering.
func (c *Checker) CanExecute(ctx context.Context, orgID, tool string, params map[string]any) (PermissionDecision, error) {
	perm, err := c.store.ToolPermission(ctx, orgID, tool)
	if err != nil {
		return PermissionDecision{}, err
	}
	if perm == nil || !perm.Enabled {
		return PermissionDecision{
			Allowed: false,
			Reason:  fmt.Sprintf("Tool not allowed for org %s: %s", orgID, tool),
		}, nil
	}

	rules, err := c.store.DenialRules(ctx, orgID, "")
	if err != nil {
		return PermissionDecision{}, err
	}
	for _, rule := range rules {
		matched, err := c.ruleMatches(ctx, rule, tool, params)
		if err != nil {
			return PermissionDecision{}, err
		}
		if matched {
			reason := rule.Reason
			if reason == "" {
				reason = fmt.Sprintf("Denied by %s rule %q", rule.Type, rule.Pattern)
			}
			return PermissionDecision{Allowed: false, Reason: reason, DeniedByRule: true}, nil
		}
	}

	if perm.RequiresApproval {
		return PermissionDecision{
			Allowed:          true,
			RequiresApproval: true,
			Reason:           fmt.Sprintf("Tool %s requires approval", tool),
		}, nil
	}
	return PermissionDecision{Allowed: true}, nil
}

// ruleMatches applies one denial rule to the call. The rule's pattern is
// matched against the subject selected by its type; a conditioned rule
// additionally requires its CEL condition to hold.
func (c *Checker) ruleMatches(ctx context.Context, rule DenialRule, tool string, params map[string]any) (bool, error) {
	var subject string
	switch rule.Type {
	case DenialTool:
		subject = tool
	case DenialShell:
		subject = stringParam(params, "cmd")
		if subject == "" && !strings.HasPrefix(tool, "shell") {
			return false, nil
		}
		if rule.Pattern == "*" && strings.HasPrefix(tool, "shell") {
			subject = tool // wildcard shell denial hits the tool itself
		}
	case DenialWorkspace, DenialPattern:
		subject = stringParam(params, "path")
		if subject == "" {
			return false, nil
		}
	default:
		return false, nil
	}
	if subject == "" {
		return false, nil
	}

	if !patternMatches(rule.Pattern, subject, rule.Type) {
		return false, nil
	}
	if rule.Condition == "" || c.conds == nil {
		return true, nil
	}
	return c.conds.Match(ctx, rule.Condition, params)
}

// patternMatches applies a denial pattern to a subject. "*" matches
// everything. Workspace patterns of the form "/prefix/*" also match the
// bare prefix directory itself.
func patternMatches(pattern, subject string, t DenialType) bool {
	if pattern == "*" {
		return true
	}
	switch t {
	case DenialPattern:
		// File globs match the basename ("*.py" against "/a/b/x.py").
		if ok, _ := path.Match(pattern, path.Base(subject)); ok {
			return true
		}
		ok, _ := path.Match(pattern, subject)
		return ok
	case DenialWorkspace:
		if trimmed, found := strings.CutSuffix(pattern, "/*"); found {
			return subject == trimmed || strings.HasPrefix(subject, trimmed+"/")
		}
		ok, _ := path.Match(pattern, subject)
		return ok
	default:
		if pattern == subject {
			return true
		}
		ok, _ := path.Match(pattern, subject)
		return ok
	}
}

// stringParam extracts a string-typed parameter, or "".
func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	if s, ok := params[key].(string); ok {
		return s
	}
	return ""
}
