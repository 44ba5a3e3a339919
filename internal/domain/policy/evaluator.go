package policy

import (
	"context"
	"path"
	"strings"
)

// Evaluator answers authorization questions from Store reads. All methods
// are pure with respect to the store snapshot: no side effects, safe to
// unit test with fixture stores.
type Evaluator struct {
	store Store
}

// NewEvaluator creates an Evaluator backed by the given store.
func NewEvaluator(store Store) *Evaluator {
	return &Evaluator{store: store}
}

// Mode returns the workspace mode of the most specific matching grant for
// the path, or ("", false) when no grant matches.
//
// When grants overlap, the longest matching prefix wins. Duplicate prefixes
// cannot occur (AddGrant replaces), but if a store returns them anyway the
// most permissive mode is taken, so that an upgraded re-grant is effective.
func (e *Evaluator) Mode(ctx context.Context, actorID, p string) (WorkspaceMode, bool, error) {
	grants, err := e.store.Grants(ctx, actorID)
	if err != nil {
		return "", false, err
	}
	var (
		best    WorkspaceGrant
		found   bool
		bestLen = -1
	)
	for _, g := range grants {
		if !g.Contains(p) {
			continue
		}
		switch {
		case len(g.Prefix) > bestLen:
			best, found, bestLen = g, true, len(g.Prefix)
		case len(g.Prefix) == bestLen && rankMode(g.Mode) > rankMode(best.Mode):
			best = g
		}
	}
	if !found {
		return "", false, nil
	}
	return best.Mode, true, nil
}

// IsAllowedPath reports whether any workspace grant covers the path.
func (e *Evaluator) IsAllowedPath(ctx context.Context, actorID, p string) (bool, error) {
	_, ok, err := e.Mode(ctx, actorID, p)
	return ok, err
}

// CanWrite reports whether the most specific grant covering the path
// permits writes. A reader grant denies writes regardless of any other
// policy state.
func (e *Evaluator) CanWrite(ctx context.Context, actorID, p string) (bool, error) {
	mode, ok, err := e.Mode(ctx, actorID, p)
	if err != nil || !ok {
		return false, err
	}
	return mode.CanWrite(), nil
}

// IsShellEnabled reports whether shell execution is enabled for the actor.
// A missing profile means disabled.
func (e *Evaluator) IsShellEnabled(ctx context.Context, actorID string) (bool, error) {
	prof, err := e.store.Profile(ctx, actorID)
	if err != nil || prof == nil {
		return false, err
	}
	return prof.ShellEnabled, nil
}

// IsBlockedCommand reports whether any blocklist entry is a
// case-insensitive substring of cmd.
func (e *Evaluator) IsBlockedCommand(ctx context.Context, actorID, cmd string) (bool, error) {
	prof, err := e.store.Profile(ctx, actorID)
	if err != nil || prof == nil {
		return false, err
	}
	lower := strings.ToLower(cmd)
	for _, blocked := range prof.ShellBlocklist {
		if blocked == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(blocked)) {
			return true, nil
		}
	}
	return false, nil
}

// IsSensitiveFile reports whether the path matches any of the actor's
// sensitive-file globs. Patterns are tried against the basename first
// (the common "*.env" case) and then against the full path.
func (e *Evaluator) IsSensitiveFile(ctx context.Context, actorID, p string) (bool, error) {
	prof, err := e.store.Profile(ctx, actorID)
	if err != nil || prof == nil {
		return false, err
	}
	base := path.Base(p)
	for _, pattern := range prof.SensitivePatterns {
		if pattern == "" {
			continue
		}
		if ok, _ := path.Match(pattern, base); ok {
			return true, nil
		}
		if ok, _ := path.Match(pattern, p); ok {
			return true, nil
		}
	}
	return false, nil
}

// IsAllowedDomain applies the actor's domain policy to a hostname.
//
// Ordering is load-bearing: the deny list is evaluated before the allow
// list, and an empty allow list means "unrestricted", not "nothing
// allowed". A domain matches a list entry when it equals the entry or is a
// subdomain of it ("sub.evil.com" matches "evil.com").
func (e *Evaluator) IsAllowedDomain(ctx context.Context, actorID, domain string) (bool, error) {
	prof, err := e.store.Profile(ctx, actorID)
	if err != nil {
		return false, err
	}
	if prof == nil {
		// No profile: web access is open by default.
		return true, nil
	}
	for _, blocked := range prof.BlockedDomains {
		if domainMatches(domain, blocked) {
			return false, nil
		}
	}
	if len(prof.AllowedDomains) == 0 {
		return true, nil
	}
	for _, allowed := range prof.AllowedDomains {
		if domainMatches(domain, allowed) {
			return true, nil
		}
	}
	return false, nil
}

// domainMatches reports whether domain equals suffix or is a subdomain of it.
func domainMatches(domain, suffix string) bool {
	if suffix == "" {
		return false
	}
	domain = strings.ToLower(domain)
	suffix = strings.ToLower(suffix)
	return domain == suffix || strings.HasSuffix(domain, "."+suffix)
}

// rankMode orders workspace modes by permissiveness.
func rankMode(m WorkspaceMode) int {
	switch m {
	case ModeOperator:
		return 3
	case ModeWriter:
		return 2
	case ModeReader:
		return 1
	default:
		return 0
	}
}
