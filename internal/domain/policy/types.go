// Package policy contains domain types for per-actor authorization policy:
// workspace grants, security profiles, and the pure evaluation functions
// over them.
package policy

import "time"

// WorkspaceMode is the access level a grant confers on a path prefix.
type WorkspaceMode string

const (
	// ModeReader permits read-only access.
	ModeReader WorkspaceMode = "reader"
	// ModeWriter permits read and write access.
	ModeWriter WorkspaceMode = "writer"
	// ModeOperator permits read, write, and destructive operations.
	ModeOperator WorkspaceMode = "operator"
)

// CanWrite reports whether the mode permits mutation.
func (m WorkspaceMode) CanWrite() bool {
	return m == ModeWriter || m == ModeOperator
}

// SecurityPreset selects a bundle of security-profile defaults applied at
// actor onboarding.
type SecurityPreset string

const (
	// PresetConservative disables shell and defaults workspaces to reader.
	PresetConservative SecurityPreset = "conservative"
	// PresetStandard disables shell and defaults workspaces to writer.
	PresetStandard SecurityPreset = "standard"
	// PresetPower enables shell and defaults workspaces to operator.
	PresetPower SecurityPreset = "power"
)

// Actor is an agent or organization subject to policy.
type Actor struct {
	// ID uniquely identifies the actor.
	ID string
	// Name is a human-readable label.
	Name string
	// Preset is the security preset applied at onboarding.
	Preset SecurityPreset
	// CreatedAt is when the actor was onboarded (UTC).
	CreatedAt time.Time
}

// WorkspaceGrant gives an actor access to a path prefix with a mode.
// A path p is inside the grant iff p equals Prefix or p starts with
// Prefix + "/" (directory-boundary-aware prefix match).
type WorkspaceGrant struct {
	ActorID string
	// Prefix is the absolute path prefix the grant covers.
	Prefix string
	Mode   WorkspaceMode
	// Name is an optional human-readable workspace label.
	Name string
}

// Contains reports whether path falls inside this grant's prefix at a
// directory boundary.
func (g WorkspaceGrant) Contains(path string) bool {
	if path == g.Prefix {
		return true
	}
	return len(path) > len(g.Prefix) &&
		path[:len(g.Prefix)] == g.Prefix &&
		path[len(g.Prefix)] == '/'
}

// SecurityProfile holds an actor's shell, domain, and sensitive-file policy.
// At most one profile exists per actor; a missing profile means the most
// restrictive defaults apply (shell disabled, web open).
type SecurityProfile struct {
	ActorID string
	// ShellEnabled gates shell_run entirely.
	ShellEnabled bool
	// ShellBlocklist entries are matched as case-insensitive substrings of
	// the full command line.
	ShellBlocklist []string
	// SensitivePatterns are globs matched against the path basename and the
	// full path; matching files require approval before writes.
	SensitivePatterns []string
	// AllowedDomains is a suffix allow-list. Empty means unrestricted.
	AllowedDomains []string
	// BlockedDomains is a suffix deny-list, checked before AllowedDomains.
	BlockedDomains []string
}

// DefaultShellBlocklist is applied when a profile is created without an
// explicit blocklist.
var DefaultShellBlocklist = []string{
	"rm -rf", "rm -r /", "mkfs", "dd if=", ":(){:|:&};:",
	"chmod -R 777", "curl | sh", "wget | sh", "> /dev/sd",
}

// DefaultSensitivePatterns is applied when a profile is created without
// explicit patterns.
var DefaultSensitivePatterns = []string{
	"*.env", ".env*", "*credentials*", "*secret*",
	"*.pem", "*.key", "*password*",
}

// ProfileForPreset returns a SecurityProfile seeded with the preset's
// defaults for the given actor.
func ProfileForPreset(actorID string, preset SecurityPreset) SecurityProfile {
	p := SecurityProfile{
		ActorID:           actorID,
		ShellBlocklist:    append([]string(nil), DefaultShellBlocklist...),
		SensitivePatterns: append([]string(nil), DefaultSensitivePatterns...),
	}
	if preset == PresetPower {
		p.ShellEnabled = true
	}
	return p
}

// DefaultMode returns the workspace mode a preset assigns to grants created
// without an explicit mode.
func (p SecurityPreset) DefaultMode() WorkspaceMode {
	switch p {
	case PresetConservative:
		return ModeReader
	case PresetPower:
		return ModeOperator
	default:
		return ModeWriter
	}
}
