// Package config provides configuration loading and validation for
// farm-gate. File-based YAML plus FARM_GATE_* environment overrides.
package config

import (
	"time"
)

// Config is the top-level farm-gate configuration.
type Config struct {
	// Server configures the operational HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Storage selects where policy, org, approval, and audit state lives.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Gateway configures tool execution.
	Gateway GatewayConfig `yaml:"gateway" mapstructure:"gateway"`

	// Approval configures the human approval workflow.
	Approval ApprovalConfig `yaml:"approval" mapstructure:"approval"`

	// Admin configures the admin API.
	Admin AdminConfig `yaml:"admin" mapstructure:"admin"`

	// Tracing enables the stdout span exporter.
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
}

// ServerConfig configures the HTTP listener for metrics, health, and the
// admin API.
type ServerConfig struct {
	// HTTPAddr is the listen address. Default: 127.0.0.1:8080.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`
	// LogLevel is one of debug, info, warn, error. Default: info.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is "memory" or "sqlite". Default: memory.
	Driver string `yaml:"driver" mapstructure:"driver" validate:"omitempty,oneof=memory sqlite"`
	// Path is the SQLite database file. Required for the sqlite driver;
	// ":memory:" keeps the database in process memory.
	Path string `yaml:"path" mapstructure:"path"`
	// AuditFile optionally mirrors the audit trail to a size-rotated JSONL
	// file alongside the primary store.
	AuditFile string `yaml:"audit_file" mapstructure:"audit_file"`
}

// GatewayConfig configures tool execution.
type GatewayConfig struct {
	// WorkspaceRoot is the host directory workspace paths resolve under.
	// Default: the current working directory.
	WorkspaceRoot string `yaml:"workspace_root" mapstructure:"workspace_root"`
	// DecisionCacheSize bounds the policy decision cache. Default: 1000.
	DecisionCacheSize int `yaml:"decision_cache_size" mapstructure:"decision_cache_size" validate:"omitempty,min=1"`
	// ShellTimeout bounds one shell_run invocation (e.g. "30s").
	ShellTimeout string `yaml:"shell_timeout" mapstructure:"shell_timeout"`
	// ScanRulesFile optionally replaces the built-in injection-detection
	// rules with a YAML rule table.
	ScanRulesFile string `yaml:"scan_rules_file" mapstructure:"scan_rules_file"`
}

// ApprovalConfig configures the approval workflow.
type ApprovalConfig struct {
	// TTL is how long an approval stays actionable (e.g. "15m"). Expiry is
	// lazy; no background sweeper runs.
	TTL string `yaml:"ttl" mapstructure:"ttl"`
}

// AdminConfig configures the admin API.
type AdminConfig struct {
	// APIKeys are Argon2id hashes in PHC format. An empty list disables the
	// admin API.
	APIKeys []string `yaml:"api_keys" mapstructure:"api_keys"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled turns on the stdout span exporter. Default: false.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// SetDefaults fills unset optional fields.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Gateway.DecisionCacheSize == 0 {
		c.Gateway.DecisionCacheSize = 1000
	}
	if c.Gateway.ShellTimeout == "" {
		c.Gateway.ShellTimeout = "30s"
	}
	if c.Approval.TTL == "" {
		c.Approval.TTL = "15m"
	}
}

// ApprovalTTL parses the approval TTL. Call after Validate.
func (c *Config) ApprovalTTL() time.Duration {
	d, err := time.ParseDuration(c.Approval.TTL)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// ShellTimeout parses the shell timeout. Call after Validate.
func (c *Config) ShellTimeout() time.Duration {
	d, err := time.ParseDuration(c.Gateway.ShellTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
