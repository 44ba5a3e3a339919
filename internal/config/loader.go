package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, standard locations are searched for
// farm-gate.yaml/.yml. The search requires an explicit YAML extension so
// the binary itself is never matched.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("farm-gate")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: FARM_GATE_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("FARM_GATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a farm-gate config file
// with an explicit YAML extension.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".farm-gate"),
		"/etc/farm-gate",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "farm-gate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys for environment variable
// support. admin.api_keys is an array; use the config file for it.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("storage.driver")
	_ = viper.BindEnv("storage.path")
	_ = viper.BindEnv("storage.audit_file")
	_ = viper.BindEnv("gateway.workspace_root")
	_ = viper.BindEnv("gateway.decision_cache_size")
	_ = viper.BindEnv("gateway.shell_timeout")
	_ = viper.BindEnv("gateway.scan_rules_file")
	_ = viper.BindEnv("approval.ttl")
	_ = viper.BindEnv("tracing.enabled")
}

// LoadConfig reads the configuration file, applies environment overrides
// and defaults, and validates the result. A missing config file is not an
// error; environment variables alone are enough to run.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, or ""
// when running on environment variables only.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
