package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/farm-gate/farmgate/internal/domain/scan"
)

// scanRuleFile is the YAML shape of a custom detection rule file:
//
//	rules:
//	  - category: instruction_override
//	    needles: ["ignore", "instruction"]
type scanRuleFile struct {
	Rules []scanRuleEntry `yaml:"rules"`
}

type scanRuleEntry struct {
	Category string   `yaml:"category"`
	Needles  []string `yaml:"needles"`
}

// LoadScanRules reads an injection-detection rule table from a YAML file.
// The table replaces the built-in rules entirely; file order is significant
// because detection is first-match.
func LoadScanRules(path string) ([]scan.Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scan rules: %w", err)
	}
	rules, err := ParseScanRules(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// ParseScanRules parses and validates YAML rule-table content.
func ParseScanRules(raw []byte) ([]scan.Rule, error) {
	var file scanRuleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse scan rules: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("scan rules: no rules defined")
	}
	rules := make([]scan.Rule, 0, len(file.Rules))
	for i, entry := range file.Rules {
		if entry.Category == "" {
			return nil, fmt.Errorf("scan rules[%d]: category is required", i)
		}
		if len(entry.Needles) == 0 {
			return nil, fmt.Errorf("scan rules[%d]: at least one needle is required", i)
		}
		needles := make([]string, len(entry.Needles))
		for j, n := range entry.Needles {
			if strings.TrimSpace(n) == "" {
				return nil, fmt.Errorf("scan rules[%d]: empty needle", i)
			}
			// Matching is case-insensitive against lowercased content.
			needles[j] = strings.ToLower(n)
		}
		rules = append(rules, scan.Rule{
			Needles:  needles,
			Category: scan.Category(entry.Category),
		})
	}
	return rules, nil
}
