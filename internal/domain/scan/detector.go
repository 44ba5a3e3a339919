// Package scan classifies text content for known prompt-injection patterns.
// Detection is advisory: callers attach the category as a warning on read
// content rather than blocking the read.
package scan

import "strings"

// Category labels the kind of injection a rule detects.
type Category string

const (
	CategoryInstructionOverride  Category = "instruction_override"
	CategoryRoleHijack           Category = "role_hijack"
	CategoryInstructionInjection Category = "instruction_injection"
	CategorySystemInjection      Category = "system_injection"
	CategoryXMLInjection         Category = "xml_injection"
	CategoryPrivilegeEscalation  Category = "privilege_escalation"
	CategoryJailbreak            Category = "jailbreak"
)

// Detector classifies content for prompt-injection patterns.
type Detector interface {
	// Detect returns the first matching category, or ("", false) when the
	// content is clean.
	Detect(content string) (Category, bool)
}

// Rule is one detection probe: the rule fires when every needle appears as
// a case-insensitive substring of the content.
type Rule struct {
	// Needles must all be present (lowercase).
	Needles []string
	// Category is reported when the rule fires.
	Category Category
}

// DefaultRules is the ordered built-in rule table. Order is significant:
// the first firing rule's category is returned.
func DefaultRules() []Rule {
	return []Rule{
		{Needles: []string{"ignore", "instruction"}, Category: CategoryInstructionOverride},
		{Needles: []string{"disregard", "above"}, Category: CategoryInstructionOverride},
		{Needles: []string{"forget", "everything"}, Category: CategoryInstructionOverride},
		{Needles: []string{"you are now"}, Category: CategoryRoleHijack},
		{Needles: []string{"new instructions:"}, Category: CategoryInstructionInjection},
		{Needles: []string{"[system]"}, Category: CategorySystemInjection},
		{Needles: []string{"</system>"}, Category: CategoryXMLInjection},
		{Needles: []string{"<instruction>"}, Category: CategoryXMLInjection},
		{Needles: []string{"admin mode"}, Category: CategoryPrivilegeEscalation},
		{Needles: []string{"developer mode"}, Category: CategoryPrivilegeEscalation},
		{Needles: []string{"jailbreak"}, Category: CategoryJailbreak},
	}
}

// RuleDetector applies an ordered rule table, first match wins.
type RuleDetector struct {
	rules []Rule
}

// Compile-time interface verification.
var _ Detector = (*RuleDetector)(nil)

// NewDetector creates a RuleDetector with the default rule table.
func NewDetector() *RuleDetector {
	return NewDetectorWithRules(DefaultRules())
}

// NewDetectorWithRules creates a RuleDetector with a custom rule table.
func NewDetectorWithRules(rules []Rule) *RuleDetector {
	return &RuleDetector{rules: rules}
}

// Detect returns the category of the first rule all of whose needles occur
// in content (case-insensitive), or ("", false).
func (d *RuleDetector) Detect(content string) (Category, bool) {
	if content == "" {
		return "", false
	}
	lower := strings.ToLower(content)
	for _, rule := range d.rules {
		if ruleFires(rule, lower) {
			return rule.Category, true
		}
	}
	return "", false
}

func ruleFires(rule Rule, lower string) bool {
	if len(rule.Needles) == 0 {
		return false
	}
	for _, needle := range rule.Needles {
		if !strings.Contains(lower, needle) {
			return false
		}
	}
	return true
}
