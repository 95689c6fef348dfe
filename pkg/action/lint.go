package action

import (
	"fmt"
	"strings"
)

// MaxSelectorLength is the length above which a selector is flagged as
// suspicious. Generators occasionally dump whole DOM fragments into it.
const MaxSelectorLength = 1000

var dangerousPatterns = []string{"javascript:", "<script", "onerror=", "onload="}

// Lint returns non-fatal warnings about an otherwise valid action.
func Lint(a Action) []string {
	var warnings []string
	if sel := SelectorOf(a); sel != "" {
		if len(sel) > MaxSelectorLength {
			warnings = append(warnings, fmt.Sprintf("selector exceeds %d characters", MaxSelectorLength))
		}
		if pattern, found := containsDangerousPattern(sel); found {
			warnings = append(warnings, fmt.Sprintf("selector contains dangerous pattern %q", pattern))
		}
	}
	if nav, ok := a.(Navigate); ok {
		if pattern, found := containsDangerousPattern(nav.URL); found {
			warnings = append(warnings, fmt.Sprintf("url contains dangerous pattern %q", pattern))
		}
	}
	return warnings
}

func containsDangerousPattern(s string) (string, bool) {
	lower := strings.ToLower(s)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return pattern, true
		}
	}
	return "", false
}
