package logparse

import "strings"

// classifyRule maps keyword hits to a category. A rule matches when the
// lowercased error type contains any of typeAny, or the lowercased message
// contains any of msgAny, or the message contains every word in msgAll.
type classifyRule struct {
	category Category
	typeAny  []string
	msgAny   []string
	msgAll   []string
}

// classifyRules are evaluated top to bottom; the first match wins. Dependency
// comes first so "No module named 'x'" never falls through to runtime.
var classifyRules = []classifyRule{
	{
		category: CategoryDependency,
		typeAny:  []string{"modulenotfound", "import", "module"},
		msgAny:   []string{"cannot find module", "no module named", "npm err"},
	},
	{
		category: CategorySyntax,
		typeAny:  []string{"syntax", "indentation"},
	},
	{
		category: CategoryTestFailure,
		typeAny:  []string{"assertion"},
		msgAll:   []string{"failed", "test"},
	},
	{
		category: CategoryPermission,
		typeAny:  []string{"permission"},
		msgAny:   []string{"permission denied"},
	},
	{
		category: CategoryNetwork,
		typeAny:  []string{"connection", "timeout", "network"},
		msgAny:   []string{"connection refused", "network", "timeout"},
	},
	{
		category: CategoryConfiguration,
		typeAny:  []string{"filenotfound"},
	},
	{
		category: CategoryRuntime,
		typeAny:  []string{"type", "value", "key", "attribute", "name", "index"},
	},
}

// Classify maps an error type and message to a Category. It is pure and
// case-insensitive; unmatched input is CategoryUnknown.
func Classify(errType, message string) Category {
	t := strings.ToLower(errType)
	m := strings.ToLower(message)
	for _, r := range classifyRules {
		if r.matches(t, m) {
			return r.category
		}
	}
	return CategoryUnknown
}

func (r classifyRule) matches(t, m string) bool {
	if containsAny(t, r.typeAny) || containsAny(m, r.msgAny) {
		return true
	}
	if len(r.msgAll) == 0 {
		return false
	}
	for _, w := range r.msgAll {
		if !strings.Contains(m, w) {
			return false
		}
	}
	return true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
