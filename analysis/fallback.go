package analysis

import "strings"

// DefaultCondition is returned by Fallback when no keyword matches
const DefaultCondition = "Hypertension"

type keywordRule struct {
	condition string
	match     func(note string) bool
}

func containsAny(note string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(note, w) {
			return true
		}
	}
	return false
}

// Rules are evaluated in order against the lowercased note
var fallbackRules = []keywordRule{
	{"Cardiac Failure", func(n string) bool { return containsAny(n, "heart", "cardiac") }},
	{"Hypertension", func(n string) bool { return containsAny(n, "hypertension", "blood pressure", "bp") }},
	{"Diabetes Mellitus Type 1", func(n string) bool {
		return strings.Contains(n, "diabetes") && containsAny(n, "type 1", "insulin")
	}},
	{"Diabetes Mellitus Type 2", func(n string) bool {
		return strings.Contains(n, "diabetes") && containsAny(n, "type 2", "metformin")
	}},
	{"Diabetes Insipidus", func(n string) bool { return strings.Contains(n, "diabetes insipidus") }},
}

// Fallback detects conditions from keywords in note. It is pure and always
// returns at least one label.
func Fallback(note string) []string {
	lower := strings.ToLower(note)

	var detected []string
	for _, rule := range fallbackRules {
		if rule.match(lower) {
			detected = append(detected, rule.condition)
		}
	}
	if len(detected) == 0 {
		return []string{DefaultCondition}
	}
	return detected
}
