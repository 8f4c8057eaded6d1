package domain

import "strings"

// SplitScope splits a space-delimited scope string, dropping empty entries.
func SplitScope(scope string) []string {
	return strings.Fields(scope)
}

// JoinScope joins scope values back into wire form.
func JoinScope(scopes []string) string {
	return strings.Join(scopes, " ")
}

// ContainsScope reports whether scopes contains target.
func ContainsScope(scopes []string, target string) bool {
	for _, s := range scopes {
		if s == target {
			return true
		}
	}
	return false
}
