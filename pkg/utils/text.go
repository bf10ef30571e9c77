package utils

import "strings"

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Canonical returns the canonical form of s used for content identity:
// lower-cased, trimmed, with every whitespace run collapsed to a single space.
// Punctuation is kept as-is.
func Canonical(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
