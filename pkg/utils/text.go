// Package utils provides shared utilities for text and logging.
package utils

// Truncate returns s cut to maxLen characters, with "..." appended if it was cut. Runes are
// never split. If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == maxLen {
			return s[:i] + "..."
		}
		count++
	}
	return s
}
