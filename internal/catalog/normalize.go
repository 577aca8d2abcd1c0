package catalog

import (
	"strings"
	"unicode"
)

// normalizePage prepares page text for indexing: trimmed, every whitespace run collapsed to one
// space, and control characters left behind by text extraction dropped.
func normalizePage(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	b.Grow(len(text))
	wasSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		case unicode.IsControl(r), r == unicode.ReplacementChar:
			continue
		default:
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}
