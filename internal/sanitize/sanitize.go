// Package sanitize scrubs text that ultimately originates from OCR of
// arbitrary on-screen content before it reaches the overlay WebSocket or
// an outbound escalation message.
package sanitize

import (
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var htmlPolicy = bluemonday.StrictPolicy()

// Text strips any HTML-like markup and control characters, then trims
// and caps the result at maxLen runes. maxLen <= 0 means unbounded.
func Text(s string, maxLen int) string {
	cleaned := htmlPolicy.Sanitize(s)
	cleaned = stripControl(cleaned)
	cleaned = strings.TrimSpace(cleaned)
	if maxLen > 0 {
		if r := []rune(cleaned); len(r) > maxLen {
			cleaned = string(r[:maxLen])
		}
	}
	return cleaned
}

func stripControl(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
