// Package security sanitises user-controlled strings before they reach
// file names and response headers.
package security

import "strings"

// maxFilenameLen caps SanitizeFilename output.
const maxFilenameLen = 128

// SanitizeFilename maps s onto [A-Za-z0-9._-], replacing each run of other
// characters with one underscore and trimming leading or trailing dots and
// underscores. An empty result becomes "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		ok := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '.' || r == '_' || r == '-'
		if !ok {
			pending = true
			continue
		}
		if pending && b.Len() > 0 {
			b.WriteByte('_')
		}
		pending = false
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
