package workflow

import "strings"

// GenerateSlug lower-cases name and collapses every run of characters other
// than ASCII letters and digits into a single hyphen, with none at either end.
func GenerateSlug(name string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('-')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}
