package textutil

import "strings"

// NormalizeName lowercases a product name and strips everything but
// letters and digits, so "Don!! Card (Red)" and "don card red" compare
// equal. Scraped names drift in punctuation and spacing between runs.
func NormalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
