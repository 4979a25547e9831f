package source

import "strings"

// maxContentLength caps normalized item content.
const maxContentLength = 5000

// truncationMarker is appended when content is cut at maxContentLength.
const truncationMarker = "..."

// Normalize collapses runs of whitespace to single spaces, trims, and caps
// the text at maxContentLength runes. Pure and deterministic.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	content := strings.Join(strings.Fields(raw), " ")

	runes := []rune(content)
	if len(runes) > maxContentLength {
		content = string(runes[:maxContentLength]) + truncationMarker
	}

	return content
}

// truncateRunes caps s at max runes without splitting a multi-byte rune.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
