package utils

// Truncate caps s at limit runes, marking the cut with an ellipsis. Rune
// counting keeps multi-byte chat text from being split mid-character.
func Truncate(s string, limit int) string {
	if limit < 0 {
		limit = 0
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
