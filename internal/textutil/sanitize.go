package textutil

import (
	"strings"
	"unicode"
)

// Truncate returns at most limit runes of text. The cut is moved back to the
// last whitespace when one exists in the final tenth of the window so words
// are not split.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := limit
	for i := limit; i > limit-limit/10 && i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace)
}
