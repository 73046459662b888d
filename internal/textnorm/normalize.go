// Package textnorm holds the one text cleaning transform shared by training
// data export, evaluation and online classification. Features were built
// from text cleaned by exactly this function; changing it silently degrades
// the deployed model.
package textnorm

import (
	"strings"
	"unicode"
)

// Normalize lower-cases text, drops every rune that is neither a-z nor
// whitespace, collapses whitespace runs into one space and trims the ends.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	pendingSpace := false
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z':
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case isSpace(r):
			pendingSpace = true
		}
	}
	return b.String()
}

// isSpace matches the whitespace class the training pipeline used, which also
// counts the ASCII file/group/record/unit separators.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}
