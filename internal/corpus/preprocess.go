package corpus

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Preprocess normalizes text for indexing (trim, collapse whitespace).
func Preprocess(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}

// validUTF8 replaces invalid UTF-8 sequences with the replacement character.
func validUTF8(content []byte) string {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "\ufffd")
	}
	return string(content)
}

// hasWord reports whether text contains at least one letter or digit. Rule lines
// such as "_____" carry nothing to embed.
func hasWord(text string) bool {
	return strings.IndexFunc(text, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}
