package moderation

import "strings"

// Normalize canonicalizes text before matching: lower-case, trim leading and
// trailing whitespace, collapse internal whitespace runs to a single space.
// It is idempotent and language-agnostic. Diacritics are preserved: the
// Vietnamese rule patterns rely on precomposed accented characters.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
