package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Slugify turns a title into a lowercase, hyphen separated URL segment and appends
// the id so slugs stay unique across listings with the same title.
func Slugify(title, id string) string {
	var b strings.Builder
	dash := false
	for _, r := range norm.NFKD.String(title) {
		switch {
		case unicode.Is(unicode.Mn, r):
			// drop combining marks left over from decomposition
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if id == "" {
		return slug
	}
	if slug == "" {
		return strings.ToLower(id)
	}
	return slug + "-" + strings.ToLower(id)
}
