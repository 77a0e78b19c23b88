package valuation

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StripAccents decomposes name (NFD) and drops combining marks, so
// "Nikola Jokić" and "Nikola Jokic" join to the same row.
func StripAccents(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, name)
	if err != nil {
		return name
	}
	return out
}
