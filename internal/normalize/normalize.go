// Package normalize canonicalizes raw source-chat names into stable
// comparison keys. Keys drive topic matching, so the transform must be
// deterministic and pure.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// accentFolder decomposes to NFD and drops combining marks, so
// "Canção" folds to "Cancao" before the ASCII filter runs.
var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

// Key normalizes a raw display name into a comparison key.
//
// Steps, in order: canonical decomposition with combining marks removed,
// non-ASCII code points dropped (emoji, pictographs, symbols), punctuation
// mapped to spaces, whitespace runs collapsed, lower-cased, trimmed.
// If everything is stripped away the lower-cased raw name is returned so
// the source still gets a stable key.
func Key(raw string) string {
	folded, _, err := transform.String(accentFolder, raw)
	if err != nil {
		folded = raw
	}

	var b strings.Builder

	b.Grow(len(folded))

	for _, r := range folded {
		switch {
		case r > unicode.MaxASCII:
			// Emoji and pictographs vanish entirely, they are decoration
			// around the name rather than part of it.
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	key := strings.Join(strings.Fields(b.String()), " ")
	key = strings.ToLower(strings.TrimSpace(key))

	if key == "" {
		return strings.ToLower(strings.TrimSpace(raw))
	}

	return key
}
