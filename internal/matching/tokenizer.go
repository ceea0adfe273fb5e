// Package matching implements the name tokenization and fuzzy roster
// matching used to bind free-text kiosk input to canonical students.
package matching

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Tokenize normalizes a raw name into an ordered sequence of lowercase
// tokens. Apostrophes, periods, and hyphens are stripped before splitting
// so "O'Brien", "O.Brien", and "O-Brien" all tokenize to "obrien".
// Splitting happens on runs of whitespace and commas, which makes
// "First Last", "Last First", and "Last, First" produce the same token
// set. Blank input yields an empty sequence.
func Tokenize(name string) []string {
	if strings.TrimSpace(name) == "" {
		return nil
	}

	lowered := strings.ToLower(foldDiacritics(name))
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case '\'', '’', '.', '-':
			return -1
		}
		return r
	}, lowered)

	tokens := strings.FieldsFunc(stripped, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

// NormalizeKey collapses a raw name into its canonical lookup form: the
// token sequence joined with single spaces. Two spellings that tokenize
// identically produce the same key, which makes it suitable as a document
// ID component for synonym and queue records.
func NormalizeKey(name string) string {
	return strings.Join(Tokenize(name), " ")
}

// foldDiacritics strips combining marks so accented input matches its
// unaccented roster spelling. The transform chain is built per call;
// chained transformers carry internal buffers and are not safe to share.
func foldDiacritics(value string) string {
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(chain, value)
	if err != nil {
		return value
	}
	return folded
}
