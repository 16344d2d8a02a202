// Package textnorm produces the canonical form of user and agent text that
// every matcher in the service consumes.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize strips control characters, folds typographic apostrophes,
// lower-cases, composes to NFC and collapses whitespace. It never fails;
// empty input yields an empty string.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			b.WriteByte(' ')
		case r < 0x20 || (r >= 0x7f && r <= 0x9f):
			// dropped
		case r == '’' || r == '‘' || r == 'ʼ' || r == '`':
			b.WriteByte('\'')
		default:
			b.WriteRune(r)
		}
	}

	// Casers and transformers keep state, so one per call.
	s := cases.Lower(language.French).String(b.String())
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Fold removes diacritics so "ça fait" and "ca fait" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Key is the matching form: normalized then folded.
func Key(raw string) string {
	return Fold(Normalize(raw))
}

// Text carries a message in all three forms so callers can match on Key
// while echoing Raw with its original casing.
type Text struct {
	Raw  string
	Norm string
	Key  string
}

// New builds a Text from raw input.
func New(raw string) Text {
	n := Normalize(raw)
	return Text{Raw: raw, Norm: n, Key: Fold(n)}
}

// Empty reports whether nothing is left after normalization.
func (t Text) Empty() bool {
	return t.Norm == ""
}

// Tokens splits the key form on whitespace and trims surrounding
// punctuation from each token.
func Tokens(key string) []string {
	fields := strings.Fields(key)
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
		})
		f = strings.Trim(f, "'")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
