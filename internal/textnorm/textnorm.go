// Package textnorm normalizes chat text for classification and matching.
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Clean trims, collapses internal whitespace and caps the text at maxRunes
// (0 disables the cap). Case and accents are preserved.
func Clean(s string, maxRunes int) string {
	s = strings.Join(strings.Fields(s), " ")
	if maxRunes > 0 && utf8.RuneCountInString(s) > maxRunes {
		r := []rune(s)
		s = strings.TrimSpace(string(r[:maxRunes]))
	}
	return s
}

// Fold lowercases and strips diacritics so "Yogúr" and "yogur" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.Join(strings.Fields(out), " "))
}

// Contains reports whether needle occurs in haystack after folding both.
func Contains(haystack, needle string) bool {
	n := Fold(needle)
	if n == "" {
		return false
	}
	return strings.Contains(Fold(haystack), n)
}

// ContainsAnyWord reports whether any of words appears in s as a whole word
// after folding.
func ContainsAnyWord(s string, words []string) bool {
	tokens := strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	for _, w := range words {
		if _, ok := set[Fold(w)]; ok {
			return true
		}
	}
	return false
}
