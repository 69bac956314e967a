package facematch

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxIdentityLength is the longest accepted identity, in runes.
const MaxIdentityLength = 128

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// FoldIdentity folds an identity for loose search (lowercase, no diacritics,
// spaces for dashes and underscores). Stored identities are never folded.
func FoldIdentity(identity string) string {
	s := RemoveDiacritics(identity)
	s = strings.ToLower(s)
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeIdentity canonicalises an identity for storage: NFC form,
// surrounding whitespace trimmed and inner runs of spaces collapsed.
// Empty identities, control characters (tabs and newlines included) and
// overlong identities are rejected.
func NormalizeIdentity(identity string) (string, error) {
	if !utf8.ValidString(identity) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidIdentity)
	}
	s := norm.NFC.String(identity)
	// Before collapsing: tab, newline and U+0085 are both whitespace and control.
	if strings.IndexFunc(s, unicode.IsControl) >= 0 {
		return "", fmt.Errorf("%w: contains control characters", ErrInvalidIdentity)
	}
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidIdentity)
	}
	if n := utf8.RuneCountInString(s); n > MaxIdentityLength {
		return "", fmt.Errorf("%w: %d characters, at most %d allowed", ErrInvalidIdentity, n, MaxIdentityLength)
	}
	return s, nil
}

// MatchesQuery reports whether identity contains query after folding both.
func MatchesQuery(identity, query string) bool {
	q := FoldIdentity(query)
	return q == "" || strings.Contains(FoldIdentity(identity), q)
}
