// Package text holds the tokenization helpers shared by the similarity,
// scoring, and recall layers so they all agree on what a word is.
package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopWords are excluded from keyword matching and token-overlap scoring.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"he": {}, "her": {}, "his": {}, "i": {}, "in": {}, "is": {}, "it": {},
	"its": {}, "me": {}, "my": {}, "of": {}, "on": {}, "or": {}, "our": {},
	"she": {}, "so": {}, "that": {}, "the": {}, "their": {}, "them": {},
	"they": {}, "this": {}, "to": {}, "was": {}, "we": {}, "were": {},
	"what": {}, "when": {}, "who": {}, "will": {}, "with": {}, "you": {},
	"your": {},
}

// IsStopWord reports whether the lowercased token is a stop word.
func IsStopWord(tok string) bool {
	_, ok := stopWords[tok]
	return ok
}

// Normalize lowercases s and collapses every non-letter, non-digit run into
// a single space.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens splits s into normalized word tokens.
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// Keywords returns the tokens of s that are at least minLen runes long and
// not stop words. Used for query relevance and topic keys.
func Keywords(s string, minLen int) []string {
	var out []string
	for _, tok := range Tokens(s) {
		if utf8.RuneCountInString(tok) < minLen || IsStopWord(tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// TokenSet builds the set of tokens of s with at least minLen runes.
func TokenSet(s string, minLen int) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokens(s) {
		if utf8.RuneCountInString(tok) < minLen {
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}

// Jaccard computes |a∩b| / |a∪b| over two token sets. Two empty sets are
// identical by convention.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
