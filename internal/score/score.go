// Package score rates candidate memories for storage worthiness and assigns
// their durability tier. The quality score blends four weighted signals;
// classification walks a data-driven pattern table so new trigger phrases
// are an entry away.
package score

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/mnemod/mnemod/internal/record"
	"github.com/mnemod/mnemod/internal/text"
)

// Weights for the quality blend. They are expected to sum to 1.
type Weights struct {
	Relevance float64
	Density   float64
	Clarity   float64
	Freshness float64
}

// DefaultWeights returns the standard blend: relevance dominates, freshness
// matters least.
func DefaultWeights() Weights {
	return Weights{Relevance: 0.4, Density: 0.3, Clarity: 0.2, Freshness: 0.1}
}

// Thresholds holds the minimum quality a passive candidate must reach to be
// stored, per target tier. Cross-thread facts clear a lower bar.
type Thresholds struct {
	Tier1 float64
	Tier2 float64
	Tier3 float64
}

// DefaultThresholds returns the standard storage bars.
func DefaultThresholds() Thresholds {
	return Thresholds{Tier1: 0.62, Tier2: 0.70, Tier3: 0.70}
}

// For returns the threshold for the given tier.
func (t Thresholds) For(tier record.Tier) float64 {
	switch tier {
	case record.Tier1:
		return t.Tier1
	case record.Tier2:
		return t.Tier2
	default:
		return t.Tier3
	}
}

// Context carries the conversational signals available at scoring time.
type Context struct {
	// RecentTurns is the tail of the current conversation, newest last.
	RecentTurns []string

	// ObservedAt is when the candidate was spoken; Now is evaluation time.
	// A zero ObservedAt counts as fully fresh.
	ObservedAt time.Time
	Now        time.Time
}

// tierRule maps a trigger pattern to the tier it suggests. Rules are tried
// in order; first match wins.
type tierRule struct {
	pattern *regexp.Regexp
	tier    record.Tier
}

// defaultTierRules marks preference, goal, and constraint phrasings as
// durable (tier2). Everything unmatched stays session-scoped (tier3).
var defaultTierRules = []tierRule{
	{regexp.MustCompile(`(?i)\bprefer(?:s|red)?\b`), record.Tier2},
	{regexp.MustCompile(`(?i)\bfavorite\b`), record.Tier2},
	{regexp.MustCompile(`(?i)\balways\b`), record.Tier2},
	{regexp.MustCompile(`(?i)\bnever\b`), record.Tier2},
	{regexp.MustCompile(`(?i)\bgoal\b`), record.Tier2},
	{regexp.MustCompile(`(?i)\bmust\b`), record.Tier2},
	{regexp.MustCompile(`(?i)\bshould\b`), record.Tier2},
	{regexp.MustCompile(`(?i)\bsetting\b`), record.Tier2},
	{regexp.MustCompile(`(?i)\bi (?:like|love|hate|dislike)\b`), record.Tier2},
	{regexp.MustCompile(`(?i)\bcall me\b`), record.Tier2},
	{regexp.MustCompile(`(?i)\bremind me\b`), record.Tier2},
}

// freshnessWindow is how long a turn stays relevant for the freshness
// signal. Older observations decay linearly to zero.
const freshnessWindow = time.Hour

// Scorer computes quality scores and tier classifications.
type Scorer struct {
	weights Weights
	rules   []tierRule
}

// NewScorer creates a Scorer with the given weights and the default rule
// table.
func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w, rules: defaultTierRules}
}

// Score returns the quality of a candidate in [0, 1]:
// Q = 0.4*relevance + 0.3*density + 0.2*clarity + 0.1*freshness
// under the default weights. It never fails; degenerate input simply scores
// low.
func (s *Scorer) Score(candidate string, sctx Context) float64 {
	r := relevance(candidate, sctx.RecentTurns)
	i := density(candidate)
	c := clarity(candidate)
	h := freshness(sctx.ObservedAt, sctx.Now)

	q := s.weights.Relevance*r + s.weights.Density*i + s.weights.Clarity*c + s.weights.Freshness*h
	return clamp01(q)
}

// Classify assigns the candidate's tier. Facts already observed across
// threads are tier1; preference-shaped phrasing is tier2; the rest is
// session context.
func (s *Scorer) Classify(candidate string, crossThread bool) record.Tier {
	if crossThread {
		return record.Tier1
	}
	for _, rule := range s.rules {
		if rule.pattern.MatchString(candidate) {
			return rule.tier
		}
	}
	return record.Tier3
}

// relevance measures the token overlap between the candidate and the recent
// conversation. With no context available it returns a neutral 0.5.
func relevance(candidate string, turns []string) float64 {
	if len(turns) == 0 {
		return 0.5
	}
	cand := text.TokenSet(candidate, 2)
	if len(cand) == 0 {
		return 0
	}
	ctx := make(map[string]struct{})
	for _, turn := range turns {
		for tok := range text.TokenSet(turn, 2) {
			ctx[tok] = struct{}{}
		}
	}
	hits := 0
	for tok := range cand {
		if _, ok := ctx[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(cand))
}

// density is the proportion of content-bearing tokens: numbers, tokens
// carrying inner capitals or leading capitals mid-sentence, and non-stop
// words of three or more runes.
func density(candidate string) float64 {
	tokens := strings.Fields(candidate)
	if len(tokens) == 0 {
		return 0
	}
	content := 0
	for _, raw := range tokens {
		tok := strings.TrimFunc(raw, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if tok == "" {
			continue
		}
		lower := strings.ToLower(tok)
		switch {
		case strings.ContainsFunc(tok, unicode.IsDigit):
			content++
		case len([]rune(lower)) >= 3 && !text.IsStopWord(lower):
			content++
		}
	}
	return clamp01(float64(content) / float64(len(tokens)))
}

// clarity rates well-formedness: a readable length band, a sane ratio of
// letters, and not shouting.
func clarity(candidate string) float64 {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return 0
	}
	words := len(strings.Fields(trimmed))

	score := 1.0
	switch {
	case words < 3:
		score *= 0.5
	case words > 40:
		score *= 0.6
	}

	letters, upper, total := 0, 0, 0
	for _, r := range trimmed {
		total++
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	if ratio := float64(letters) / float64(total); ratio < 0.5 {
		score *= 0.6
	}
	if float64(upper)/float64(letters) > 0.7 {
		score *= 0.5
	}
	return clamp01(score)
}

// freshness decays linearly from 1 to 0 across the freshness window.
func freshness(observedAt, now time.Time) float64 {
	if observedAt.IsZero() || now.IsZero() || !now.After(observedAt) {
		return 1
	}
	age := now.Sub(observedAt)
	if age >= freshnessWindow {
		return 0
	}
	return 1 - float64(age)/float64(freshnessWindow)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
