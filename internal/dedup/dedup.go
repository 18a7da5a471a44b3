// Package dedup decides whether a candidate memory duplicates one the user
// already has. Detection runs in two passes: structural topic equality
// first (a changed value for the same topic is still the same fact), then a
// blended token-overlap fallback.
package dedup

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mnemod/mnemod/internal/record"
	"github.com/mnemod/mnemod/internal/text"
)

// DefaultThreshold is the minimum blended similarity that counts as a
// duplicate when the caller does not supply one.
const DefaultThreshold = 0.75

// DefaultWindow is how many of the user's most recent records are compared.
const DefaultWindow = 50

// topicFallbackTokens caps the normalized-key fallback length.
const topicFallbackTokens = 8

// topicPattern extracts the stable subject of a statement. The capture
// group is the subject; the value half is deliberately ignored so that
// "my favorite color is red" and "my favorite color is blue" share a topic.
// Patterns without a capture group key the whole statement frame: every
// "call me X" is about what to call the user, whatever X is.
type topicPattern struct {
	pattern *regexp.Regexp
	prefix  string
}

var topicPatterns = []topicPattern{
	{regexp.MustCompile(`(?i)\bmy\s+([\pL\pN' -]{2,40}?)\s+(?:is|are|was|were|should|must)\b`), "my "},
	{regexp.MustCompile(`(?i)\bi\s+(?:prefer|like|love|hate)\b`), "preference"},
	{regexp.MustCompile(`(?i)\bi(?:'m|\s+am)\s+(?:an?|the)\b`), "identity"},
	{regexp.MustCompile(`(?i)\bcall\s+me\b`), "call me"},
}

// ExtractTopic returns the normalized structural topic of the candidate,
// when one of the subject patterns matches.
func ExtractTopic(candidate string) (string, bool) {
	for _, tp := range topicPatterns {
		m := tp.pattern.FindStringSubmatch(candidate)
		if m == nil {
			continue
		}
		if len(m) < 2 {
			return tp.prefix, true
		}
		subject := text.Normalize(m[1])
		if subject == "" {
			continue
		}
		return tp.prefix + subject, true
	}
	return "", false
}

// TopicKey returns the tracker key for the candidate: the structural topic
// when present, otherwise a normalized keyword key. Empty when the text
// carries no usable tokens.
func TopicKey(candidate string) string {
	if topic, ok := ExtractTopic(candidate); ok {
		return topic
	}
	kws := text.Keywords(candidate, 3)
	if len(kws) == 0 {
		return ""
	}
	if len(kws) > topicFallbackTokens {
		kws = kws[:topicFallbackTokens]
	}
	return strings.Join(kws, " ")
}

// Similarity blends token overlap (70%) with length ratio (30%). Exact
// normalized equality scores 1.0 and containment 0.9, so trivially
// rephrased duplicates cannot slip under the threshold.
func Similarity(a, b string) float64 {
	na, nb := text.Normalize(a), text.Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.9
	}

	overlap := text.Jaccard(text.TokenSet(a, 2), text.TokenSet(b, 2))

	la, lb := utf8.RuneCountInString(na), utf8.RuneCountInString(nb)
	ratio := float64(min(la, lb)) / float64(max(la, lb))

	return 0.7*overlap + 0.3*ratio
}

// Lister is the slice of the store the engine needs: the user's most recent
// live records, newest first.
type Lister interface {
	ListRecent(ctx context.Context, userID string, limit int) ([]*record.Record, error)
}

// Match is a detected duplicate.
type Match struct {
	Record *record.Record
	Score  float64

	// ByTopic marks a structural topic match, which counts as a duplicate
	// regardless of textual similarity.
	ByTopic bool
}

// Engine finds the existing record a candidate should supersede.
type Engine struct {
	store     Lister
	window    int
	threshold float64
}

// NewEngine creates an Engine over store. Non-positive window or threshold
// fall back to the defaults.
func NewEngine(store Lister, window int, threshold float64) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Engine{store: store, window: window, threshold: threshold}
}

// FindSimilar returns the best duplicate of candidate among the user's
// recent records, or nil when nothing clears the threshold. A threshold of
// zero or less uses the engine default.
func (e *Engine) FindSimilar(ctx context.Context, userID, candidate string, threshold float64) (*Match, error) {
	if threshold <= 0 {
		threshold = e.threshold
	}

	recent, err := e.store.ListRecent(ctx, userID, e.window)
	if err != nil {
		return nil, fmt.Errorf("dedup: list recent records: %w", err)
	}

	if topic, ok := ExtractTopic(candidate); ok {
		for _, r := range recent {
			if rt, rok := ExtractTopic(r.Content); rok && rt == topic {
				return &Match{Record: r, Score: 1, ByTopic: true}, nil
			}
		}
	}

	var best *Match
	for _, r := range recent {
		s := Similarity(candidate, r.Content)
		if s < threshold {
			continue
		}
		if best == nil || s > best.Score {
			best = &Match{Record: r, Score: s}
		}
	}
	return best, nil
}
