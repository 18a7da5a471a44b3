// Package redact strips personally identifying information from text before
// it is stored or logged. Detection is a data-driven ordered table of regex
// detectors; each sensitive value is replaced by a stable placeholder token
// and the mapping is returned so the owning user can reconstitute content
// later.
package redact

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// Detector matches one kind of sensitive value. Detectors run in table
// order, so broader numeric patterns (phone) must come after the more
// specific ones they could swallow (card, national ID, IP).
type Detector struct {
	// Kind names the category, e.g. "email".
	Kind string

	// Placeholder is the token body without brackets, e.g. "EMAIL_REDACTED".
	// The first distinct value of a kind becomes [EMAIL_REDACTED], the
	// second [EMAIL_REDACTED_2], and so on.
	Placeholder string

	// Pattern matches the sensitive value. If Group is zero the whole
	// match is replaced, otherwise only that capture group.
	Pattern *regexp.Regexp
	Group   int
}

// DefaultDetectors returns the built-in detector table: email, API-key and
// bearer-shaped tokens, payment card, national ID, IP address, and phone.
func DefaultDetectors() []Detector {
	return []Detector{
		{
			Kind:        "email",
			Placeholder: "EMAIL_REDACTED",
			Pattern:     regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
		},
		{
			Kind:        "token",
			Placeholder: "TOKEN_REDACTED",
			Pattern:     regexp.MustCompile(`\b(?:sk-ant-[A-Za-z0-9-]{16,}|sk-[A-Za-z0-9]{16,}|(?:ghp_|gho_|ghs_|github_pat_)[A-Za-z0-9_]{16,}|AKIA[A-Z0-9]{16}|xox[bp]-[0-9]+-[A-Za-z0-9-]+)`),
		},
		{
			Kind:        "token",
			Placeholder: "TOKEN_REDACTED",
			Pattern:     regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]{16,}`),
		},
		{
			Kind:        "token",
			Placeholder: "TOKEN_REDACTED",
			Pattern:     regexp.MustCompile(`(?i)\bapi[_-]?key\s*[:=]\s*(\S{8,})`),
			Group:       1,
		},
		{
			Kind:        "card",
			Placeholder: "CARD_REDACTED",
			Pattern:     regexp.MustCompile(`\b(?:\d{4}[ -]?){3}\d{1,4}\b`),
		},
		{
			Kind:        "national_id",
			Placeholder: "ID_REDACTED",
			Pattern:     regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		},
		{
			Kind:        "ip",
			Placeholder: "IP_REDACTED",
			Pattern:     regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		},
		{
			Kind:        "phone",
			Placeholder: "PHONE_REDACTED",
			Pattern:     regexp.MustCompile(`\+\d{1,3}(?:[ .-]?\d{2,4}){2,4}\b`),
		},
		{
			Kind:        "phone",
			Placeholder: "PHONE_REDACTED",
			Pattern:     regexp.MustCompile(`(?:\+\d{1,2}[ .-]?)?(?:\(\d{3}\)|\b\d{3})[ .-]?\d{3}[ .-]?\d{4}\b`),
		},
	}
}

// placeholderToken matches any token the redactor emits. Detectors must
// never match these, which is what makes Redact idempotent.
var placeholderToken = regexp.MustCompile(`\[[A-Z][A-Z_]*_REDACTED(?:_\d+)?\]`)

// Result is the outcome of one Redact call.
type Result struct {
	// Text is the input with every detected value replaced by its token.
	Text string

	// Map records placeholder token -> original value for reconstitution.
	// Empty when nothing was detected.
	Map map[string]string

	// Counts tallies distinct redacted values per detector kind.
	Counts map[string]int
}

// Redactor applies the detector table plus registered literal secrets.
// All methods are safe for concurrent use.
type Redactor struct {
	mu        sync.RWMutex
	detectors []Detector
	literals  []string
}

// NewRedactor creates a Redactor. With no arguments it uses
// DefaultDetectors; passing detectors replaces the table entirely.
func NewRedactor(detectors ...Detector) *Redactor {
	if len(detectors) == 0 {
		detectors = DefaultDetectors()
	}
	return &Redactor{detectors: detectors}
}

// AddLiteral registers a literal secret value (for example a configured
// auth token) that is replaced on sight. Empty strings are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// Redact replaces every detected sensitive value in text with a placeholder
// token and returns the redacted text plus the token map. The same value
// always maps to the same token within one call; a second distinct value of
// the same kind gets an indexed token. Redact never fails: text with no
// matches passes through with an empty map, and re-redacting already
// redacted text is a no-op.
func (r *Redactor) Redact(text string) Result {
	if text == "" {
		return Result{Text: text}
	}

	r.mu.RLock()
	detectors := r.detectors
	literals := r.literals
	r.mu.RUnlock()

	tokens := make(map[string]string)  // value -> token
	counts := make(map[string]int)     // placeholder base -> distinct values
	mapping := make(map[string]string) // token -> value
	kinds := make(map[string]int)      // detector kind -> distinct values

	assign := func(kind, placeholder, value string) string {
		if tok, ok := tokens[value]; ok {
			return tok
		}
		counts[placeholder]++
		kinds[kind]++
		tok := formatToken(placeholder, counts[placeholder])
		tokens[value] = tok
		mapping[tok] = value
		return tok
	}

	for _, d := range detectors {
		kind := d.Kind
		text = applyDetector(text, d, func(placeholder, value string) string {
			return assign(kind, placeholder, value)
		})
	}
	for _, lit := range literals {
		if strings.Contains(text, lit) {
			tok := assign("secret", "SECRET_REDACTED", lit)
			text = strings.ReplaceAll(text, lit, tok)
		}
	}

	if len(mapping) == 0 {
		mapping = nil
	}
	if len(kinds) == 0 {
		kinds = nil
	}
	return Result{Text: text, Map: mapping, Counts: kinds}
}

// Scrub is the logging variant: every detected value collapses to its base
// placeholder with no indexing and no map. Used by Handler so sensitive
// values never reach log output.
func (r *Redactor) Scrub(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	detectors := r.detectors
	literals := r.literals
	r.mu.RUnlock()

	for _, d := range detectors {
		base := d.Placeholder
		s = applyDetector(s, d, func(placeholder, _ string) string {
			return formatToken(base, 1)
		})
	}
	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, formatToken("SECRET_REDACTED", 1))
	}
	return s
}

// OnlyPlaceholders reports whether text carries no content beyond
// placeholder tokens, whitespace, and punctuation. Such content is rejected
// at the write boundary: there is no fact left worth storing.
func OnlyPlaceholders(text string) bool {
	stripped := placeholderToken.ReplaceAllString(text, "")
	return !strings.ContainsFunc(stripped, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	})
}

func formatToken(placeholder string, n int) string {
	if n <= 1 {
		return "[" + placeholder + "]"
	}
	return fmt.Sprintf("[%s_%d]", placeholder, n)
}

// applyDetector rewrites text replacing each detector match (or its capture
// group) with the token chosen by assign.
func applyDetector(text string, d Detector, assign func(placeholder, value string) string) string {
	matches := d.Pattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if d.Group > 0 && 2*d.Group+1 < len(m) && m[2*d.Group] >= 0 {
			start, end = m[2*d.Group], m[2*d.Group+1]
		}
		if start < last {
			continue
		}
		value := text[start:end]
		// A match that already carries a placeholder token is the output
		// of a previous pass. Leaving it alone keeps Redact idempotent.
		if placeholderToken.MatchString(value) {
			continue
		}
		b.WriteString(text[last:start])
		b.WriteString(assign(d.Placeholder, value))
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}
