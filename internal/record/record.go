// Package record defines the memory record entity shared by the capture,
// storage, and recall layers: tiers, validation rules, and the supersedence
// audit fields.
package record

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// Tier buckets records by durability. Higher tiers live longer and sort
// earlier during recall.
type Tier string

const (
	// Tier1 holds cross-thread or explicitly saved facts.
	Tier1 Tier = "tier1"

	// Tier2 holds stable preferences, goals, and constraints.
	Tier2 Tier = "tier2"

	// Tier3 holds session context and miscellany.
	Tier3 Tier = "tier3"
)

// Valid reports whether t is one of the three known tiers.
func (t Tier) Valid() bool {
	switch t {
	case Tier1, Tier2, Tier3:
		return true
	}
	return false
}

// Rank returns the sort rank of the tier. Lower is more durable, so Tier1
// ranks 1 and Tier3 ranks 3. Unknown tiers rank after all known ones.
func (t Tier) Rank() int {
	switch t {
	case Tier1:
		return 1
	case Tier2:
		return 2
	case Tier3:
		return 3
	}
	return 4
}

// ParseTier converts a stored or user-supplied tier string.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", ErrInvalidTier
	}
	return t, nil
}

// Upgrade returns the more durable of the two tiers. Supersedence may raise
// a record's tier but never lowers it.
func Upgrade(current, candidate Tier) Tier {
	if candidate.Valid() && candidate.Rank() < current.Rank() {
		return candidate
	}
	return current
}

// MaxContentLen is the default cap on stored content, in runes. Longer
// content is truncated with an ellipsis marker rather than rejected.
const MaxContentLen = 1024

// ellipsis marks truncated content.
const ellipsis = "…"

// Record is one remembered fact. Content is always the redacted form; the
// original sensitive values live only in RedactionMap. ThreadSet and Repeats
// form the supersedence audit trail: every thread that contributed an
// equivalent observation, and their distinct count.
type Record struct {
	ID             string
	UserID         string
	ThreadID       string
	SourceThreadID string
	Content        string
	RedactionMap   map[string]string
	Tier           Tier
	Priority       float64
	Confidence     float64
	Repeats        int
	ThreadSet      []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastSeenAt     time.Time
	DeletedAt      *time.Time
}

// Deleted reports whether the record has been soft-deleted.
func (r *Record) Deleted() bool { return r.DeletedAt != nil }

// Clone returns a deep copy. Stores and caches hand out clones so callers
// cannot mutate shared state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.ThreadSet = slices.Clone(r.ThreadSet)
	if r.RedactionMap != nil {
		cp.RedactionMap = make(map[string]string, len(r.RedactionMap))
		for k, v := range r.RedactionMap {
			cp.RedactionMap[k] = v
		}
	}
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
}

// MergeThread records that threadID contributed an equivalent observation.
// The set stays sorted and Repeats tracks its distinct size. Returns true
// when the thread was not seen before.
func (r *Record) MergeThread(threadID string) bool {
	if threadID == "" {
		return false
	}
	if i, found := slices.BinarySearch(r.ThreadSet, threadID); !found {
		r.ThreadSet = slices.Insert(r.ThreadSet, i, threadID)
		r.Repeats = len(r.ThreadSet)
		return true
	}
	r.Repeats = len(r.ThreadSet)
	return false
}

// TruncateContent caps s at max runes, appending an ellipsis marker when
// anything was cut. A max of zero or less applies MaxContentLen.
func TruncateContent(s string, max int) string {
	if max <= 0 {
		max = MaxContentLen
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + ellipsis
}

// ValidateRange checks that priority and confidence sit inside [0, 1].
func ValidateRange(priority, confidence float64) error {
	if priority < 0 || priority > 1 {
		return ErrPriorityRange
	}
	if confidence < 0 || confidence > 1 {
		return ErrConfidenceRange
	}
	return nil
}

// ValidateNew checks the invariants every record must satisfy before its
// first write. Content is expected to be redacted already.
func ValidateNew(r *Record) error {
	if r.UserID == "" {
		return ErrMissingUser
	}
	if strings.TrimSpace(r.Content) == "" {
		return ErrEmptyContent
	}
	if !r.Tier.Valid() {
		return ErrInvalidTier
	}
	return ValidateRange(r.Priority, r.Confidence)
}
