// Package capture turns conversation observations into stored memory
// records. The pipeline runs redaction, quality scoring, and dedup before
// any write; the service feeds the pipeline from a bounded inbox with
// bounded retries. Passive capture fails silently, explicit saves surface
// their errors.
package capture

import (
	"time"

	"github.com/mnemod/mnemod/internal/record"
)

// Source marks how an observation entered the engine.
type Source string

const (
	// SourcePassive marks observations harvested from conversation flow.
	// They must clear the quality threshold for their tier.
	SourcePassive Source = "passive"

	// SourceExplicit marks owner-requested saves. They skip the quality
	// gate and pin a high priority.
	SourceExplicit Source = "explicit"
)

// DefaultExplicitPriority is assigned to explicit saves that do not carry
// their own priority.
const DefaultExplicitPriority = 0.9

// explicitConfidence reflects that the owner asked for the save directly.
const explicitConfidence = 0.95

// Observation is one candidate memory entering the pipeline.
type Observation struct {
	UserID   string
	ThreadID string
	Content  string
	Source   Source

	// Priority overrides the derived priority when in (0, 1]. Only
	// explicit saves may pin it.
	Priority float64

	// RecentTurns is the surrounding conversation, newest last. It feeds
	// the relevance signal of the quality score.
	RecentTurns []string

	// ObservedAt is when the content was seen. Zero counts as now.
	ObservedAt time.Time
}

// Outcome is the terminal state of one observation.
type Outcome string

const (
	// OutcomeInserted means a new record was written.
	OutcomeInserted Outcome = "inserted"

	// OutcomeSuperseded means the observation folded into an existing
	// record.
	OutcomeSuperseded Outcome = "superseded"

	// OutcomeRejected means the observation was invalid: no user, empty
	// content, or nothing left after redaction.
	OutcomeRejected Outcome = "rejected"

	// OutcomeDropped means a passive observation scored below the storage
	// threshold for its tier.
	OutcomeDropped Outcome = "dropped"
)

// ProcessResult reports what the pipeline did with one observation.
type ProcessResult struct {
	Outcome Outcome
	Record  *record.Record
	Quality float64

	// Redactions tallies distinct redacted values per detector kind.
	Redactions map[string]int
}
