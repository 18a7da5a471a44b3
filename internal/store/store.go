// Package store persists memory records. The contract lives here; the
// SQLite implementation sits alongside in this package and is the only
// backend. Implementations must be safe for concurrent use and must never
// return soft-deleted records unless the caller asks for them.
package store

import (
	"context"
	"time"

	"github.com/mnemod/mnemod/internal/record"
)

// Store is the persistence contract for memory records.
type Store interface {
	// Insert validates and writes a new record. Missing ID and timestamps
	// are filled in. Content longer than the cap is truncated, not
	// rejected.
	Insert(ctx context.Context, rec *record.Record) error

	// Supersede merges a new observation into an existing live record:
	// newest content wins, tier and priority only ever rise, the thread
	// set absorbs the contributing thread, and the audit counters advance.
	// Returns the merged record.
	Supersede(ctx context.Context, sup Supersedence) (*record.Record, error)

	// Get returns the record by ID, owner-checked against userID.
	Get(ctx context.Context, userID, id string) (*record.Record, error)

	// List returns the user's records, newest update first.
	List(ctx context.Context, q ListQuery) ([]*record.Record, error)

	// ListRecent returns the user's most recently updated live records,
	// newest first. This is the dedup comparison window.
	ListRecent(ctx context.Context, userID string, limit int) ([]*record.Record, error)

	// Search runs a full-text query over the user's live records.
	Search(ctx context.Context, userID, query string, limit int) ([]*record.Record, error)

	// Update applies an explicit owner edit with insert-grade validation.
	// Soft-deleted records are immutable and return ErrDeleted.
	Update(ctx context.Context, up Update) (*record.Record, error)

	// SoftDelete marks the record deleted. Reads stop returning it; the
	// row survives until the retention purge.
	SoftDelete(ctx context.Context, userID, id string, now time.Time) error

	// TouchLastSeen advances last_seen_at on the given records. Used by
	// recall after returning results.
	TouchLastSeen(ctx context.Context, ids []string, now time.Time) error

	// SweepExpired soft-deletes live records whose tier TTL has lapsed,
	// measured from last_seen_at. Returns the number of records expired.
	SweepExpired(ctx context.Context, now time.Time, ttls map[record.Tier]time.Duration) (int64, error)

	// PurgeDeleted hard-deletes rows soft-deleted before cutoff. Returns
	// the number of rows removed.
	PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error)

	// CountExpired reports how many records SweepExpired would remove at
	// now, without touching anything.
	CountExpired(ctx context.Context, now time.Time, ttls map[record.Tier]time.Duration) (int64, error)

	// CountPurgeable reports how many rows PurgeDeleted would remove at
	// cutoff, without touching anything.
	CountPurgeable(ctx context.Context, cutoff time.Time) (int64, error)

	// CountByTier reports the user's live record counts per tier.
	CountByTier(ctx context.Context, userID string) (map[record.Tier]int64, error)

	// Stats reports live record counts per tier plus totals.
	Stats(ctx context.Context) (Stats, error)

	// Close releases the underlying database handles.
	Close() error
}

// Supersedence carries one merge of a new observation into an existing
// record.
type Supersedence struct {
	ID           string
	UserID       string
	Content      string
	RedactionMap map[string]string
	Tier         record.Tier
	Priority     float64
	Confidence   float64
	ThreadID     string
	Now          time.Time
}

// Update is an explicit owner edit. Nil fields stay unchanged.
type Update struct {
	ID           string
	UserID       string
	Content      *string
	RedactionMap map[string]string
	Tier         *record.Tier
	Priority     *float64
	Confidence   *float64
	Now          time.Time
}

// ListQuery filters List.
type ListQuery struct {
	UserID         string
	ThreadID       string
	Tier           record.Tier
	IncludeDeleted bool
	Limit          int
}

// Stats summarizes the store for the status surface.
type Stats struct {
	Live    int64
	Deleted int64
	ByTier  map[record.Tier]int64
}
