package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mnemod/mnemod/internal/record"
	"github.com/mnemod/mnemod/internal/text"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// Get returns the live record by ID, owner-checked against userID.
func (d *DB) Get(ctx context.Context, userID, id string) (*record.Record, error) {
	row := d.read.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, record.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get record %s: %w", id, err)
	}
	if rec.UserID != userID {
		return nil, record.ErrOwnerMismatch
	}
	if rec.Deleted() {
		return nil, record.ErrNotFound
	}
	return rec, nil
}

// List returns the user's records, newest update first.
func (d *DB) List(ctx context.Context, q ListQuery) ([]*record.Record, error) {
	if q.UserID == "" {
		return nil, record.ErrMissingUser
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var (
		where = []string{"user_id = ?"}
		args  = []any{q.UserID}
	)
	if !q.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if q.ThreadID != "" {
		where = append(where, "thread_id = ?")
		args = append(args, q.ThreadID)
	}
	if q.Tier != "" {
		if !q.Tier.Valid() {
			return nil, record.ErrInvalidTier
		}
		where = append(where, "tier = ?")
		args = append(args, string(q.Tier))
	}
	args = append(args, limit)

	rows, err := d.read.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE "+strings.Join(where, " AND ")+
			" ORDER BY updated_at DESC LIMIT ?",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// ListRecent returns the user's most recently updated live records, newest
// first. This is the dedup comparison window.
func (d *DB) ListRecent(ctx context.Context, userID string, limit int) ([]*record.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.read.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE user_id = ? AND deleted_at IS NULL ORDER BY updated_at DESC LIMIT ?",
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list recent records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// Search runs a full-text query over the user's live records, best match
// first.
func (d *DB) Search(ctx context.Context, userID, query string, limit int) ([]*record.Record, error) {
	match := ftsQuery(query)
	if match == "" || limit <= 0 {
		return nil, nil
	}

	rows, err := d.read.QueryContext(ctx, `
		SELECT `+prefixColumns("r")+`
		FROM records_fts
		JOIN records r ON r.rowid = records_fts.rowid
		WHERE records_fts MATCH ? AND r.user_id = ? AND r.deleted_at IS NULL
		ORDER BY rank
		LIMIT ?`,
		match, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: search records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// CountByTier reports the user's live record counts per tier.
func (d *DB) CountByTier(ctx context.Context, userID string) (map[record.Tier]int64, error) {
	if userID == "" {
		return nil, record.ErrMissingUser
	}
	rows, err := d.read.QueryContext(ctx,
		"SELECT tier, COUNT(*) FROM records WHERE user_id = ? AND deleted_at IS NULL GROUP BY tier",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: count user records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[record.Tier]int64)
	for rows.Next() {
		var (
			tier  string
			count int64
		)
		if err := rows.Scan(&tier, &count); err != nil {
			return nil, fmt.Errorf("store: scan user tier count: %w", err)
		}
		counts[record.Tier(tier)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate user tier counts: %w", err)
	}
	return counts, nil
}

// CountExpired reports how many records SweepExpired would remove at now.
func (d *DB) CountExpired(ctx context.Context, now time.Time, ttls map[record.Tier]time.Duration) (int64, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var total int64
	for tier, ttl := range ttls {
		if ttl <= 0 {
			continue
		}
		var n int64
		err := d.read.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM records WHERE deleted_at IS NULL AND tier = ? AND last_seen_at < ?",
			string(tier), formatTime(now.Add(-ttl)),
		).Scan(&n)
		if err != nil {
			return total, fmt.Errorf("store: count expired tier %s: %w", tier, err)
		}
		total += n
	}
	return total, nil
}

// CountPurgeable reports how many rows PurgeDeleted would remove at cutoff.
func (d *DB) CountPurgeable(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := d.read.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE deleted_at IS NOT NULL AND deleted_at < ?",
		formatTime(cutoff),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count purgeable: %w", err)
	}
	return n, nil
}

// Stats reports live record counts per tier plus totals.
func (d *DB) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByTier: make(map[record.Tier]int64)}

	rows, err := d.read.QueryContext(ctx,
		"SELECT tier, COUNT(*) FROM records WHERE deleted_at IS NULL GROUP BY tier")
	if err != nil {
		return stats, fmt.Errorf("store: count live records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			tier  string
			count int64
		)
		if err := rows.Scan(&tier, &count); err != nil {
			return stats, fmt.Errorf("store: scan tier count: %w", err)
		}
		stats.ByTier[record.Tier(tier)] = count
		stats.Live += count
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("store: iterate tier counts: %w", err)
	}

	if err := d.read.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE deleted_at IS NOT NULL").Scan(&stats.Deleted); err != nil {
		return stats, fmt.Errorf("store: count deleted records: %w", err)
	}
	return stats, nil
}

// ftsQuery quotes each token so user text cannot inject FTS5 operators.
func ftsQuery(query string) string {
	tokens := text.Tokens(query)
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + tok + `"`
	}
	return strings.Join(quoted, " ")
}

// prefixColumns qualifies recordColumns with a table alias for joins.
func prefixColumns(alias string) string {
	cols := strings.Split(recordColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
