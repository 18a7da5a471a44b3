package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mnemod/mnemod/internal/record"
)

// Insert validates and writes a new record.
func (d *DB) Insert(ctx context.Context, rec *record.Record) error {
	rec.Content = record.TruncateContent(rec.Content, 0)
	if err := record.ValidateNew(rec); err != nil {
		return err
	}

	if rec.ID == "" {
		rec.ID = NewID()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	if rec.LastSeenAt.IsZero() {
		rec.LastSeenAt = rec.CreatedAt
	}
	if rec.SourceThreadID == "" {
		rec.SourceThreadID = rec.ThreadID
	}
	rec.MergeThread(rec.ThreadID)
	if rec.Repeats < 1 {
		rec.Repeats = 1
	}

	redactJSON, err := marshalMap(rec.RedactionMap)
	if err != nil {
		return err
	}
	threadJSON, err := marshalThreads(rec.ThreadSet)
	if err != nil {
		return err
	}

	_, err = d.write.ExecContext(ctx, `
		INSERT INTO records (id, user_id, thread_id, source_thread_id, content, redaction_map,
			tier, priority, confidence, repeats, thread_set,
			created_at, updated_at, last_seen_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		rec.ID, rec.UserID, rec.ThreadID, rec.SourceThreadID, rec.Content, redactJSON,
		string(rec.Tier), rec.Priority, rec.Confidence, rec.Repeats, threadJSON,
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt), formatTime(rec.LastSeenAt),
	)
	if err != nil {
		return fmt.Errorf("store: insert record: %w", err)
	}
	return nil
}

// Supersede merges a new observation into an existing live record.
func (d *DB) Supersede(ctx context.Context, sup Supersedence) (*record.Record, error) {
	content := record.TruncateContent(sup.Content, 0)
	if strings.TrimSpace(content) == "" {
		return nil, record.ErrEmptyContent
	}
	if err := record.ValidateRange(sup.Priority, sup.Confidence); err != nil {
		return nil, err
	}
	now := sup.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := d.write.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin supersede: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := getForWrite(ctx, tx, sup.UserID, sup.ID)
	if err != nil {
		return nil, err
	}

	merged := existing.Clone()
	merged.Content = content
	merged.RedactionMap = sup.RedactionMap
	merged.Tier = record.Upgrade(existing.Tier, sup.Tier)
	merged.Priority = max(existing.Priority, sup.Priority)
	merged.Confidence = max(existing.Confidence, sup.Confidence)
	if sup.ThreadID != "" {
		merged.ThreadID = sup.ThreadID
	}
	merged.MergeThread(sup.ThreadID)
	if merged.Repeats < 1 {
		merged.Repeats = 1
	}
	merged.UpdatedAt = now
	merged.LastSeenAt = now

	redactJSON, err := marshalMap(merged.RedactionMap)
	if err != nil {
		return nil, err
	}
	threadJSON, err := marshalThreads(merged.ThreadSet)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE records
		SET content = ?, redaction_map = ?, tier = ?, priority = ?, confidence = ?,
			repeats = ?, thread_set = ?, thread_id = ?, updated_at = ?, last_seen_at = ?
		WHERE id = ?`,
		merged.Content, redactJSON, string(merged.Tier), merged.Priority, merged.Confidence,
		merged.Repeats, threadJSON, merged.ThreadID, formatTime(merged.UpdatedAt), formatTime(merged.LastSeenAt),
		merged.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: supersede record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit supersede: %w", err)
	}
	return merged, nil
}

// Update applies an explicit owner edit with insert-grade validation.
func (d *DB) Update(ctx context.Context, up Update) (*record.Record, error) {
	now := up.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := d.write.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := getForWrite(ctx, tx, up.UserID, up.ID)
	if err != nil {
		return nil, err
	}

	edited := existing.Clone()
	if up.Content != nil {
		edited.Content = record.TruncateContent(*up.Content, 0)
		if strings.TrimSpace(edited.Content) == "" {
			return nil, record.ErrEmptyContent
		}
		edited.RedactionMap = up.RedactionMap
	}
	if up.Tier != nil {
		if !up.Tier.Valid() {
			return nil, record.ErrInvalidTier
		}
		edited.Tier = *up.Tier
	}
	if up.Priority != nil {
		edited.Priority = *up.Priority
	}
	if up.Confidence != nil {
		edited.Confidence = *up.Confidence
	}
	if err := record.ValidateRange(edited.Priority, edited.Confidence); err != nil {
		return nil, err
	}
	edited.UpdatedAt = now

	redactJSON, err := marshalMap(edited.RedactionMap)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE records
		SET content = ?, redaction_map = ?, tier = ?, priority = ?, confidence = ?, updated_at = ?
		WHERE id = ?`,
		edited.Content, redactJSON, string(edited.Tier), edited.Priority, edited.Confidence,
		formatTime(edited.UpdatedAt), edited.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: update record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit update: %w", err)
	}
	return edited, nil
}

// SoftDelete marks the record deleted. Deleting an already deleted record
// is a no-op.
func (d *DB) SoftDelete(ctx context.Context, userID, id string, now time.Time) error {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := d.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := getForWrite(ctx, tx, userID, id)
	if errors.Is(err, record.ErrDeleted) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE records SET deleted_at = ? WHERE id = ?",
		formatTime(now), existing.ID,
	); err != nil {
		return fmt.Errorf("store: soft delete record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit delete: %w", err)
	}
	return nil
}

// TouchLastSeen advances last_seen_at on the given records.
func (d *DB) TouchLastSeen(ctx context.Context, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(ids)+1)
	args = append(args, formatTime(now))
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := d.write.ExecContext(ctx,
		"UPDATE records SET last_seen_at = ? WHERE id IN ("+placeholders+") AND deleted_at IS NULL",
		args...,
	)
	if err != nil {
		return fmt.Errorf("store: touch last seen: %w", err)
	}
	return nil
}

// SweepExpired soft-deletes live records whose tier TTL has lapsed.
func (d *DB) SweepExpired(ctx context.Context, now time.Time, ttls map[record.Tier]time.Duration) (int64, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var total int64
	for tier, ttl := range ttls {
		if ttl <= 0 {
			continue
		}
		cutoff := now.Add(-ttl)
		res, err := d.write.ExecContext(ctx, `
			UPDATE records SET deleted_at = ?
			WHERE deleted_at IS NULL AND tier = ? AND last_seen_at < ?`,
			formatTime(now), string(tier), formatTime(cutoff),
		)
		if err != nil {
			return total, fmt.Errorf("store: sweep tier %s: %w", tier, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("store: sweep rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

// PurgeDeleted hard-deletes rows soft-deleted before cutoff.
func (d *DB) PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.write.ExecContext(ctx,
		"DELETE FROM records WHERE deleted_at IS NOT NULL AND deleted_at < ?",
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("store: purge deleted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: purge rows affected: %w", err)
	}
	return n, nil
}

// getForWrite loads a record inside a write transaction and enforces the
// owner and liveness checks shared by every mutation.
func getForWrite(ctx context.Context, tx *sql.Tx, userID, id string) (*record.Record, error) {
	row := tx.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, record.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load record %s: %w", id, err)
	}
	if rec.UserID != userID {
		return nil, record.ErrOwnerMismatch
	}
	if rec.Deleted() {
		return nil, record.ErrDeleted
	}
	return rec, nil
}
