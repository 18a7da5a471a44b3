package store

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS records (
		id               TEXT PRIMARY KEY,
		user_id          TEXT    NOT NULL,
		thread_id        TEXT    NOT NULL DEFAULT '',
		source_thread_id TEXT    NOT NULL DEFAULT '',
		content          TEXT    NOT NULL,
		redaction_map    TEXT    NOT NULL DEFAULT '{}',
		tier             TEXT    NOT NULL DEFAULT 'tier3',
		priority         REAL    NOT NULL DEFAULT 0,
		confidence       REAL    NOT NULL DEFAULT 0,
		repeats          INTEGER NOT NULL DEFAULT 1,
		thread_set       TEXT    NOT NULL DEFAULT '[]',
		created_at       TEXT    NOT NULL,
		updated_at       TEXT    NOT NULL,
		last_seen_at     TEXT    NOT NULL,
		deleted_at       TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_records_user_thread ON records(user_id, thread_id)`,

	`CREATE INDEX IF NOT EXISTS idx_records_user_tier_updated ON records(user_id, tier, updated_at DESC)`,

	`CREATE INDEX IF NOT EXISTS idx_records_priority ON records(priority DESC)`,

	`CREATE INDEX IF NOT EXISTS idx_records_created ON records(created_at)`,

	`CREATE INDEX IF NOT EXISTS idx_records_last_seen ON records(last_seen_at)`,

	`CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
		content,
		content=records,
		content_rowid=rowid
	)`,

	`CREATE TRIGGER IF NOT EXISTS records_ai AFTER INSERT ON records BEGIN
		INSERT INTO records_fts(rowid, content) VALUES (new.rowid, new.content);
	END`,

	`CREATE TRIGGER IF NOT EXISTS records_ad AFTER DELETE ON records BEGIN
		INSERT INTO records_fts(records_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
	END`,

	`CREATE TRIGGER IF NOT EXISTS records_au AFTER UPDATE OF content ON records BEGIN
		INSERT INTO records_fts(records_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
		INSERT INTO records_fts(rowid, content) VALUES (new.rowid, new.content);
	END`,
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(db *sql.DB) error {
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("store: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("store: record schema version: %w", err)
	}

	return nil
}
