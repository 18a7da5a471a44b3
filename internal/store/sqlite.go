package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mnemod/mnemod/internal/record"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const defaultBusyTimeout = 5 * time.Second

// Options configures Open.
type Options struct {
	// Path is the database file. Parent directories are created.
	Path string

	// BusyTimeout is the SQLite busy handler timeout. Zero applies the
	// default of five seconds.
	BusyTimeout time.Duration

	// ReadConns bounds the read pool. Zero picks from GOMAXPROCS.
	ReadConns int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DB is the SQLite-backed Store. Writes flow through a single connection
// (SQLite serializes them anyway); reads get their own pool so WAL readers
// never queue behind a writer.
type DB struct {
	write  *sql.DB
	read   *sql.DB
	logger *slog.Logger
}

// Compile-time check.
var _ Store = (*DB)(nil)

// Open opens (creating if needed) the database at opts.Path, applies WAL
// mode and the busy timeout, and migrates the schema.
func Open(opts Options) (*DB, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = defaultBusyTimeout
	}
	if opts.ReadConns <= 0 {
		opts.ReadConns = max(4, runtime.GOMAXPROCS(0))
	}

	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("store: create directory %s: %w", dir, err)
		}
	}

	write, err := openHandle(opts.Path, opts.BusyTimeout)
	if err != nil {
		return nil, err
	}
	write.SetMaxOpenConns(1)

	if err := migrate(write); err != nil {
		_ = write.Close()
		return nil, err
	}

	read, err := openHandle(opts.Path, opts.BusyTimeout)
	if err != nil {
		_ = write.Close()
		return nil, err
	}
	read.SetMaxOpenConns(opts.ReadConns)

	return &DB{write: write, read: read, logger: opts.Logger}, nil
}

func openHandle(path string, busyTimeout time.Duration) (*sql.DB, error) {
	// Pragmas ride on the DSN so every pooled connection gets them, not
	// just the first one opened.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)",
		path, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}
	return db, nil
}

// Close releases both database handles.
func (d *DB) Close() error {
	rerr := d.read.Close()
	werr := d.write.Close()
	if werr != nil {
		return fmt.Errorf("store: close write handle: %w", werr)
	}
	if rerr != nil {
		return fmt.Errorf("store: close read handle: %w", rerr)
	}
	return nil
}

// NewID returns a fresh time-sortable record ID.
func NewID() string {
	return ulid.Make().String()
}

// recordColumns is the canonical column list; scanRecord depends on its
// order.
const recordColumns = `id, user_id, thread_id, source_thread_id, content, redaction_map,
	tier, priority, confidence, repeats, thread_set,
	created_at, updated_at, last_seen_at, deleted_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*record.Record, error) {
	var (
		rec        record.Record
		tier       string
		redactJSON string
		threadJSON string
		createdAt  string
		updatedAt  string
		lastSeenAt string
		deletedAt  sql.NullString
	)

	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.ThreadID, &rec.SourceThreadID, &rec.Content, &redactJSON,
		&tier, &rec.Priority, &rec.Confidence, &rec.Repeats, &threadJSON,
		&createdAt, &updatedAt, &lastSeenAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Tier = record.Tier(tier)

	if redactJSON != "" && redactJSON != "{}" && redactJSON != "null" {
		if err := json.Unmarshal([]byte(redactJSON), &rec.RedactionMap); err != nil {
			return nil, fmt.Errorf("store: unmarshal redaction map: %w", err)
		}
	}
	if threadJSON != "" && threadJSON != "[]" && threadJSON != "null" {
		if err := json.Unmarshal([]byte(threadJSON), &rec.ThreadSet); err != nil {
			return nil, fmt.Errorf("store: unmarshal thread set: %w", err)
		}
	}

	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if rec.LastSeenAt, err = parseTime(lastSeenAt); err != nil {
		return nil, err
	}
	if deletedAt.Valid && deletedAt.String != "" {
		t, err := parseTime(deletedAt.String)
		if err != nil {
			return nil, err
		}
		rec.DeletedAt = &t
	}

	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]*record.Record, error) {
	var recs []*record.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate records: %w", err)
	}
	return recs, nil
}

// timeLayout keeps a fixed fractional width so that string comparison on
// timestamp columns matches chronological order. RFC3339Nano drops trailing
// zeros and would not.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func marshalMap(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("store: marshal redaction map: %w", err)
	}
	return string(b), nil
}

func marshalThreads(set []string) (string, error) {
	if len(set) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(set)
	if err != nil {
		return "", fmt.Errorf("store: marshal thread set: %w", err)
	}
	return string(b), nil
}
