package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fyrsmithlabs/vigild/internal/event"
)

// Schema for the vigild event store. Events are append-only: there is no
// UPDATE or DELETE path anywhere in this package.
const schema = `
CREATE TABLE IF NOT EXISTS events (
    seq             INTEGER PRIMARY KEY AUTOINCREMENT,
    id              TEXT NOT NULL UNIQUE,
    type            TEXT NOT NULL,
    category        TEXT NOT NULL,
    timestamp_ns    INTEGER NOT NULL,
    confidence      REAL NOT NULL,
    severity        TEXT NOT NULL,
    source_ref      TEXT,
    pattern_name    TEXT,
    metadata        TEXT,
    constituents    TEXT,
    persisted_at_ns INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp_ns, seq);
`

// SQLiteStore is the durable Store backend. A mutex serializes appends
// for the single-writer discipline; reads run concurrently and observe a
// consistent prefix thanks to WAL mode.
type SQLiteStore struct {
	db *sql.DB

	writeMu sync.Mutex
	now     func() time.Time
}

// OpenSQLite opens or creates the SQLite database at the given path and
// applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Append implements Store. Duplicate IDs are detected via the UNIQUE
// constraint and reported as Duplicate without mutation.
func (s *SQLiteStore) Append(ctx context.Context, ev event.Event) (AppendResult, error) {
	if err := ev.Validate(); err != nil {
		return Stored, err
	}

	var metadata, constituents []byte
	var err error
	if len(ev.Metadata) > 0 {
		if metadata, err = json.Marshal(ev.Metadata); err != nil {
			return Stored, fmt.Errorf("marshal metadata: %w", err)
		}
	}
	if len(ev.ConstituentIDs) > 0 {
		if constituents, err = json.Marshal(ev.ConstituentIDs); err != nil {
			return Stored, fmt.Errorf("marshal constituents: %w", err)
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, type, category, timestamp_ns, confidence, severity,
		                    source_ref, pattern_name, metadata, constituents, persisted_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		ev.ID, string(ev.Type), string(ev.Category), ev.Timestamp.UnixNano(),
		ev.Confidence, string(ev.Severity), ev.SourceRef, ev.PatternName,
		nullable(metadata), nullable(constituents), s.now().UTC().UnixNano(),
	)
	if err != nil {
		return Stored, fmt.Errorf("%w: insert event: %v", ErrUnavailable, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return Stored, fmt.Errorf("%w: rows affected: %v", ErrUnavailable, err)
	}
	if affected == 0 {
		return Duplicate, nil
	}
	return Stored, nil
}

// Range implements Store.
func (s *SQLiteStore) Range(ctx context.Context, start, end time.Time) ([]event.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, type, category, timestamp_ns, confidence, severity,
		       source_ref, pattern_name, metadata, constituents, persisted_at_ns
		FROM events
		WHERE timestamp_ns >= ? AND timestamp_ns <= ?
		ORDER BY timestamp_ns, seq`,
		start.UnixNano(), end.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query range: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var records []event.Record
	for rows.Next() {
		var (
			rec          event.Record
			tsNs, perNs  int64
			typ, cat     string
			sev          string
			sourceRef    sql.NullString
			patternName  sql.NullString
			metadata     sql.NullString
			constituents sql.NullString
		)
		if err := rows.Scan(&rec.Seq, &rec.ID, &typ, &cat, &tsNs, &rec.Confidence,
			&sev, &sourceRef, &patternName, &metadata, &constituents, &perNs); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		rec.Type = event.Type(typ)
		rec.Category = event.Category(cat)
		rec.Severity = event.Severity(sev)
		rec.Timestamp = time.Unix(0, tsNs).UTC()
		rec.PersistedAt = time.Unix(0, perNs).UTC()
		rec.SourceRef = sourceRef.String
		rec.PatternName = patternName.String
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for %s: %w", rec.ID, err)
			}
		}
		if constituents.Valid && constituents.String != "" {
			if err := json.Unmarshal([]byte(constituents.String), &rec.ConstituentIDs); err != nil {
				return nil, fmt.Errorf("unmarshal constituents for %s: %w", rec.ID, err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate rows: %v", ErrUnavailable, err)
	}
	return records, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
