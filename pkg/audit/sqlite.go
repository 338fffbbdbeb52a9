package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements Store using SQLite for durable chain storage.
//
// The (scope_id, sequence_no) primary key enforces gapless uniqueness at
// the storage layer: a concurrent writer that lost the per-scope append
// race fails the insert instead of forking the chain.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a chain database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, &StoreError{Op: "init schema", Err: err}
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_entries (
		scope_id        TEXT NOT NULL,
		sequence_no     INTEGER NOT NULL,
		kind            TEXT NOT NULL,
		payload         BLOB,
		payload_hash    TEXT NOT NULL,
		prev_entry_hash TEXT NOT NULL,
		entry_hash      TEXT NOT NULL,
		occurred_at     INTEGER NOT NULL,
		PRIMARY KEY (scope_id, sequence_no)
	);
	CREATE INDEX IF NOT EXISTS idx_audit_entries_scope
		ON audit_entries(scope_id, sequence_no);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AppendEntry implements Store.
func (s *SQLiteStore) AppendEntry(ctx context.Context, entry *Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_entries
			(scope_id, sequence_no, kind, payload, payload_hash,
			 prev_entry_hash, entry_hash, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ScopeID, entry.SequenceNo, entry.Kind, entry.Payload,
		entry.PayloadHash, entry.PrevEntryHash, entry.EntryHash,
		entry.OccurredAt.UTC().UnixNano())
	if err != nil {
		return &StoreError{Op: "append", Err: err}
	}
	return nil
}

// Entries implements Store.
func (s *SQLiteStore) Entries(ctx context.Context, scopeID string) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence_no, kind, payload, payload_hash, prev_entry_hash, entry_hash, occurred_at
		FROM audit_entries WHERE scope_id = ? ORDER BY sequence_no`, scopeID)
	if err != nil {
		return nil, &StoreError{Op: "entries", Err: err}
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry := &Entry{ScopeID: scopeID}
		var occurredAt int64
		if err := rows.Scan(&entry.SequenceNo, &entry.Kind, &entry.Payload,
			&entry.PayloadHash, &entry.PrevEntryHash, &entry.EntryHash, &occurredAt); err != nil {
			return nil, &StoreError{Op: "scan", Err: err}
		}
		entry.OccurredAt = time.Unix(0, occurredAt).UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Head implements Store.
func (s *SQLiteStore) Head(ctx context.Context, scopeID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT sequence_no, kind, payload, payload_hash, prev_entry_hash, entry_hash, occurred_at
		FROM audit_entries WHERE scope_id = ?
		ORDER BY sequence_no DESC LIMIT 1`, scopeID)

	entry := &Entry{ScopeID: scopeID}
	var occurredAt int64
	err := row.Scan(&entry.SequenceNo, &entry.Kind, &entry.Payload,
		&entry.PayloadHash, &entry.PrevEntryHash, &entry.EntryHash, &occurredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "head", Err: err}
	}
	entry.OccurredAt = time.Unix(0, occurredAt).UTC()
	return entry, nil
}

// Scopes implements Store.
func (s *SQLiteStore) Scopes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT scope_id FROM audit_entries ORDER BY scope_id`)
	if err != nil {
		return nil, &StoreError{Op: "scopes", Err: err}
	}
	defer rows.Close()

	var scopes []string
	for rows.Next() {
		var scopeID string
		if err := rows.Scan(&scopeID); err != nil {
			return nil, &StoreError{Op: "scan", Err: err}
		}
		scopes = append(scopes, scopeID)
	}
	return scopes, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
