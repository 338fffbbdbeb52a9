package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements Store using SQLite for persistence. It is
// suitable for single-instance deployments that need spend accounting to
// survive restarts.
//
// The store opens the database in WAL mode with a single writer
// connection. Budget increments run inside one transaction so the
// check-then-increment is atomic with respect to concurrent callers.
type SQLiteStore struct {
	db *sql.DB
}

// SQLiteStoreConfig configures the SQLite ledger store.
type SQLiteStoreConfig struct {
	// Path is the path to the SQLite database file.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteStore creates a new SQLite ledger store with default settings.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(SQLiteStoreConfig{Path: path})
}

// NewSQLiteStoreWithConfig creates a new SQLite ledger store with custom
// configuration.
func NewSQLiteStoreWithConfig(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, &StorageError{Op: "init schema", Err: err}
	}

	return store, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS budget_counters (
		scope_id       TEXT NOT NULL,
		period_key     TEXT NOT NULL,
		spent_amount   REAL NOT NULL DEFAULT 0,
		limit_amount   REAL NOT NULL DEFAULT 0,
		warn_threshold REAL NOT NULL DEFAULT 0,
		updated_at     INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (scope_id, period_key)
	);

	CREATE TABLE IF NOT EXISTS cost_entries (
		id           TEXT PRIMARY KEY,
		scope_id     TEXT NOT NULL,
		operation_id TEXT NOT NULL,
		backend      TEXT NOT NULL,
		input_units  INTEGER NOT NULL,
		output_units INTEGER NOT NULL,
		cost_amount  REAL NOT NULL,
		succeeded    INTEGER NOT NULL,
		period_key   TEXT NOT NULL,
		sequence_no  INTEGER NOT NULL,
		occurred_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cost_entries_scope_period
		ON cost_entries(scope_id, period_key, occurred_at);

	CREATE TABLE IF NOT EXISTS toggles (
		name          TEXT PRIMARY KEY,
		enabled       INTEGER NOT NULL,
		locked        INTEGER NOT NULL,
		controlled_by TEXT NOT NULL,
		updated_at    INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS recommendations (
		id               TEXT PRIMARY KEY,
		scope_id         TEXT NOT NULL,
		proposed_change  BLOB,
		estimated_impact REAL NOT NULL,
		status           TEXT NOT NULL,
		proposed_by      TEXT NOT NULL,
		decided_by       TEXT NOT NULL DEFAULT '',
		decided_at       INTEGER NOT NULL DEFAULT 0,
		expires_at       INTEGER NOT NULL,
		created_at       INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_recommendations_scope
		ON recommendations(scope_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// IncrementIfUnder implements Store.
func (s *SQLiteStore) IncrementIfUnder(ctx context.Context, scopeID, periodKey string, amount float64, policy BudgetPolicy) (bool, *BudgetCounter, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, nil, &StorageError{Op: "increment begin", Err: err}
	}
	defer tx.Rollback()

	// Implicit counter creation on first write in a new period.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO budget_counters (scope_id, period_key, spent_amount, limit_amount, warn_threshold, updated_at)
		VALUES (?, ?, 0, ?, ?, ?)
		ON CONFLICT(scope_id, period_key) DO NOTHING`,
		scopeID, periodKey, policy.LimitAmount, policy.WarnThreshold, time.Now().UTC().UnixNano())
	if err != nil {
		return false, nil, &StorageError{Op: "increment seed", Err: err}
	}

	// The check-then-increment: rows with an exhausted counter are not
	// matched, so the increment is rejected atomically.
	result, err := tx.ExecContext(ctx, `
		UPDATE budget_counters
		SET spent_amount = spent_amount + ?, updated_at = ?
		WHERE scope_id = ? AND period_key = ?
		  AND (limit_amount <= 0 OR spent_amount < limit_amount)`,
		amount, time.Now().UTC().UnixNano(), scopeID, periodKey)
	if err != nil {
		return false, nil, &StorageError{Op: "increment update", Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, nil, &StorageError{Op: "increment rows", Err: err}
	}

	counter, err := s.readBudgetTx(ctx, tx, scopeID, periodKey)
	if err != nil {
		return false, nil, err
	}

	if err := tx.Commit(); err != nil {
		return false, nil, &StorageError{Op: "increment commit", Err: err}
	}

	return affected > 0, counter, nil
}

func (s *SQLiteStore) readBudgetTx(ctx context.Context, tx *sql.Tx, scopeID, periodKey string) (*BudgetCounter, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT spent_amount, limit_amount, warn_threshold, updated_at
		FROM budget_counters WHERE scope_id = ? AND period_key = ?`,
		scopeID, periodKey)

	counter := &BudgetCounter{ScopeID: scopeID, PeriodKey: periodKey}
	var updatedAt int64
	if err := row.Scan(&counter.SpentAmount, &counter.LimitAmount, &counter.WarnThreshold, &updatedAt); err != nil {
		return nil, &StorageError{Op: "budget read", Err: err}
	}
	counter.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return counter, nil
}

// GetBudget implements Store.
func (s *SQLiteStore) GetBudget(ctx context.Context, scopeID, periodKey string, policy BudgetPolicy) (*BudgetCounter, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT spent_amount, limit_amount, warn_threshold, updated_at
		FROM budget_counters WHERE scope_id = ? AND period_key = ?`,
		scopeID, periodKey)

	counter := &BudgetCounter{ScopeID: scopeID, PeriodKey: periodKey}
	var updatedAt int64
	err := row.Scan(&counter.SpentAmount, &counter.LimitAmount, &counter.WarnThreshold, &updatedAt)
	if err == sql.ErrNoRows {
		counter.LimitAmount = policy.LimitAmount
		counter.WarnThreshold = policy.WarnThreshold
		return counter, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "budget read", Err: err}
	}
	counter.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return counter, nil
}

// AppendCost implements Store.
func (s *SQLiteStore) AppendCost(ctx context.Context, entry *CostEntry) error {
	succeeded := 0
	if entry.Succeeded {
		succeeded = 1
	}

	// Plain INSERT: the primary key makes re-writing an entry ID fail,
	// which is what append-only requires.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cost_entries
			(id, scope_id, operation_id, backend, input_units, output_units,
			 cost_amount, succeeded, period_key, sequence_no, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ScopeID, entry.OperationID, entry.Backend,
		entry.InputUnits, entry.OutputUnits, entry.CostAmount, succeeded,
		entry.PeriodKey, entry.SequenceNo, entry.OccurredAt.UTC().UnixNano())
	if err != nil {
		return &StorageError{Op: "cost append", Err: err}
	}
	return nil
}

// CostEntries implements Store.
func (s *SQLiteStore) CostEntries(ctx context.Context, scopeID, periodKey string) ([]*CostEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation_id, backend, input_units, output_units,
		       cost_amount, succeeded, sequence_no, occurred_at
		FROM cost_entries
		WHERE scope_id = ? AND period_key = ?
		ORDER BY occurred_at, id`,
		scopeID, periodKey)
	if err != nil {
		return nil, &StorageError{Op: "cost list", Err: err}
	}
	defer rows.Close()

	var entries []*CostEntry
	for rows.Next() {
		entry := &CostEntry{ScopeID: scopeID, PeriodKey: periodKey}
		var succeeded int
		var occurredAt int64
		if err := rows.Scan(&entry.ID, &entry.OperationID, &entry.Backend,
			&entry.InputUnits, &entry.OutputUnits, &entry.CostAmount,
			&succeeded, &entry.SequenceNo, &occurredAt); err != nil {
			return nil, &StorageError{Op: "cost scan", Err: err}
		}
		entry.Succeeded = succeeded == 1
		entry.OccurredAt = time.Unix(0, occurredAt).UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// SaveToggle implements Store.
func (s *SQLiteStore) SaveToggle(ctx context.Context, row *ToggleRow) error {
	enabled, locked := 0, 0
	if row.Enabled {
		enabled = 1
	}
	if row.Locked {
		locked = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO toggles (name, enabled, locked, controlled_by, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			enabled = excluded.enabled,
			locked = excluded.locked,
			controlled_by = excluded.controlled_by,
			updated_at = excluded.updated_at`,
		row.Name, enabled, locked, row.ControlledBy, row.UpdatedAt.UTC().UnixNano())
	if err != nil {
		return &StorageError{Op: "toggle save", Err: err}
	}
	return nil
}

// ListToggles implements Store.
func (s *SQLiteStore) ListToggles(ctx context.Context) ([]*ToggleRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, enabled, locked, controlled_by, updated_at FROM toggles ORDER BY name`)
	if err != nil {
		return nil, &StorageError{Op: "toggle list", Err: err}
	}
	defer rows.Close()

	var toggles []*ToggleRow
	for rows.Next() {
		row := &ToggleRow{}
		var enabled, locked int
		var updatedAt int64
		if err := rows.Scan(&row.Name, &enabled, &locked, &row.ControlledBy, &updatedAt); err != nil {
			return nil, &StorageError{Op: "toggle scan", Err: err}
		}
		row.Enabled = enabled == 1
		row.Locked = locked == 1
		row.UpdatedAt = time.Unix(0, updatedAt).UTC()
		toggles = append(toggles, row)
	}
	return toggles, rows.Err()
}

// SaveRecommendation implements Store.
func (s *SQLiteStore) SaveRecommendation(ctx context.Context, row *RecommendationRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "recommendation begin", Err: err}
	}
	defer tx.Rollback()

	var existingStatus string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM recommendations WHERE id = ?`, row.ID).Scan(&existingStatus)
	if err != nil && err != sql.ErrNoRows {
		return &StorageError{Op: "recommendation read", Err: err}
	}
	if err == nil && terminalStatus(existingStatus) {
		return fmt.Errorf("recommendation %s is %s: %w", row.ID, existingStatus, ErrTerminalRow)
	}

	var decidedAt int64
	if !row.DecidedAt.IsZero() {
		decidedAt = row.DecidedAt.UTC().UnixNano()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recommendations
			(id, scope_id, proposed_change, estimated_impact, status,
			 proposed_by, decided_by, decided_at, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			decided_by = excluded.decided_by,
			decided_at = excluded.decided_at`,
		row.ID, row.ScopeID, row.ProposedChange, row.EstimatedImpact, row.Status,
		row.ProposedBy, row.DecidedBy, decidedAt,
		row.ExpiresAt.UTC().UnixNano(), row.CreatedAt.UTC().UnixNano())
	if err != nil {
		return &StorageError{Op: "recommendation save", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "recommendation commit", Err: err}
	}
	return nil
}

// GetRecommendation implements Store.
func (s *SQLiteStore) GetRecommendation(ctx context.Context, id string) (*RecommendationRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scope_id, proposed_change, estimated_impact, status,
		       proposed_by, decided_by, decided_at, expires_at, created_at
		FROM recommendations WHERE id = ?`, id)

	rec, err := scanRecommendation(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("recommendation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, &StorageError{Op: "recommendation read", Err: err}
	}
	return rec, nil
}

// ListRecommendations implements Store.
func (s *SQLiteStore) ListRecommendations(ctx context.Context, scopeID string) ([]*RecommendationRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scope_id, proposed_change, estimated_impact, status,
		       proposed_by, decided_by, decided_at, expires_at, created_at
		FROM recommendations WHERE scope_id = ? ORDER BY created_at, id`, scopeID)
	if err != nil {
		return nil, &StorageError{Op: "recommendation list", Err: err}
	}
	defer rows.Close()

	var recs []*RecommendationRow
	for rows.Next() {
		rec, err := scanRecommendation(rows.Scan)
		if err != nil {
			return nil, &StorageError{Op: "recommendation scan", Err: err}
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanRecommendation(scan func(dest ...any) error) (*RecommendationRow, error) {
	rec := &RecommendationRow{}
	var decidedAt, expiresAt, createdAt int64
	err := scan(&rec.ID, &rec.ScopeID, &rec.ProposedChange, &rec.EstimatedImpact,
		&rec.Status, &rec.ProposedBy, &rec.DecidedBy, &decidedAt, &expiresAt, &createdAt)
	if err != nil {
		return nil, err
	}
	if decidedAt != 0 {
		rec.DecidedAt = time.Unix(0, decidedAt).UTC()
	}
	rec.ExpiresAt = time.Unix(0, expiresAt).UTC()
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	return rec, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
