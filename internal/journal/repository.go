package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-dashsync/internal/devicesync"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ErrNoSync is returned by LastSync before any backend resync was recorded.
var ErrNoSync = errors.New("journal: no sync recorded")

// SQLiteRepository stores the mutation journal and backend resync runs.
// It implements devicesync.Recorder.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ devicesync.Recorder = (*SQLiteRepository)(nil)

// NewSQLiteRepository returns a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// RecordMutation inserts one settled mutation. Re-recording the same id
// replaces the earlier row.
func (r *SQLiteRepository) RecordMutation(ctx context.Context, rec devicesync.MutationRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("mutation id is required")
	}
	targets := rec.Targets
	if targets == nil {
		targets = []string{}
	}
	targetsJSON, err := json.Marshal(targets)
	if err != nil {
		return fmt.Errorf("marshalling targets: %w", err)
	}

	var desired sql.NullInt64
	if rec.Desired != nil {
		desired.Valid = true
		if *rec.Desired {
			desired.Int64 = 1
		}
	}
	var errText sql.NullString
	if rec.Error != "" {
		errText = sql.NullString{String: rec.Error, Valid: true}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO mutation_journal
		 (id, kind, targets, desired, outcome, error, started_at, settled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		string(rec.Kind),
		string(targetsJSON),
		desired,
		string(rec.Outcome),
		errText,
		formatTimestamp(rec.StartedAt),
		formatTimestamp(rec.SettledAt),
	)
	if err != nil {
		return fmt.Errorf("inserting mutation: %w", err)
	}
	return nil
}

// ListMutations returns recent mutations, newest first.
// limit defaults to 50 and is capped at 200.
func (r *SQLiteRepository) ListMutations(ctx context.Context, limit int) ([]devicesync.MutationRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, targets, desired, outcome, error, started_at, settled_at
		 FROM mutation_journal
		 ORDER BY started_at DESC, rowid DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying mutations: %w", err)
	}
	defer rows.Close()

	records := make([]devicesync.MutationRecord, 0, limit)
	for rows.Next() {
		var (
			rec                  devicesync.MutationRecord
			kind, outcome        string
			targetsJSON          string
			desired              sql.NullInt64
			errText              sql.NullString
			startedAt, settledAt string
		)
		if err := rows.Scan(&rec.ID, &kind, &targetsJSON, &desired, &outcome, &errText, &startedAt, &settledAt); err != nil {
			return nil, fmt.Errorf("scanning mutation: %w", err)
		}

		if err := json.Unmarshal([]byte(targetsJSON), &rec.Targets); err != nil {
			return nil, fmt.Errorf("unmarshalling targets: %w", err)
		}
		rec.Kind = devicesync.MutationKind(kind)
		rec.Outcome = devicesync.Outcome(outcome)
		rec.Error = errText.String
		if desired.Valid {
			on := desired.Int64 != 0
			rec.Desired = &on
		}
		if rec.StartedAt, err = parseTimestamp(startedAt); err != nil {
			return nil, err
		}
		if rec.SettledAt, err = parseTimestamp(settledAt); err != nil {
			return nil, err
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating mutations: %w", err)
	}

	return records, nil
}

// RecordSync inserts one backend resync run.
func (r *SQLiteRepository) RecordSync(ctx context.Context, rec devicesync.SyncRecord) error {
	ranAt := rec.RanAt
	if ranAt.IsZero() {
		ranAt = r.now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_runs (status, ran_at, total, new, updated, removed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Status,
		formatTimestamp(ranAt),
		rec.Summary.Total,
		rec.Summary.New,
		rec.Summary.Updated,
		rec.Summary.Removed,
	)
	if err != nil {
		return fmt.Errorf("inserting sync run: %w", err)
	}
	return nil
}

// LastSync returns the most recent resync run, or ErrNoSync.
func (r *SQLiteRepository) LastSync(ctx context.Context) (devicesync.SyncRecord, error) {
	var (
		rec   devicesync.SyncRecord
		ranAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT status, ran_at, total, new, updated, removed
		 FROM sync_runs
		 ORDER BY ran_at DESC, id DESC
		 LIMIT 1`,
	).Scan(&rec.Status, &ranAt, &rec.Summary.Total, &rec.Summary.New, &rec.Summary.Updated, &rec.Summary.Removed)
	if errors.Is(err, sql.ErrNoRows) {
		return devicesync.SyncRecord{}, ErrNoSync
	}
	if err != nil {
		return devicesync.SyncRecord{}, fmt.Errorf("querying last sync: %w", err)
	}

	if rec.RanAt, err = parseTimestamp(ranAt); err != nil {
		return devicesync.SyncRecord{}, err
	}
	return rec, nil
}

// Prune deletes mutations settled and sync runs recorded more than
// olderThan ago. It returns the number of rows removed across both tables.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}
	cutoff := formatTimestamp(r.now().Add(-olderThan))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning prune: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var total int64
	for _, stmt := range []string{
		"DELETE FROM mutation_journal WHERE settled_at < ?",
		"DELETE FROM sync_runs WHERE ran_at < ?",
	} {
		result, err := tx.ExecContext(ctx, stmt, cutoff)
		if err != nil {
			return 0, fmt.Errorf("pruning journal: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("checking rows affected: %w", err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing prune: %w", err)
	}
	return total, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return ts, nil
	}
	if fallback, fallbackErr := time.Parse("2006-01-02 15:04:05", value); fallbackErr == nil {
		return fallback, nil
	}
	return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
}
