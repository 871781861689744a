package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS run_history (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	image        TEXT NOT NULL,
	status       TEXT NOT NULL,
	new_versions TEXT,
	error        TEXT,
	checked_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_run_history_image ON run_history(image, checked_at);
CREATE INDEX IF NOT EXISTS idx_run_history_run ON run_history(run_id);
`

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStorage opens (or creates) the history database, enables WAL
// mode and applies the schema.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes; a single connection avoids lock churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStorage{db: db, dbPath: dbPath}, nil
}

// Close closes the database handle.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// LogRunBatch inserts all entries of one run in a single transaction.
func (s *SQLiteStorage) LogRunBatch(ctx context.Context, entries []RunEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_history (run_id, image, status, new_versions, error, checked_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		versionsJSON, err := json.Marshal(e.NewVersions)
		if err != nil {
			return fmt.Errorf("failed to encode versions for %s: %w", e.Image, err)
		}

		checkedAt := e.CheckedAt
		if checkedAt.IsZero() {
			checkedAt = time.Now().UTC()
		}

		if _, err := stmt.ExecContext(ctx, e.RunID, e.Image, e.Status, string(versionsJSON), e.Error, checkedAt); err != nil {
			return fmt.Errorf("failed to insert run entry for %s: %w", e.Image, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run history: %w", err)
	}
	return nil
}

// GetRunHistory returns the most recent entries for one image, newest first.
func (s *SQLiteStorage) GetRunHistory(ctx context.Context, image string, limit int) ([]RunEntry, error) {
	query := `
		SELECT id, run_id, image, status, new_versions, error, checked_at
		FROM run_history
		WHERE image = ?
		ORDER BY checked_at DESC, id DESC
	`
	args := []interface{}{image}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	defer rows.Close()

	return scanRunEntries(rows)
}

// GetLastRun returns all entries sharing the most recent run id.
func (s *SQLiteStorage) GetLastRun(ctx context.Context) ([]RunEntry, error) {
	var runID string
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id FROM run_history ORDER BY checked_at DESC, id DESC LIMIT 1
	`).Scan(&runID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find last run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, image, status, new_versions, error, checked_at
		FROM run_history
		WHERE run_id = ?
		ORDER BY image
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query last run: %w", err)
	}
	defer rows.Close()

	return scanRunEntries(rows)
}

// scanRunEntries scans run history rows, handling nullable columns.
func scanRunEntries(rows *sql.Rows) ([]RunEntry, error) {
	var entries []RunEntry
	for rows.Next() {
		var e RunEntry
		var versionsJSON, errMsg sql.NullString

		if err := rows.Scan(&e.ID, &e.RunID, &e.Image, &e.Status, &versionsJSON, &errMsg, &e.CheckedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run entry: %w", err)
		}

		if versionsJSON.Valid && strings.TrimSpace(versionsJSON.String) != "" {
			if err := json.Unmarshal([]byte(versionsJSON.String), &e.NewVersions); err != nil {
				return nil, fmt.Errorf("failed to decode versions for %s: %w", e.Image, err)
			}
		}
		if errMsg.Valid {
			e.Error = errMsg.String
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run history rows: %w", err)
	}
	return entries, nil
}
