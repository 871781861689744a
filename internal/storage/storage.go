// Package storage persists scrape run history in SQLite. The scraper
// degrades gracefully when the database is unavailable: history is a
// diagnostic aid, not a correctness requirement.
package storage

import (
	"context"
	"time"
)

// RunEntry records the outcome of one image within one scrape run.
type RunEntry struct {
	ID          int64
	RunID       string
	Image       string
	Status      string // "updated", "unchanged", "failed"
	NewVersions []string
	Error       string
	CheckedAt   time.Time
}

// Run statuses.
const (
	StatusUpdated   = "updated"
	StatusUnchanged = "unchanged"
	StatusFailed    = "failed"
)

// Storage defines the interface for run-history persistence.
type Storage interface {
	// LogRunBatch records all per-image outcomes of one run atomically.
	LogRunBatch(ctx context.Context, entries []RunEntry) error

	// GetRunHistory returns the most recent entries for one image,
	// newest first. limit <= 0 means no limit.
	GetRunHistory(ctx context.Context, image string, limit int) ([]RunEntry, error)

	// GetLastRun returns all entries of the most recent run.
	GetLastRun(ctx context.Context) ([]RunEntry, error)

	// Close releases the underlying database handle.
	Close() error
}
