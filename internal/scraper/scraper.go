// Package scraper coordinates the scrape run: fan out tag fetching over
// the configured images, reconcile the results against the snapshot,
// persist the snapshot and optionally sync the delta to the inventory.
package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/symnixhq/symnix-image-scraper/internal/config"
	"github.com/symnixhq/symnix-image-scraper/internal/inventory"
	"github.com/symnixhq/symnix-image-scraper/internal/logging"
	"github.com/symnixhq/symnix-image-scraper/internal/reconcile"
	"github.com/symnixhq/symnix-image-scraper/internal/registry"
	"github.com/symnixhq/symnix-image-scraper/internal/snapshot"
	"github.com/symnixhq/symnix-image-scraper/internal/storage"
	"github.com/symnixhq/symnix-image-scraper/internal/version"
)

// Options configures a Scraper.
type Options struct {
	// TagLimit caps the fresh selection per image.
	TagLimit int

	// MaxConcurrency bounds parallel registry fetches.
	MaxConcurrency int
}

// Scraper runs the fetch-reconcile-persist pipeline.
type Scraper struct {
	registry       registry.Client
	selector       *version.Selector
	store          *snapshot.Store
	reconciler     *reconcile.Reconciler
	inventory      *inventory.Client // optional, nil disables sync
	history        storage.Storage   // optional, nil disables history
	maxConcurrency int
	logger         *logging.Logger
}

// New creates a scraper. Inventory sync and run history are off until
// SetInventory / SetHistory are called.
func New(reg registry.Client, store *snapshot.Store, opts Options) *Scraper {
	maxConcurrency := opts.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = config.DefaultMaxConcurrency
	}

	return &Scraper{
		registry:       reg,
		selector:       version.NewSelector(opts.TagLimit),
		store:          store,
		reconciler:     reconcile.NewReconciler(),
		maxConcurrency: maxConcurrency,
		logger:         logging.Default(),
	}
}

// SetInventory enables inventory sync after successful snapshot writes.
func (s *Scraper) SetInventory(c *inventory.Client) {
	s.inventory = c
}

// SetHistory enables run-history persistence.
func (s *Scraper) SetHistory(st storage.Storage) {
	s.history = st
}

// SetLogger overrides the default logger.
func (s *Scraper) SetLogger(l *logging.Logger) {
	s.logger = l
}

// RunResult summarizes one scrape run.
type RunResult struct {
	RunID       string
	Duration    time.Duration
	TotalImages int
	Updated     int
	Unchanged   int
	Failed      int

	// NewVersions maps image name to the versions first seen this run.
	NewVersions map[string][]version.Tag

	// Synced reports whether the inventory sync completed.
	Synced bool

	// DeletedVersions lists inventory entries removed during sync.
	DeletedVersions map[string][]string
}

// imageResult is what one fetch-and-filter worker produces.
type imageResult struct {
	name string
	tags []version.Tag
	err  error
}

// Run scrapes every configured service, merges new versions into the
// snapshot, persists it when anything changed, and syncs the delta to
// the inventory when enabled. Per-image fetch failures are logged and
// skipped; a sync failure aborts the remaining sync steps and is
// returned alongside the partial result.
func (s *Scraper) Run(ctx context.Context, services []config.Service) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{
		RunID:       uuid.NewString(),
		TotalImages: len(services),
		NewVersions: make(map[string][]version.Tag),
	}

	snap, err := s.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	results := s.fanOut(ctx, services)

	// The update set holds the full merged list per changed image; it is
	// what gets pushed to the inventory. Results arrive in completion
	// order and are folded in from this goroutine only.
	updates := make(map[string][]version.Tag)
	historyEntries := make([]storage.RunEntry, 0, len(services))

	for res := range results {
		if res.err != nil {
			s.logger.Warn("failed to fetch tags for %s: %v", res.name, res.err)
			result.Failed++
			historyEntries = append(historyEntries, storage.RunEntry{
				RunID:  result.RunID,
				Image:  res.name,
				Status: storage.StatusFailed,
				Error:  res.err.Error(),
			})
			continue
		}

		newer := s.reconciler.Newer(snap[res.name], res.tags)
		if len(newer) == 0 {
			result.Unchanged++
			historyEntries = append(historyEntries, storage.RunEntry{
				RunID:  result.RunID,
				Image:  res.name,
				Status: storage.StatusUnchanged,
			})
			continue
		}

		merged := s.reconciler.Merge(snap[res.name], res.tags)
		snap[res.name] = merged
		updates[res.name] = merged
		result.NewVersions[res.name] = newer
		result.Updated++

		s.logger.Info("found %d new version(s) for %s", len(newer), res.name)
		historyEntries = append(historyEntries, storage.RunEntry{
			RunID:       result.RunID,
			Image:       res.name,
			Status:      storage.StatusUpdated,
			NewVersions: version.Versions(newer),
		})
	}

	var runErr error
	if len(updates) > 0 {
		if err := s.store.Save(snap); err != nil {
			return nil, fmt.Errorf("failed to persist snapshot: %w", err)
		}
		s.logger.Info("snapshot updated at %s (%d image(s) changed)", s.store.Path(), len(updates))

		if s.inventory != nil {
			result.DeletedVersions, runErr = s.sync(ctx, updates)
			result.Synced = runErr == nil
		}
	} else {
		s.logger.Info("no newer tags found, snapshot unchanged")
	}

	s.logHistory(ctx, historyEntries)

	result.Duration = time.Since(start)
	return result, runErr
}

// fanOut submits one fetch-and-filter task per service to a bounded
// worker pool and returns the channel results arrive on, in completion
// order. The channel is closed once every task finished.
func (s *Scraper) fanOut(ctx context.Context, services []config.Service) <-chan imageResult {
	results := make(chan imageResult, len(services))
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, svc := range services {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			tags, err := s.fetchAndSelect(ctx, name)
			results <- imageResult{name: name, tags: tags, err: err}
		}(svc.Name)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// fetchAndSelect resolves one image reference, lists its tags and
// selects the newest versions.
func (s *Scraper) fetchAndSelect(ctx context.Context, name string) ([]version.Tag, error) {
	ref, err := registry.ParseImageRef(name)
	if err != nil {
		return nil, err
	}

	raw, err := s.registry.ListTags(ctx, ref.Repository)
	if err != nil {
		return nil, err
	}

	return s.selector.Select(raw), nil
}

// sync pushes the update set to the inventory and deletes entries the
// inventory tracks but upstream no longer publishes. The first failure
// aborts the remaining steps; earlier pushes are not rolled back.
func (s *Scraper) sync(ctx context.Context, updates map[string][]version.Tag) (map[string][]string, error) {
	if err := s.inventory.PushImages(ctx, updates); err != nil {
		return nil, fmt.Errorf("inventory push failed: %w", err)
	}

	deleted := make(map[string][]string)
	for name, latest := range updates {
		remote, err := s.inventory.ListImageVersions(ctx, name)
		if err != nil {
			return deleted, fmt.Errorf("inventory version listing failed for %s: %w", name, err)
		}

		for _, stale := range s.reconciler.Outdated(latest, remote) {
			s.logger.Info("deleting outdated version %q for image %q", stale, name)
			if err := s.inventory.DeleteImage(ctx, stale); err != nil {
				return deleted, fmt.Errorf("inventory delete failed for %s %s: %w", name, stale, err)
			}
			deleted[name] = append(deleted[name], stale)
		}
	}

	return deleted, nil
}

// logHistory records the run in storage. History is best effort and
// never fails the run.
func (s *Scraper) logHistory(ctx context.Context, entries []storage.RunEntry) {
	if s.history == nil || len(entries) == 0 {
		return
	}
	if err := s.history.LogRunBatch(ctx, entries); err != nil {
		s.logger.Warn("failed to record run history: %v", err)
	}
}
