package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symnixhq/symnix-image-scraper/internal/config"
	"github.com/symnixhq/symnix-image-scraper/internal/inventory"
	"github.com/symnixhq/symnix-image-scraper/internal/snapshot"
	"github.com/symnixhq/symnix-image-scraper/internal/storage"
	"github.com/symnixhq/symnix-image-scraper/internal/version"
)

// fakeRegistry serves canned tag lists per repository path.
type fakeRegistry struct {
	mu    sync.Mutex
	tags  map[string][]string
	errs  map[string]error
	calls []string
}

func (f *fakeRegistry) ListTags(ctx context.Context, repository string) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, repository)
	f.mu.Unlock()

	if err, ok := f.errs[repository]; ok {
		return nil, err
	}
	return f.tags[repository], nil
}

func (f *fakeRegistry) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.calls...)
	sort.Strings(out)
	return out
}

// fakeHistory records run entries in memory.
type fakeHistory struct {
	mu      sync.Mutex
	entries []storage.RunEntry
}

func (f *fakeHistory) LogRunBatch(ctx context.Context, entries []storage.RunEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entries...)
	return nil
}

func (f *fakeHistory) GetRunHistory(ctx context.Context, image string, limit int) ([]storage.RunEntry, error) {
	return nil, nil
}

func (f *fakeHistory) GetLastRun(ctx context.Context) ([]storage.RunEntry, error) {
	return nil, nil
}

func (f *fakeHistory) Close() error { return nil }

func newTestStore(t *testing.T) *snapshot.Store {
	t.Helper()
	return snapshot.NewStore(filepath.Join(t.TempDir(), "all_tags.json"))
}

func services(names ...string) []config.Service {
	out := make([]config.Service, 0, len(names))
	for _, n := range names {
		out = append(out, config.Service{Name: n})
	}
	return out
}

func TestRunMergesNewVersionsIntoSnapshot(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(snapshot.Snapshot{
		"redis": {{Version: "7.0", Major: "7"}},
	}))

	reg := &fakeRegistry{tags: map[string][]string{
		"library/redis": {"7.2", "7.0", "latest"},
	}}

	s := New(reg, store, Options{TagLimit: 10, MaxConcurrency: 2})

	result, err := s.Run(context.Background(), services("redis"))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 0, result.Failed)
	require.Contains(t, result.NewVersions, "redis")
	assert.Equal(t, []string{"7.2"}, version.Versions(result.NewVersions["redis"]))

	snap, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"7.2", "7.0"}, version.Versions(snap["redis"]))
}

func TestRunResolvesRepositoryPaths(t *testing.T) {
	store := newTestStore(t)
	reg := &fakeRegistry{tags: map[string][]string{
		"library/redis":    {"7.2"},
		"linuxserver/plex": {"1.40.2"},
	}}

	s := New(reg, store, Options{})

	_, err := s.Run(context.Background(), services("redis", "linuxserver/plex"))
	require.NoError(t, err)

	assert.Equal(t, []string{"library/redis", "linuxserver/plex"}, reg.requested())
}

func TestRunFetchFailureDoesNotBlockOtherImages(t *testing.T) {
	store := newTestStore(t)
	reg := &fakeRegistry{
		tags: map[string][]string{"library/redis": {"7.2"}},
		errs: map[string]error{"library/nginx": errors.New("connection refused")},
	}

	s := New(reg, store, Options{})

	result, err := s.Run(context.Background(), services("redis", "nginx"))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Failed)

	snap, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"7.2"}, version.Versions(snap["redis"]))
	assert.NotContains(t, snap, "nginx")
}

func TestRunWithoutChangesLeavesSnapshotBytesUntouched(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(snapshot.Snapshot{
		"redis": {{Version: "7.2", Major: "7"}},
	}))

	before, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	stat, err := os.Stat(store.Path())
	require.NoError(t, err)

	reg := &fakeRegistry{tags: map[string][]string{
		"library/redis": {"7.2"},
	}}
	s := New(reg, store, Options{})

	result, err := s.Run(context.Background(), services("redis"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, 0, result.Updated)

	after, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	statAfter, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, stat.ModTime(), statAfter.ModTime())
}

func TestRunRecordsHistory(t *testing.T) {
	store := newTestStore(t)
	reg := &fakeRegistry{
		tags: map[string][]string{"library/redis": {"7.2"}},
		errs: map[string]error{"library/nginx": errors.New("boom")},
	}

	s := New(reg, store, Options{})
	history := &fakeHistory{}
	s.SetHistory(history)

	result, err := s.Run(context.Background(), services("redis", "nginx"))
	require.NoError(t, err)

	require.Len(t, history.entries, 2)
	byImage := map[string]storage.RunEntry{}
	for _, e := range history.entries {
		assert.Equal(t, result.RunID, e.RunID)
		byImage[e.Image] = e
	}
	assert.Equal(t, storage.StatusUpdated, byImage["redis"].Status)
	assert.Equal(t, []string{"7.2"}, byImage["redis"].NewVersions)
	assert.Equal(t, storage.StatusFailed, byImage["nginx"].Status)
	assert.Contains(t, byImage["nginx"].Error, "boom")
}

// inventoryRecorder is a fake inventory API server.
type inventoryRecorder struct {
	mu       sync.Mutex
	pushed   [][]byte
	deleted  []string
	versions map[string][]string
	failPush bool
}

func (rec *inventoryRecorder) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		defer rec.mu.Unlock()

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/container-images":
			if rec.failPush {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			body, _ := io.ReadAll(r.Body)
			rec.pushed = append(rec.pushed, body)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodGet:
			image := r.URL.Path[len("/container-image-versions/"):]
			json.NewEncoder(w).Encode(rec.versions[image])
		case r.Method == http.MethodDelete:
			rec.deleted = append(rec.deleted, r.URL.Path[len("/container-images/"):])
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	})
}

func TestRunSyncPushesUpdatesAndDeletesStaleVersions(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(snapshot.Snapshot{
		"redis": {{Version: "7.0", Major: "7"}},
	}))

	reg := &fakeRegistry{tags: map[string][]string{
		"library/redis": {"7.2", "7.0"},
	}}

	rec := &inventoryRecorder{versions: map[string][]string{
		"redis": {"7.2", "6.2"},
	}}
	server := httptest.NewServer(rec.handler())
	defer server.Close()

	s := New(reg, store, Options{})
	s.SetInventory(inventory.NewClient(server.URL, "token"))

	result, err := s.Run(context.Background(), services("redis"))
	require.NoError(t, err)

	assert.True(t, result.Synced)
	assert.Equal(t, map[string][]string{"redis": {"6.2"}}, result.DeletedVersions)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.pushed, 1)
	assert.Contains(t, string(rec.pushed[0]), `"name":"redis"`)
	assert.Contains(t, string(rec.pushed[0]), `"version":"7.2"`)
	assert.Equal(t, []string{"6.2"}, rec.deleted)
}

func TestRunSyncFailureSurfacesAfterSnapshotPersisted(t *testing.T) {
	store := newTestStore(t)

	reg := &fakeRegistry{tags: map[string][]string{
		"library/redis": {"7.2"},
	}}

	rec := &inventoryRecorder{failPush: true}
	server := httptest.NewServer(rec.handler())
	defer server.Close()

	s := New(reg, store, Options{})
	s.SetInventory(inventory.NewClient(server.URL, "token"))

	result, err := s.Run(context.Background(), services("redis"))
	require.Error(t, err)
	assert.False(t, result.Synced)

	// The local snapshot write already happened; sync failure does not
	// roll it back.
	snap, loadErr := store.Load()
	require.NoError(t, loadErr)
	assert.Equal(t, []string{"7.2"}, version.Versions(snap["redis"]))
}

func TestRunSkipsSyncWhenNothingChanged(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(snapshot.Snapshot{
		"redis": {{Version: "7.2", Major: "7"}},
	}))

	reg := &fakeRegistry{tags: map[string][]string{
		"library/redis": {"7.2"},
	}}

	rec := &inventoryRecorder{}
	server := httptest.NewServer(rec.handler())
	defer server.Close()

	s := New(reg, store, Options{})
	s.SetInventory(inventory.NewClient(server.URL, "token"))

	result, err := s.Run(context.Background(), services("redis"))
	require.NoError(t, err)
	assert.False(t, result.Synced)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.pushed)
}

func TestRunInvalidReferenceCountsAsFailure(t *testing.T) {
	store := newTestStore(t)
	reg := &fakeRegistry{}

	s := New(reg, store, Options{})

	result, err := s.Run(context.Background(), services("NOT A VALID REF"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Empty(t, reg.requested())
}
