package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symnixhq/symnix-image-scraper/internal/version"
)

func tag(v string) version.Tag {
	t, _ := version.Parse(v)
	return t
}

func TestNewerFindsUnseenVersions(t *testing.T) {
	r := NewReconciler()

	current := []version.Tag{tag("7.0")}
	fresh := []version.Tag{tag("7.2"), tag("7.0")}

	newer := r.Newer(current, fresh)
	require.Len(t, newer, 1)
	assert.Equal(t, "7.2", newer[0].Version)
}

func TestNewerEmptyWhenNothingChanged(t *testing.T) {
	r := NewReconciler()

	current := []version.Tag{tag("7.2"), tag("7.0")}
	fresh := []version.Tag{tag("7.2"), tag("7.0")}

	assert.Empty(t, r.Newer(current, fresh))
}

func TestNewerAgainstEmptySnapshot(t *testing.T) {
	r := NewReconciler()

	fresh := []version.Tag{tag("2.0"), tag("1.0")}
	newer := r.Newer(nil, fresh)
	assert.Equal(t, fresh, newer)
}

func TestMergeSortsDescending(t *testing.T) {
	r := NewReconciler()

	current := []version.Tag{tag("7.0")}
	fresh := []version.Tag{tag("7.2"), tag("7.0")}

	merged := r.Merge(current, fresh)
	require.Len(t, merged, 2)
	assert.Equal(t, "7.2", merged[0].Version)
	assert.Equal(t, "7.0", merged[1].Version)
}

func TestMergeReordersStaleSnapshots(t *testing.T) {
	r := NewReconciler()

	// A snapshot written by older runs can hold an unsorted mix; the merge
	// restores a fully descending order instead of prepending blindly.
	current := []version.Tag{tag("6.2"), tag("7.0"), tag("6.0")}
	fresh := []version.Tag{tag("7.2"), tag("6.1")}

	merged := r.Merge(current, fresh)
	got := version.Versions(merged)
	assert.Equal(t, []string{"7.2", "7.0", "6.2", "6.1", "6.0"}, got)
}

func TestMergeDeduplicatesByVersion(t *testing.T) {
	r := NewReconciler()

	current := []version.Tag{tag("7.0")}
	fresh := []version.Tag{tag("7.0"), tag("7.2")}

	merged := r.Merge(current, fresh)
	assert.Equal(t, []string{"7.2", "7.0"}, version.Versions(merged))
}

func TestOutdated(t *testing.T) {
	r := NewReconciler()

	latest := []version.Tag{tag("7.2"), tag("7.0")}
	remote := []string{"7.2", "6.2", "6.0"}

	assert.Equal(t, []string{"6.2", "6.0"}, r.Outdated(latest, remote))
}

func TestOutdatedNoneWhenRemoteMatches(t *testing.T) {
	r := NewReconciler()

	latest := []version.Tag{tag("7.2")}
	assert.Empty(t, r.Outdated(latest, []string{"7.2"}))
}
