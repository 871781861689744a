// Package reconcile computes the difference between freshly selected
// versions and the persisted snapshot, and the set of remote inventory
// entries that no longer appear upstream.
package reconcile

import (
	"sort"

	"github.com/symnixhq/symnix-image-scraper/internal/version"
)

// Reconciler diffs fresh tag selections against previously seen tags.
type Reconciler struct{}

// NewReconciler creates a new reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Newer returns the fresh tags whose version string does not appear in
// the current list, preserving the fresh ordering.
func (r *Reconciler) Newer(current, fresh []version.Tag) []version.Tag {
	known := make(map[string]struct{}, len(current))
	for _, t := range current {
		known[t.Version] = struct{}{}
	}

	var newer []version.Tag
	for _, t := range fresh {
		if _, ok := known[t.Version]; !ok {
			newer = append(newer, t)
		}
	}

	return newer
}

// Merge combines the current and fresh lists into a single list that is
// deduplicated by version string and sorted descending by numeric
// component tuple. Fresh entries win ties with current entries, and the
// merged list is not truncated; only the fresh selection is capped
// upstream.
func (r *Reconciler) Merge(current, fresh []version.Tag) []version.Tag {
	seen := make(map[string]struct{}, len(current)+len(fresh))
	merged := make([]version.Tag, 0, len(current)+len(fresh))

	for _, t := range fresh {
		if _, dup := seen[t.Version]; dup {
			continue
		}
		seen[t.Version] = struct{}{}
		merged = append(merged, t)
	}
	for _, t := range current {
		if _, dup := seen[t.Version]; dup {
			continue
		}
		seen[t.Version] = struct{}{}
		merged = append(merged, t)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return version.Compare(merged[i].Version, merged[j].Version) > 0
	})

	return merged
}

// Outdated returns the remote inventory versions that are absent from the
// latest selection. These are the entries the inventory sync should delete.
func (r *Reconciler) Outdated(latest []version.Tag, remote []string) []string {
	current := make(map[string]struct{}, len(latest))
	for _, t := range latest {
		current[t.Version] = struct{}{}
	}

	var outdated []string
	for _, v := range remote {
		if _, ok := current[v]; !ok {
			outdated = append(outdated, v)
		}
	}

	return outdated
}
