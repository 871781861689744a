package version

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// versionPattern matches tags that consist of an optional "v" followed by
// one to three dot-separated numeric groups and nothing else. Tags with
// suffixes ("1.2.0-rc1", "1.21-alpine") are not versions for our purposes.
var versionPattern = regexp.MustCompile(`^v?(\d+(?:\.\d+){0,2})$`)

// DefaultLimit is the number of versions kept per image after selection.
const DefaultLimit = 10

// Selector filters raw registry tag names down to the newest unique
// semantic versions.
type Selector struct {
	limit int
}

// NewSelector creates a selector that keeps at most limit versions.
// A non-positive limit falls back to DefaultLimit.
func NewSelector(limit int) *Selector {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Selector{limit: limit}
}

// Parse extracts a Tag from a raw tag name. Returns false when the tag
// does not carry a leading numeric version.
func Parse(raw string) (Tag, bool) {
	matches := versionPattern.FindStringSubmatch(raw)
	if matches == nil {
		return Tag{}, false
	}

	ver := matches[1]
	major := ver
	if idx := strings.Index(ver, "."); idx >= 0 {
		major = ver[:idx]
	}

	return Tag{Version: ver, Major: major}, true
}

// Select extracts versions from raw tag names, deduplicates them by
// normalized version string (first occurrence wins), sorts them descending
// by numeric component tuple, and truncates to the configured limit.
func (s *Selector) Select(raw []string) []Tag {
	seen := make(map[string]struct{}, len(raw))
	versions := make([]Tag, 0, len(raw))

	for _, name := range raw {
		tag, ok := Parse(name)
		if !ok {
			continue
		}
		if _, dup := seen[tag.Version]; dup {
			continue
		}
		seen[tag.Version] = struct{}{}
		versions = append(versions, tag)
	}

	// Stable sort keeps original fetch order for equal tuples
	// (e.g. "2.1" and "2.1.0" compare equal but remain distinct entries).
	sort.SliceStable(versions, func(i, j int) bool {
		return Compare(versions[i].Version, versions[j].Version) > 0
	})

	if len(versions) > s.limit {
		versions = versions[:s.limit]
	}

	return versions
}

// Compare compares two normalized version strings component-wise as
// integers. Missing trailing components are treated as zero, so
// "2.1" == "2.1.0". Returns -1, 0 or 1.
func Compare(v1, v2 string) int {
	a := components(v1)
	b := components(v2)

	n := len(a)
	if len(b) > n {
		n = len(b)
	}

	for i := 0; i < n; i++ {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}

	return 0
}

func components(v string) []int {
	parts := strings.Split(v, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			// Parse guarantees numeric components; treat anything else as zero.
			n = 0
		}
		out = append(out, n)
	}
	return out
}
