package version

// Tag represents a version extracted from a registry tag name.
// Version is the normalized version string without the leading "v"
// (e.g. "2.10.1"), Major its first numeric component (e.g. "2").
type Tag struct {
	Version string `json:"version"`
	Major   string `json:"major"`
}

// Versions extracts the normalized version strings from a tag list.
func Versions(tags []Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.Version
	}
	return out
}
