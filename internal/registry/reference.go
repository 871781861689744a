package registry

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/distribution/reference"
)

// ParseImageRef resolves an image identifier to a Docker Hub repository path.
// Three forms are accepted:
//   - bare names ("redis") resolve to the official library repository
//   - namespaced names ("linuxserver/plex") resolve as-is
//   - hub browse URLs ("https://hub.docker.com/r/linuxserver/plex",
//     "https://hub.docker.com/_/redis") are decomposed into owner and name
func ParseImageRef(input string) (ImageRef, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return ImageRef{}, fmt.Errorf("empty image reference")
	}

	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return parseBrowseURL(input)
	}

	named, err := reference.ParseNormalizedNamed(input)
	if err != nil {
		return ImageRef{}, fmt.Errorf("invalid image reference %q: %w", input, err)
	}

	// Path normalizes bare names to "library/<name>".
	return ImageRef{Name: input, Repository: reference.Path(named)}, nil
}

// parseBrowseURL decomposes a Docker Hub browse URL into a repository path.
// Supported paths: /r/{owner}/{name} and /_/{name}.
func parseBrowseURL(raw string) (ImageRef, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ImageRef{}, fmt.Errorf("invalid image URL %q: %w", raw, err)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	switch {
	case len(segments) >= 3 && segments[0] == "r":
		name := segments[1] + "/" + segments[2]
		return ImageRef{Name: name, Repository: name}, nil
	case len(segments) >= 2 && segments[0] == "_":
		return ImageRef{Name: segments[1], Repository: "library/" + segments[1]}, nil
	case len(segments) == 2:
		// Tolerate URLs without the /r/ prefix, e.g. hub.docker.com/owner/name.
		name := segments[0] + "/" + segments[1]
		return ImageRef{Name: name, Repository: name}, nil
	default:
		return ImageRef{}, fmt.Errorf("cannot extract repository from URL %q", raw)
	}
}
