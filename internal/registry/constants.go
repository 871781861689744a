package registry

import "time"

const (
	// DefaultBaseURL is the Docker Hub repositories API root.
	DefaultBaseURL = "https://registry.hub.docker.com/v2/repositories"

	// DefaultPageSize is the fixed page size for tag listing requests.
	DefaultPageSize = 1000

	// DefaultHTTPTimeout bounds each page request.
	DefaultHTTPTimeout = 300 * time.Second

	// DefaultRateLimitInterval is the minimum spacing between Hub requests.
	DefaultRateLimitInterval = 100 * time.Millisecond

	// DefaultRetryAttempts caps the exponential-backoff retry per page request.
	DefaultRetryAttempts = 3
)
