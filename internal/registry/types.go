package registry

import "context"

// Client defines the interface for registry tag listing.
type Client interface {
	// ListTags returns every tag name published for a repository,
	// following pagination until the registry reports no further page.
	ListTags(ctx context.Context, repository string) ([]string, error)
}

// ImageRef identifies a Docker Hub repository.
type ImageRef struct {
	// Name is the image name as configured (e.g. "redis", "linuxserver/plex").
	Name string

	// Repository is the resolved Hub repository path
	// (e.g. "library/redis", "linuxserver/plex").
	Repository string
}
