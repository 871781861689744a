package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/symnixhq/symnix-image-scraper/internal/logging"
)

// HubConfig contains configuration for Docker Hub access.
type HubConfig struct {
	// BaseURL is the repositories API root (overridable for tests).
	BaseURL string

	// PageSize is the fixed page size for tag listing requests.
	PageSize int

	// Timeout bounds each page request.
	Timeout time.Duration

	// RateLimitInterval spaces out consecutive requests.
	RateLimitInterval time.Duration

	// RetryAttempts caps the per-page retry. Zero means DefaultRetryAttempts.
	RetryAttempts uint
}

// DockerHubClient implements the Client interface for Docker Hub.
type DockerHubClient struct {
	httpClient    *http.Client
	rateLimiter   *time.Ticker
	baseURL       string
	pageSize      int
	retryAttempts uint
}

// NewDockerHubClient creates a new Docker Hub client.
// A nil config uses the defaults.
func NewDockerHubClient(config *HubConfig) *DockerHubClient {
	if config == nil {
		config = &HubConfig{}
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultHTTPTimeout
	}
	if config.RateLimitInterval <= 0 {
		config.RateLimitInterval = DefaultRateLimitInterval
	}
	if config.RetryAttempts == 0 {
		config.RetryAttempts = DefaultRetryAttempts
	}

	return &DockerHubClient{
		httpClient:    &http.Client{Timeout: config.Timeout},
		rateLimiter:   time.NewTicker(config.RateLimitInterval),
		baseURL:       config.BaseURL,
		pageSize:      config.PageSize,
		retryAttempts: config.RetryAttempts,
	}
}

// tagsPage represents one page of Docker Hub's tag listing response.
type tagsPage struct {
	Count   int    `json:"count"`
	Next    string `json:"next"`
	Results []struct {
		Name string `json:"name"`
	} `json:"results"`
}

// ListTags returns all tag names for a Hub repository, following the
// cursor in each page's "next" field until it is null or absent.
// Repository format: "namespace/repository" (e.g. "library/redis").
func (c *DockerHubClient) ListTags(ctx context.Context, repository string) ([]string, error) {
	url := fmt.Sprintf("%s/%s/tags?page_size=%d", c.baseURL, repository, c.pageSize)

	var tags []string
	for url != "" {
		page, err := c.fetchPage(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch tags for %s: %w", repository, err)
		}

		for _, result := range page.Results {
			tags = append(tags, result.Name)
		}

		url = page.Next
	}

	return tags, nil
}

// fetchPage retrieves a single page, retrying transient failures with
// capped exponential backoff. 4xx responses other than 429 are permanent.
func (c *DockerHubClient) fetchPage(ctx context.Context, url string) (*tagsPage, error) {
	var page *tagsPage

	err := retry.Do(
		func() error {
			// Rate limiting
			select {
			case <-c.rateLimiter.C:
			case <-ctx.Done():
				return retry.Unrecoverable(ctx.Err())
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				httpErr := handleHTTPError(resp, "tag listing")
				if retryableStatus(resp.StatusCode) {
					return httpErr
				}
				return retry.Unrecoverable(httpErr)
			}

			var decoded tagsPage
			if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to decode response: %w", err))
			}

			page = &decoded
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.retryAttempts),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(5*time.Second),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logging.Debug("retrying tag page fetch (attempt %d): %v", n+1, err)
		}),
	)
	if err != nil {
		return nil, err
	}

	return page, nil
}
