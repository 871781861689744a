// Package inventory implements the client for the remote inventory API
// that tracks images and their published versions.
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/symnixhq/symnix-image-scraper/internal/version"
)

// DefaultTimeout bounds each inventory API request.
const DefaultTimeout = 30 * time.Second

// Image is an inventory record for one tracked image.
type Image struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// imagePayload is one entry of the batch push body.
type imagePayload struct {
	Name     string        `json:"name"`
	Versions []version.Tag `json:"versions"`
}

// Client talks to the inventory API. The base URL and access token are
// injected at construction; the client never reads the environment.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates an inventory client for the given base URL and token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// ListImages returns all images currently tracked by the inventory.
func (c *Client) ListImages(ctx context.Context) ([]Image, error) {
	var images []Image
	if err := c.getJSON(ctx, c.baseURL+"/container-images", &images); err != nil {
		return nil, fmt.Errorf("failed to list inventory images: %w", err)
	}
	return images, nil
}

// ListImageVersions returns the version strings the inventory currently
// tracks for one image.
func (c *Client) ListImageVersions(ctx context.Context, imageName string) ([]string, error) {
	endpoint := c.baseURL + "/container-image-versions/" + url.PathEscape(imageName)

	var versions []string
	if err := c.getJSON(ctx, endpoint, &versions); err != nil {
		return nil, fmt.Errorf("failed to list versions for %s: %w", imageName, err)
	}
	return versions, nil
}

// PushImages sends the full update set to the inventory in one batch.
// The updates map image name to the tag list to publish for that image.
func (c *Client) PushImages(ctx context.Context, updates map[string][]version.Tag) error {
	payload := struct {
		Images []imagePayload `json:"images"`
	}{
		Images: make([]imagePayload, 0, len(updates)),
	}
	for name, versions := range updates {
		payload.Images = append(payload.Images, imagePayload{Name: name, Versions: versions})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/container-images", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to push images: %w", err)
	}
	defer resp.Body.Close()

	if !success(resp.StatusCode) {
		return apiError(resp, "push images")
	}
	return nil
}

// DeleteImage removes one tracked entry from the inventory.
func (c *Client) DeleteImage(ctx context.Context, imageID string) error {
	endpoint := c.baseURL + "/container-images/" + url.PathEscape(imageID)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete image %s: %w", imageID, err)
	}
	defer resp.Body.Close()

	if !success(resp.StatusCode) {
		return apiError(resp, "delete image "+imageID)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if !success(resp.StatusCode) {
		return apiError(resp, "get "+endpoint)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func success(code int) bool {
	return code >= 200 && code < 300
}

func apiError(resp *http.Response, operation string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%s: inventory API returned %d: %s", operation, resp.StatusCode, string(body))
}
