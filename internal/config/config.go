// Package config loads the application configuration and the list of
// services whose images get scraped.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for everything the YAML file leaves unset.
const (
	DefaultServicesPath   = "services.json"
	DefaultSnapshotPath   = "all_tags.json"
	DefaultHistoryDBPath  = "scraper-history.db"
	DefaultTagLimit       = 10
	DefaultMaxConcurrency = 8
)

// Config represents the application configuration, loadable from YAML.
type Config struct {
	// ServicesPath is the JSON file listing the images to scrape.
	ServicesPath string `yaml:"services_path"`

	// SnapshotPath is the JSON document holding previously seen tags.
	SnapshotPath string `yaml:"snapshot_path"`

	// HistoryDBPath is the SQLite run-history database. Empty disables history.
	HistoryDBPath string `yaml:"history_db_path"`

	// TagLimit caps how many versions are kept per image.
	TagLimit int `yaml:"tag_limit"`

	// MaxConcurrency bounds the number of images fetched in parallel.
	MaxConcurrency int `yaml:"max_concurrency"`

	// RequestTimeoutSeconds bounds each registry page request.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`

	// InventoryURL is the base URL of the inventory API (sync target).
	InventoryURL string `yaml:"inventory_url"`
}

// Service is one entry of the services list.
type Service struct {
	Name string `json:"name"`
}

// Load reads the YAML config file and fills unset values with defaults.
// A missing file is not an error; it yields the default config.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ServicesPath == "" {
		c.ServicesPath = DefaultServicesPath
	}
	if c.SnapshotPath == "" {
		c.SnapshotPath = DefaultSnapshotPath
	}
	if c.TagLimit <= 0 {
		c.TagLimit = DefaultTagLimit
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
}

// RequestTimeout returns the configured per-request timeout, or zero when
// the registry client default should apply.
func (c *Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// LoadServices reads the services list. A malformed or missing file is
// fatal at startup; there is nothing sensible to scrape without it.
func LoadServices(path string) ([]Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read services file: %w", err)
	}

	var services []Service
	if err := json.Unmarshal(data, &services); err != nil {
		return nil, fmt.Errorf("failed to parse services file %s: %w", path, err)
	}

	for i, svc := range services {
		if svc.Name == "" {
			return nil, fmt.Errorf("services file %s: entry %d is missing a name", path, i)
		}
	}

	return services, nil
}
