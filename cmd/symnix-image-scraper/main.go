package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/symnixhq/symnix-image-scraper/internal/config"
	"github.com/symnixhq/symnix-image-scraper/internal/inventory"
	"github.com/symnixhq/symnix-image-scraper/internal/logging"
	"github.com/symnixhq/symnix-image-scraper/internal/output"
	"github.com/symnixhq/symnix-image-scraper/internal/registry"
	"github.com/symnixhq/symnix-image-scraper/internal/scraper"
	"github.com/symnixhq/symnix-image-scraper/internal/snapshot"
	"github.com/symnixhq/symnix-image-scraper/internal/storage"
	"github.com/symnixhq/symnix-image-scraper/internal/version"
)

// tokenEnvVar names the environment variable holding the inventory API
// token. It is read once here and injected into the client.
const tokenEnvVar = "SYMNIX_API_TOKEN"

const runTimeout = 30 * time.Minute

func main() {
	var (
		configPath   = pflag.String("config", "config.yaml", "Path to the YAML configuration file")
		servicesPath = pflag.String("services", "", "Path to the services JSON file (overrides config)")
		snapshotPath = pflag.String("snapshot", "", "Path to the snapshot JSON file (overrides config)")
		tagLimit     = pflag.Int("limit", 0, "Maximum versions kept per image (overrides config)")
		enableSync   = pflag.Bool("sync", false, "Push updates to the inventory API")
		jsonOut      = pflag.BoolP("json", "j", false, "Print machine-readable JSON output")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [image]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Scrapes Docker Hub for new image tags. With an image argument\n")
		fmt.Fprintf(os.Stderr, "(name, owner/name or hub browse URL) it looks up that single\n")
		fmt.Fprintf(os.Stderr, "image instead of running the configured scrape.\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	logger := logging.Default()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(logger, *jsonOut, err)
	}
	if *servicesPath != "" {
		cfg.ServicesPath = *servicesPath
	}
	if *snapshotPath != "" {
		cfg.SnapshotPath = *snapshotPath
	}
	if *tagLimit > 0 {
		cfg.TagLimit = *tagLimit
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	hub := registry.NewDockerHubClient(&registry.HubConfig{
		Timeout: cfg.RequestTimeout(),
	})

	// Ad-hoc single-image lookup.
	if pflag.NArg() > 0 {
		if err := lookupImage(ctx, hub, cfg, pflag.Arg(0), *jsonOut); err != nil {
			fatal(logger, *jsonOut, err)
		}
		return
	}

	if err := runScrape(ctx, hub, cfg, logger, *enableSync, *jsonOut); err != nil {
		fatal(logger, *jsonOut, err)
	}
}

// lookupImage fetches and prints the selected versions for one image
// reference or hub browse URL.
func lookupImage(ctx context.Context, hub registry.Client, cfg *config.Config, input string, jsonOut bool) error {
	ref, err := registry.ParseImageRef(input)
	if err != nil {
		return err
	}

	raw, err := hub.ListTags(ctx, ref.Repository)
	if err != nil {
		return err
	}

	selected := version.NewSelector(cfg.TagLimit).Select(raw)

	if jsonOut {
		return output.WriteJSON(os.Stdout, output.SuccessResponse(map[string]interface{}{
			"image":    ref.Name,
			"versions": selected,
		}))
	}

	fmt.Printf("Latest versions for %s:\n", ref.Name)
	for _, tag := range selected {
		fmt.Printf("  %s\n", tag.Version)
	}
	if len(selected) == 0 {
		fmt.Println("  (no version tags found)")
	}
	return nil
}

// runScrape executes the full configured scrape.
func runScrape(ctx context.Context, hub registry.Client, cfg *config.Config, logger *logging.Logger, enableSync, jsonOut bool) error {
	services, err := config.LoadServices(cfg.ServicesPath)
	if err != nil {
		return err
	}

	store := snapshot.NewStore(cfg.SnapshotPath)

	s := scraper.New(hub, store, scraper.Options{
		TagLimit:       cfg.TagLimit,
		MaxConcurrency: cfg.MaxConcurrency,
	})
	s.SetLogger(logger)

	if enableSync {
		token := os.Getenv(tokenEnvVar)
		if token == "" {
			logger.Warn("sync requested but %s is not set, skipping inventory sync", tokenEnvVar)
		} else if cfg.InventoryURL == "" {
			logger.Warn("sync requested but inventory_url is not configured, skipping inventory sync")
		} else {
			s.SetInventory(inventory.NewClient(cfg.InventoryURL, token))
		}
	}

	// History persistence degrades gracefully: a broken database only
	// costs the audit trail, never the run.
	if cfg.HistoryDBPath != "" {
		history, err := storage.NewSQLiteStorage(cfg.HistoryDBPath)
		if err != nil {
			logger.Warn("failed to open history database (continuing without history): %v", err)
		} else {
			defer history.Close()
			s.SetHistory(history)
		}
	}

	result, runErr := s.Run(ctx, services)
	if result != nil {
		printSummary(result, cfg.SnapshotPath, jsonOut)
	}
	return runErr
}

func printSummary(result *scraper.RunResult, snapshotPath string, jsonOut bool) {
	if jsonOut {
		output.WriteJSON(os.Stdout, output.SuccessResponse(map[string]interface{}{
			"run_id":       result.RunID,
			"duration":     result.Duration.String(),
			"total_images": result.TotalImages,
			"updated":      result.Updated,
			"unchanged":    result.Unchanged,
			"failed":       result.Failed,
			"new_versions": result.NewVersions,
			"synced":       result.Synced,
			"deleted":      result.DeletedVersions,
		}))
		return
	}

	if result.Updated > 0 {
		fmt.Printf("Updated tags written to %s (%d of %d images, %d failed)\n",
			snapshotPath, result.Updated, result.TotalImages, result.Failed)
	} else {
		fmt.Printf("No newer tags found. %s remains unchanged.\n", snapshotPath)
	}
}

func fatal(logger *logging.Logger, jsonOut bool, err error) {
	if jsonOut {
		output.WriteJSON(os.Stdout, output.ErrorResponse(err))
	}
	logger.Error("%v", err)
	os.Exit(1)
}
