package cmd

import (
	"context"
	"fmt"
	"time"

	"housing-scraper/config"
	"housing-scraper/geocode"
	"housing-scraper/metrics"
	"housing-scraper/scraper/unihomes"
	"housing-scraper/services"
	"housing-scraper/storage"
	"housing-scraper/utils"
)

func newGeocoder(cfg *config.Config, logger *utils.Logger) (*geocode.Client, error) {
	wards := geocode.NewWardTable()
	if cfg.WardOverridesPath != "" {
		if err := wards.LoadOverrides(cfg.WardOverridesPath); err != nil {
			return nil, err
		}
		logger.Info("[geocode] Loaded ward overrides from %s (%d entries)", cfg.WardOverridesPath, wards.Len())
	}

	return geocode.New(geocode.Options{
		NominatimURL: cfg.NominatimURL,
		PostcodesURL: cfg.PostcodesURL,
		City:         cfg.City,
		UserAgent:    cfg.GeocodeUserAgent,
		Timeout:      cfg.GeocodeTimeout,
		NominatimRPS: cfg.NominatimRPS,
		PostcodesRPS: cfg.PostcodesRPS,
		MaxRetries:   cfg.MaxRetries,
		Wards:        wards,
		Logger:       logger,
	}), nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*storage.PostgresStore, error) {
	store, err := storage.NewPostgresStore(ctx, cfg.DSN(), logger)
	if err != nil {
		logger.Error("Make sure PostgreSQL is running: docker compose up -d")
		return nil, err
	}
	return store, nil
}

// runScrape performs one full pipeline pass.
func runScrape(ctx context.Context, cfg *config.Config, logger *utils.Logger, store storage.ListingStore, geo *geocode.Client, m *metrics.Metrics) error {
	csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
	if err != nil {
		return err
	}
	defer csvWriter.Close()

	pipeline := services.NewPipeline(services.PipelineOptions{
		Source:    unihomes.New(cfg, logger),
		Geocoder:  geo,
		Store:     store,
		RawWriter: csvWriter,
		Metrics:   m,
		Logger:    logger,
		LockPath:  cfg.LockPath,
	})

	stats, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("Run %s finished in %v: %d/%d cards stored, raw cards saved to %s",
		stats.RunID, stats.Duration().Round(time.Second), stats.Written, stats.CardsSeen, cfg.CSVOutputPath)
	if stats.Written == 0 {
		return fmt.Errorf("no listings were stored")
	}
	return nil
}

func runBackfill(ctx context.Context, cfg *config.Config, logger *utils.Logger, store storage.ListingStore, geo *geocode.Client, m *metrics.Metrics, onlyMissing bool) error {
	_, err := services.BackfillAreas(ctx, store, geo, services.BackfillOptions{
		OnlyMissing: onlyMissing,
		DefaultArea: cfg.DefaultArea,
		Workers:     cfg.BackfillWorkers,
		Metrics:     m,
		Logger:      logger,
	})
	return err
}
