package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"housing-scraper/metrics"
	"housing-scraper/models"
	"housing-scraper/utils"
)

// AreaResolver resolves a postcode to a ward name.
type AreaResolver interface {
	Reverse(ctx context.Context, postcode string) (string, error)
}

// AreaStore is the part of the store the backfill needs.
type AreaStore interface {
	ListForBackfill(ctx context.Context, onlyMissing bool) ([]models.AreaTarget, error)
	UpdateArea(ctx context.Context, id int64, area string) error
}

// BackfillOptions tunes BackfillAreas.
type BackfillOptions struct {
	// OnlyMissing skips listings that already have an area.
	OnlyMissing bool
	// DefaultArea is stored when a postcode cannot be resolved.
	DefaultArea string
	Workers     int
	// Interval spaces out lookups; zero means no spacing.
	Interval    time.Duration
	Metrics     *metrics.Metrics
	Logger      *utils.Logger
}

// BackfillResult counts what a backfill did.
type BackfillResult struct {
	Total     int
	Resolved  int
	Defaulted int
	Failed    int
}

// BackfillAreas looks up the ward of every stored postcode and writes it to
// the listing. Lookups that fail for any reason store DefaultArea instead, so
// every scanned listing ends with a non-empty area unless its update fails.
func BackfillAreas(ctx context.Context, store AreaStore, resolver AreaResolver, opts BackfillOptions) (*BackfillResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	if strings.TrimSpace(opts.DefaultArea) == "" {
		opts.DefaultArea = "Manchester"
	}

	targets, err := store.ListForBackfill(ctx, opts.OnlyMissing)
	if err != nil {
		return nil, fmt.Errorf("backfill: %w", err)
	}
	logger.Info("[backfill] %d listings to resolve (only missing: %t)", len(targets), opts.OnlyMissing)

	res := &BackfillResult{Total: len(targets)}
	var mu sync.Mutex
	pool := utils.NewWorkerPool(opts.Workers, opts.Interval)

	for _, target := range targets {
		t := target
		ok := pool.Submit(ctx, func() {
			area, defaulted := resolveArea(ctx, resolver, t.PostalCode, opts.DefaultArea, logger)

			status := "resolved"
			if err := store.UpdateArea(ctx, t.ID, area); err != nil {
				logger.Error("[backfill] Update %d failed: %v", t.ID, err)
				status = "failed"
			} else if defaulted {
				status = "defaulted"
			}
			opts.Metrics.ObserveBackfill(status)

			mu.Lock()
			defer mu.Unlock()
			switch status {
			case "failed":
				res.Failed++
			case "defaulted":
				res.Defaulted++
			default:
				res.Resolved++
			}
		})
		if !ok {
			break
		}
	}
	pool.Wait()

	logger.Info("[backfill] Done: %d resolved, %d defaulted, %d failed of %d",
		res.Resolved, res.Defaulted, res.Failed, res.Total)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func resolveArea(ctx context.Context, resolver AreaResolver, postcode, fallback string, logger *utils.Logger) (string, bool) {
	ward, err := resolver.Reverse(ctx, postcode)
	if err != nil {
		logger.Warn("[backfill] %s: %v; using %q", postcode, err, fallback)
		return fallback, true
	}
	if ward = strings.TrimSpace(ward); ward == "" {
		return fallback, true
	}
	return ward, false
}
