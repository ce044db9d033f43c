package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"housing-scraper/geocode"
	"housing-scraper/metrics"
	"housing-scraper/models"
	"housing-scraper/storage"
	"housing-scraper/utils"
)

// CardSource yields the raw cards of one scrape, recording page counters
// in stats.
type CardSource interface {
	Scrape(ctx context.Context, stats *models.RunStats) ([]*models.RawCard, error)
}

// PostcodeFinder resolves a free-text area to a postcode.
type PostcodeFinder interface {
	Forward(ctx context.Context, area string) (string, error)
}

// ListingWriter replaces the stored listing for a URL.
type ListingWriter interface {
	ReplaceListing(ctx context.Context, p *models.ParsedListing) (int64, error)
}

// PipelineOptions wires a Pipeline. RawWriter, Metrics and LockPath are optional.
type PipelineOptions struct {
	Source    CardSource
	Geocoder  PostcodeFinder
	Store     ListingWriter
	RawWriter storage.RawCardWriter
	Metrics   *metrics.Metrics
	Logger    *utils.Logger
	LockPath  string
}

// Pipeline runs one pass: scrape, extract, geocode, store.
type Pipeline struct {
	opts      PipelineOptions
	extractor *Extractor
	logger    *utils.Logger
	now       func() time.Time
}

// NewPipeline creates a Pipeline from opts.
func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = utils.NewNopLogger()
	}
	return &Pipeline{
		opts:      opts,
		extractor: NewExtractor(opts.Logger),
		logger:    opts.Logger,
		now:       time.Now,
	}
}

// Run scrapes every configured page and stores each listing that parses.
// A listing that fails to parse, geocode or write is logged and counted and
// the run moves on. Run only fails when the lock is held, the source fails
// outright, or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) (stats *models.RunStats, err error) {
	stats = &models.RunStats{
		RunID:     uuid.NewString(),
		Skipped:   make(map[string]int),
		StartedAt: p.now(),
	}
	logger := p.logger.With("run_id", stats.RunID)

	defer func() {
		stats.FinishedAt = p.now()
		p.opts.Metrics.ObserveRun(stats, err)
		if err != nil {
			logger.Error("[pipeline] Run failed after %v: %v", stats.Duration().Round(time.Second), err)
		}
	}()

	if p.opts.LockPath != "" {
		lock, lerr := utils.AcquireRunLock(p.opts.LockPath)
		if lerr != nil {
			return stats, fmt.Errorf("pipeline: %w", lerr)
		}
		defer lock.Release()
	}

	logger.Info("[pipeline] Run %s starting", stats.RunID)

	cards, err := p.opts.Source.Scrape(ctx, stats)
	if err != nil {
		return stats, fmt.Errorf("pipeline: scrape: %w", err)
	}
	logger.Info("[pipeline] Scraped %d cards from %d pages", len(cards), stats.Pages)

	if p.opts.RawWriter != nil {
		if werr := p.opts.RawWriter.WriteRaw(cards); werr != nil {
			logger.Warn("[pipeline] Raw CSV write failed: %v", werr)
		}
	}

	for _, card := range cards {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		p.process(ctx, logger, card, stats)
	}

	logger.Info("[pipeline] Run complete: %d parsed, %d skipped, %d geocode misses, %d written, %d write failures",
		stats.Parsed, stats.SkippedTotal(), stats.GeocodeMisses, stats.Written, stats.WriteFailures)
	return stats, nil
}

func (p *Pipeline) process(ctx context.Context, logger *utils.Logger, card *models.RawCard, stats *models.RunStats) {
	listing, err := p.extractor.Extract(card)
	if err != nil {
		reason := "unknown"
		var pe *ParseError
		if errors.As(err, &pe) && len(pe.Missing) > 0 {
			reason = pe.Missing[0]
		}
		stats.Skipped[reason]++
		logger.Warn("[pipeline] Skipping card on page %d: %v", card.Page, err)
		return
	}
	stats.Parsed++

	if p.opts.Geocoder != nil {
		pc, gerr := p.findPostcode(ctx, listing)
		if gerr != nil {
			stats.GeocodeMisses++
			logger.Warn("[pipeline] No postcode for %q: %v", listing.Road, gerr)
		}
		listing.PostalCode = pc
	}

	if _, err := p.opts.Store.ReplaceListing(ctx, listing); err != nil {
		stats.WriteFailures++
		logger.Error("[pipeline] Write failed for %s: %v", listing.URL, err)
		return
	}
	stats.Written++
}

// findPostcode tries the road first and retries with the full address when
// the road alone has no match.
func (p *Pipeline) findPostcode(ctx context.Context, l *models.ParsedListing) (string, error) {
	pc, err := p.opts.Geocoder.Forward(ctx, l.Road)
	if err == nil || !errors.Is(err, geocode.ErrNotFound) || l.Locality == "" {
		return pc, err
	}
	return p.opts.Geocoder.Forward(ctx, l.Road+", "+l.Locality)
}
