package storage

import (
	"context"

	"housing-scraper/models"
)

// ListingStore is the interface any listing backend must satisfy.
type ListingStore interface {
	ReplaceListing(ctx context.Context, p *models.ParsedListing) (int64, error)
	UpdateArea(ctx context.Context, id int64, area string) error
	ListForBackfill(ctx context.Context, onlyMissing bool) ([]models.AreaTarget, error)
	ListListings(ctx context.Context, limit int) ([]*models.Listing, error)
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	SearchListings(ctx context.Context, prefix, sort string) ([]*models.Listing, error)
	ListPostcodes(ctx context.Context) ([]string, error)
	FetchAll(ctx context.Context) ([]*models.Listing, error)
	Ping(ctx context.Context) error
	Close() error
}

// RawCardWriter is the interface for persisting unprocessed scraped cards.
type RawCardWriter interface {
	WriteRaw(cards []*models.RawCard) error
	Close() error
}

var (
	_ ListingStore  = (*PostgresStore)(nil)
	_ RawCardWriter = (*CSVWriter)(nil)
)
