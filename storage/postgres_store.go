package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"housing-scraper/models"
	"housing-scraper/utils"
)

// ErrListingNotFound is returned when no listing has the requested id.
var ErrListingNotFound = errors.New("postgres: listing not found")

// ErrInvalidSort is returned for an unknown sort order.
var ErrInvalidSort = errors.New("postgres: invalid sort order")

// Sort orders accepted by SearchListings.
const (
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
)

const listingColumns = `l.id, l.bedrooms, l.bathrooms, l.property_type, l.road, l.postal_code,
	l.price_per_week, l.date_added, l.available_from, l.url, l.area, l.created_at`

const firstImage = `(SELECT i.url FROM listing_images i
	WHERE i.listing_id = l.id ORDER BY i.position LIMIT 1) AS image`

// PostgresStore persists listings and their images to PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresStore.
func NewPostgresStore(ctx context.Context, dsn string, logger *utils.Logger) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ping := &utils.RetryConfig{MaxAttempts: 10, BaseDelay: 500 * time.Millisecond, Logger: logger}
	if err := ping.Do(ctx, "postgres-ping", func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := NewPostgresStoreFromDB(db)
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return s, nil
}

// NewPostgresStoreFromDB wraps an existing connection without migrating.
func NewPostgresStoreFromDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS listings (
			id             SERIAL PRIMARY KEY,
			bedrooms       INTEGER       NOT NULL,
			bathrooms      INTEGER       NOT NULL,
			property_type  VARCHAR(20)   NOT NULL,
			road           TEXT          NOT NULL DEFAULT '',
			postal_code    VARCHAR(16),
			price_per_week NUMERIC(10,2) NOT NULL,
			date_added     DATE,
			available_from DATE,
			url            TEXT          NOT NULL UNIQUE,
			area           TEXT,
			created_at     TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS listing_images (
			id         SERIAL PRIMARY KEY,
			listing_id INTEGER NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
			url        TEXT    NOT NULL,
			position   INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_listings_postal_code ON listings(postal_code);
		CREATE INDEX IF NOT EXISTS idx_listings_price       ON listings(price_per_week);
		CREATE INDEX IF NOT EXISTS idx_listing_images_listing ON listing_images(listing_id, position);
	`)
	return err
}

// ReplaceListing stores p as the only listing for its URL. Any existing
// listing with that URL and all of its images are removed first; the whole
// replacement commits or rolls back as one unit.
func (s *PostgresStore) ReplaceListing(ctx context.Context, p *models.ParsedListing) (int64, error) {
	if p.URL == "" {
		return 0, fmt.Errorf("postgres: replace listing: empty url")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM listing_images WHERE listing_id IN (SELECT id FROM listings WHERE url = $1)`,
		p.URL,
	); err != nil {
		return 0, fmt.Errorf("postgres: delete images for %s: %w", p.URL, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE url = $1`, p.URL); err != nil {
		return 0, fmt.Errorf("postgres: delete listing %s: %w", p.URL, err)
	}

	var id int64
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO listings (bedrooms, bathrooms, property_type, road, postal_code,
		                      price_per_week, date_added, available_from, url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`,
		p.Bedrooms, p.Bathrooms, p.PropertyType, p.Road, nullString(p.PostalCode),
		p.PricePerWeek, nullDate(p.DateAdded), nullDate(p.AvailableFrom), p.URL,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert listing %s: %w", p.URL, err)
	}

	for pos, img := range p.ImageURLs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO listing_images (listing_id, url, position) VALUES ($1, $2, $3)`,
			id, img, pos,
		); err != nil {
			return 0, fmt.Errorf("postgres: insert image %d for %s: %w", pos, p.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("postgres: commit %s: %w", p.URL, err)
	}
	return id, nil
}

// UpdateArea sets the ward name of one listing.
func (s *PostgresStore) UpdateArea(ctx context.Context, id int64, area string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE listings SET area = $1 WHERE id = $2`, area, id)
	if err != nil {
		return fmt.Errorf("postgres: update area %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrListingNotFound
	}
	return nil
}

// ListForBackfill returns listings that have a postcode. With onlyMissing,
// listings that already have an area are left out.
func (s *PostgresStore) ListForBackfill(ctx context.Context, onlyMissing bool) ([]models.AreaTarget, error) {
	query := `SELECT id, postal_code FROM listings WHERE postal_code IS NOT NULL AND postal_code <> ''`
	if onlyMissing {
		query += ` AND (area IS NULL OR area = '')`
	}
	query += ` ORDER BY id`

	var targets []models.AreaTarget
	if err := s.db.SelectContext(ctx, &targets, query); err != nil {
		return nil, fmt.Errorf("postgres: list for backfill: %w", err)
	}
	return targets, nil
}

// ListListings returns up to limit listings, each with its first image.
// A non-positive limit returns everything.
func (s *PostgresStore) ListListings(ctx context.Context, limit int) ([]*models.Listing, error) {
	query := `SELECT ` + listingColumns + `, ` + firstImage + ` FROM listings l ORDER BY l.id`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	var listings []*models.Listing
	if err := s.db.SelectContext(ctx, &listings, query, args...); err != nil {
		return nil, fmt.Errorf("postgres: list listings: %w", err)
	}
	return listings, nil
}

// GetListing returns one listing with all of its images in carousel order.
func (s *PostgresStore) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	var l models.Listing
	err := s.db.GetContext(ctx, &l, `SELECT `+listingColumns+`, `+firstImage+` FROM listings l WHERE l.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get listing %d: %w", id, err)
	}

	if err := s.db.SelectContext(ctx, &l.Images,
		`SELECT id, listing_id, url, position FROM listing_images WHERE listing_id = $1 ORDER BY position`, id,
	); err != nil {
		return nil, fmt.Errorf("postgres: images for %d: %w", id, err)
	}
	return &l, nil
}

// SearchListings returns listings whose postcode starts with prefix
// (case-insensitive), ordered by weekly price. An empty prefix matches all.
func (s *PostgresStore) SearchListings(ctx context.Context, prefix, sort string) ([]*models.Listing, error) {
	var order string
	switch sort {
	case "", SortPriceAsc:
		order = "ASC"
	case SortPriceDesc:
		order = "DESC"
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSort, sort)
	}

	query := `SELECT ` + listingColumns + `, ` + firstImage + ` FROM listings l`
	var args []any
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		query += ` WHERE l.postal_code ILIKE $1`
		args = append(args, escapeLike(prefix)+"%")
	}
	query += ` ORDER BY l.price_per_week ` + order + `, l.id`

	var listings []*models.Listing
	if err := s.db.SelectContext(ctx, &listings, query, args...); err != nil {
		return nil, fmt.Errorf("postgres: search listings: %w", err)
	}
	return listings, nil
}

// ListPostcodes returns every distinct stored postcode.
func (s *PostgresStore) ListPostcodes(ctx context.Context) ([]string, error) {
	var pcs []string
	err := s.db.SelectContext(ctx, &pcs, `
		SELECT DISTINCT postal_code FROM listings
		WHERE postal_code IS NOT NULL AND postal_code <> ''
		ORDER BY postal_code
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list postcodes: %w", err)
	}
	return pcs, nil
}

// FetchAll retrieves all stored listings; used by the report.
func (s *PostgresStore) FetchAll(ctx context.Context) ([]*models.Listing, error) {
	return s.ListListings(ctx, 0)
}

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func nullString(v string) sql.NullString {
	v = strings.TrimSpace(v)
	return sql.NullString{String: v, Valid: v != ""}
}

func nullDate(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
