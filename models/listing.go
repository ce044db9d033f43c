package models

import "time"

// RawCard holds the unprocessed data for one listing card exactly as the
// browser rendered it. It is written to CSV before any parsing.
type RawCard struct {
	Page      int
	Text      string
	Link      string
	ImageURLs []string
	ScrapedAt time.Time
}

// ParsedListing is the Extractor's output: a card's fields recovered and
// validated, ready for geocoding and storage.
type ParsedListing struct {
	Bedrooms     int
	Bathrooms    int
	PropertyType string
	Road         string
	Locality     string
	PostalCode   string
	PricePerWeek float64

	DateAdded        *time.Time
	DateAddedRaw     string
	AvailableFrom    *time.Time
	AvailableFromRaw string

	URL       string
	ImageURLs []string
}

// Listing is one stored property record.
type Listing struct {
	ID            int64      `db:"id" json:"id"`
	Bedrooms      int        `db:"bedrooms" json:"bedrooms"`
	Bathrooms     int        `db:"bathrooms" json:"bathrooms"`
	PropertyType  string     `db:"property_type" json:"property_type"`
	Road          string     `db:"road" json:"road"`
	PostalCode    *string    `db:"postal_code" json:"postal_code"`
	PricePerWeek  float64    `db:"price_per_week" json:"price_per_week"`
	DateAdded     *time.Time `db:"date_added" json:"date_added"`
	AvailableFrom *time.Time `db:"available_from" json:"available_from"`
	URL           string     `db:"url" json:"url"`
	Area          *string    `db:"area" json:"area"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`

	// Image is the first carousel image, filled by list queries.
	Image  *string `db:"image" json:"image,omitempty"`
	Images []Image `db:"-" json:"images,omitempty"`
}

// Image belongs to exactly one Listing and is replaced with it.
type Image struct {
	ID        int64  `db:"id" json:"id"`
	ListingID int64  `db:"listing_id" json:"listing_id"`
	URL       string `db:"url" json:"url"`
	Position  int    `db:"position" json:"position"`
}

// AreaTarget is a stored listing whose postcode needs a ward name.
type AreaTarget struct {
	ID         int64  `db:"id"`
	PostalCode string `db:"postal_code"`
}

// RunStats counts what happened during one scrape run.
type RunStats struct {
	RunID         string
	Pages         int
	PagesFailed   int
	CardsSeen     int
	Duplicates    int
	Parsed        int
	Skipped       map[string]int
	GeocodeMisses int
	Written       int
	WriteFailures int
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Duration reports how long the run took.
func (s *RunStats) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// SkippedTotal sums skipped cards over every reason.
func (s *RunStats) SkippedTotal() int {
	total := 0
	for _, n := range s.Skipped {
		total += n
	}
	return total
}

// MarketReport holds summary figures computed over the stored listings.
type MarketReport struct {
	TotalListings   int            `json:"total_listings"`
	PricedListings  int            `json:"priced_listings"`
	AveragePrice    float64        `json:"average_price"`
	MinPrice        float64        `json:"min_price"`
	MaxPrice        float64        `json:"max_price"`
	Cheapest        *Listing       `json:"cheapest,omitempty"`
	MostExpensive   *Listing       `json:"most_expensive,omitempty"`
	ListingsByArea  map[string]int `json:"listings_by_area"`
	ListingsByRooms map[int]int    `json:"listings_by_bedrooms"`
	AvgPricePerRoom float64        `json:"average_price_per_bedroom"`
	WithoutPostcode int            `json:"without_postcode"`
}
