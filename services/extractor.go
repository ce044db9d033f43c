package services

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"housing-scraper/models"
	"housing-scraper/utils"
)

// Field names reported by ParseError.Missing.
const (
	FieldBathrooms     = "bathrooms"
	FieldBedrooms      = "bedrooms"
	FieldPropertyType  = "property_type"
	FieldAddress       = "address"
	FieldPrice         = "price"
	FieldAdded         = "added"
	FieldAvailableFrom = "available_from"
	FieldLink          = "link"
)

// ErrParse is wrapped by every ParseError.
var ErrParse = errors.New("listing parse failed")

// ParseError reports which fields a card was missing.
type ParseError struct {
	Link    string
	Missing []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: missing %s", e.Link, strings.Join(e.Missing, ", "))
}

func (e *ParseError) Unwrap() error { return ErrParse }

// noiseTokens are banner labels that can appear anywhere in a card.
var noiseTokens = []string{"Featured", "Bills Included"}

var (
	bathroomsRe = regexp.MustCompile(`(?i)(\d+)\s*bathrooms?`)
	bedroomsRe  = regexp.MustCompile(`(?i)(\d+)\s*bedrooms?`)
	typeRe      = regexp.MustCompile(`House|Apartment`)
	priceRe     = regexp.MustCompile(`£\s*([\d,]+(?:\.\d+)?)`)
	addedRe     = regexp.MustCompile(`(?i)\badded\s+(.*?)\s*(?:,|\bavailable\b|\bfrom\b|$)`)
	fromRe      = regexp.MustCompile(`(?i)\bfrom\s+`)
)

// Field is one labeled token recovered from card text.
type Field struct {
	Value   string
	Present bool
}

func present(v string) Field { return Field{Value: v, Present: true} }

// CardFields is the labeled tokenization of one card. Every field records
// whether it was found, so a partial card is data rather than a crash.
type CardFields struct {
	Bathrooms     Field
	Bedrooms      Field
	PropertyType  Field
	Address       Field
	Price         Field
	Added         Field
	AvailableFrom Field
}

// Missing lists the names of absent fields in card order.
func (f CardFields) Missing() []string {
	var missing []string
	check := []struct {
		name  string
		field Field
	}{
		{FieldBathrooms, f.Bathrooms},
		{FieldBedrooms, f.Bedrooms},
		{FieldPropertyType, f.PropertyType},
		{FieldAddress, f.Address},
		{FieldPrice, f.Price},
		{FieldAdded, f.Added},
		{FieldAvailableFrom, f.AvailableFrom},
	}
	for _, c := range check {
		if !c.field.Present {
			missing = append(missing, c.name)
		}
	}
	return missing
}

// NormalizeCardText flattens rendered card text onto one line and removes
// banner labels that carry no listing data.
func NormalizeCardText(raw string) string {
	s := strings.ReplaceAll(raw, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	for _, tok := range noiseTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	return normaliseText(s)
}

// Tokenize locates each labeled field in normalized card text. Fields after
// the property type marker are searched for in the remaining text only, so
// a road name containing "£" or "added" cannot shadow the summary block.
func Tokenize(text string) CardFields {
	var f CardFields

	if m := bathroomsRe.FindStringSubmatch(text); m != nil {
		f.Bathrooms = present(m[1])
	}

	loc := bedroomsRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return f
	}
	f.Bedrooms = present(text[loc[2]:loc[3]])

	rest := text[loc[1]:]
	tloc := typeRe.FindStringIndex(rest)
	if tloc == nil {
		return f
	}
	f.PropertyType = present(rest[tloc[0]:tloc[1]])
	rest = rest[tloc[1]:]

	ploc := priceRe.FindStringSubmatchIndex(rest)
	if ploc == nil {
		if addr := cleanAddress(rest); addr != "" {
			f.Address = present(addr)
		}
		return f
	}
	if addr := cleanAddress(rest[:ploc[0]]); addr != "" {
		f.Address = present(addr)
	}
	f.Price = present(strings.ReplaceAll(rest[ploc[2]:ploc[3]], ",", ""))
	rest = rest[ploc[1]:]

	if m := addedRe.FindStringSubmatch(rest); m != nil {
		f.Added = Field{Value: strings.TrimSpace(m[1]), Present: true}
	}

	if all := fromRe.FindAllStringIndex(rest, -1); len(all) > 0 {
		last := all[len(all)-1]
		v := rest[last[1]:]
		if i := strings.Index(v, ","); i >= 0 {
			v = v[:i]
		}
		if v = strings.TrimSpace(v); v != "" {
			f.AvailableFrom = present(v)
		}
	}

	return f
}

func cleanAddress(s string) string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// Extractor turns raw cards into validated listings.
type Extractor struct {
	logger *utils.Logger
	now    func() time.Time
}

// NewExtractor creates an Extractor with the given logger.
func NewExtractor(logger *utils.Logger) *Extractor {
	return &Extractor{logger: logger, now: time.Now}
}

// Extract parses one card. A card missing any required field yields a
// *ParseError naming every absent field. Unparseable dates are kept as raw
// text and do not fail the card.
func (e *Extractor) Extract(card *models.RawCard) (*models.ParsedListing, error) {
	text := NormalizeCardText(card.Text)
	f := Tokenize(text)

	link := strings.TrimSpace(card.Link)
	missing := f.Missing()
	if link == "" {
		missing = append(missing, FieldLink)
	}
	if len(missing) > 0 {
		return nil, &ParseError{Link: link, Missing: missing}
	}

	bathrooms, err := strconv.Atoi(f.Bathrooms.Value)
	if err != nil {
		return nil, &ParseError{Link: link, Missing: []string{FieldBathrooms}}
	}
	bedrooms, err := strconv.Atoi(f.Bedrooms.Value)
	if err != nil {
		return nil, &ParseError{Link: link, Missing: []string{FieldBedrooms}}
	}
	price, err := strconv.ParseFloat(f.Price.Value, 64)
	if err != nil {
		return nil, &ParseError{Link: link, Missing: []string{FieldPrice}}
	}

	ref := card.ScrapedAt
	if ref.IsZero() {
		ref = e.now()
	}

	road, locality := splitAddress(f.Address.Value)
	pl := &models.ParsedListing{
		Bedrooms:         bedrooms,
		Bathrooms:        bathrooms,
		PropertyType:     f.PropertyType.Value,
		Road:             road,
		Locality:         locality,
		PricePerWeek:     price,
		DateAddedRaw:     f.Added.Value,
		AvailableFromRaw: f.AvailableFrom.Value,
		URL:              link,
		ImageURLs:        dedupeImages(card.ImageURLs),
	}

	if d, ok := ParseListingDate(f.Added.Value, ref); ok {
		pl.DateAdded = &d
	} else if e.logger != nil {
		e.logger.Debug("[extractor] Unparsed date added %q for %s", f.Added.Value, link)
	}
	if d, ok := ParseListingDate(f.AvailableFrom.Value, ref); ok {
		pl.AvailableFrom = &d
	} else if e.logger != nil {
		e.logger.Debug("[extractor] Unparsed available-from %q for %s", f.AvailableFrom.Value, link)
	}

	return pl, nil
}

func splitAddress(addr string) (road, locality string) {
	road, locality, _ = strings.Cut(addr, ",")
	return strings.TrimSpace(road), strings.TrimSpace(locality)
}

func dedupeImages(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || strings.HasPrefix(u, "data:") {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	s = strings.TrimSpace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
