package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"housing-scraper/models"
	"housing-scraper/utils"
)

var scrapedAt = time.Date(2024, time.March, 10, 14, 0, 0, 0, time.UTC)

func newTestExtractor() *Extractor { return NewExtractor(utils.NewNopLogger()) }

func card(text string) *models.RawCard {
	return &models.RawCard{
		Text:      text,
		Link:      "https://www.unihomes.co.uk/property/1234",
		ImageURLs: []string{"https://img.unihomes.co.uk/a.jpg"},
		ScrapedAt: scrapedAt,
	}
}

func TestExtractTemplateNumbers(t *testing.T) {
	e := newTestExtractor()

	got, err := e.Extract(card("2 bathrooms3 BedroomHouse, City Centre, £150 per week added 3rd, from 1st September 2024"))
	require.NoError(t, err)

	assert.Equal(t, 3, got.Bedrooms)
	assert.Equal(t, 2, got.Bathrooms)
	assert.Equal(t, 150.0, got.PricePerWeek)
	assert.Equal(t, "House", got.PropertyType)
	assert.Equal(t, "City Centre", got.Road)
	assert.Equal(t, "3rd", got.DateAddedRaw)
	assert.Nil(t, got.DateAdded, "a bare day ordinal is not a calendar date")
	require.NotNil(t, got.AvailableFrom)
	assert.Equal(t, time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC), *got.AvailableFrom)
	assert.Equal(t, "https://www.unihomes.co.uk/property/1234", got.URL)
}

func TestExtractRenderedCard(t *testing.T) {
	e := newTestExtractor()
	text := "Featured\nBills Included\n2 bathrooms\n4 Bedroom\nHouse\nMayfield Road, Fallowfield, Manchester\n" +
		"£1,125.50 pppw\nadded 23rd January 2024\nAvailable from 4th July 2024"

	got, err := e.Extract(card(text))
	require.NoError(t, err)

	assert.Equal(t, 4, got.Bedrooms)
	assert.Equal(t, 2, got.Bathrooms)
	assert.Equal(t, 1125.50, got.PricePerWeek)
	assert.Equal(t, "Mayfield Road", got.Road)
	assert.Equal(t, "Fallowfield, Manchester", got.Locality)
	require.NotNil(t, got.DateAdded)
	assert.Equal(t, time.Date(2024, time.January, 23, 0, 0, 0, 0, time.UTC), *got.DateAdded)
	require.NotNil(t, got.AvailableFrom)
	assert.Equal(t, time.Date(2024, time.July, 4, 0, 0, 0, 0, time.UTC), *got.AvailableFrom)
}

func TestExtractApartmentAndRelativeDate(t *testing.T) {
	e := newTestExtractor()

	got, err := e.Extract(card("1 bathroom 1 Bedroom Apartment Oxford Road, £210 per week added yesterday, from now"))
	require.NoError(t, err)

	assert.Equal(t, "Apartment", got.PropertyType)
	assert.Equal(t, 1, got.Bathrooms)
	require.NotNil(t, got.DateAdded)
	assert.Equal(t, time.Date(2024, time.March, 9, 0, 0, 0, 0, time.UTC), *got.DateAdded)
	require.NotNil(t, got.AvailableFrom)
	assert.Equal(t, time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC), *got.AvailableFrom)
}

func TestExtractMissingFields(t *testing.T) {
	e := newTestExtractor()

	tests := []struct {
		name    string
		text    string
		link    string
		missing []string
	}{
		{
			name:    "no bathrooms",
			text:    "3 BedroomHouse, City Centre, £150 per week added 3rd, from 1st September 2024",
			link:    "https://x/1",
			missing: []string{FieldBathrooms},
		},
		{
			name:    "no type marker",
			text:    "2 bathrooms3 Bedroom Bungalow, City Centre, £150 per week added 3rd, from 1st September 2024",
			link:    "https://x/2",
			missing: []string{FieldPropertyType, FieldAddress, FieldPrice, FieldAdded, FieldAvailableFrom},
		},
		{
			name:    "no price",
			text:    "2 bathrooms3 BedroomHouse, City Centre, POA added 3rd, from 1st September 2024",
			link:    "https://x/3",
			missing: []string{FieldPrice, FieldAdded, FieldAvailableFrom},
		},
		{
			name:    "no availability",
			text:    "2 bathrooms3 BedroomHouse, City Centre, £150 per week added 3rd",
			link:    "https://x/4",
			missing: []string{FieldAvailableFrom},
		},
		{
			name:    "no link",
			text:    "2 bathrooms3 BedroomHouse, City Centre, £150 per week added 3rd, from 1st September 2024",
			link:    "",
			missing: []string{FieldLink},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := card(tt.text)
			c.Link = tt.link

			got, err := e.Extract(c)
			assert.Nil(t, got)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrParse))

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.missing, pe.Missing)
		})
	}
}

func TestExtractDedupesImages(t *testing.T) {
	e := newTestExtractor()
	c := card("2 bathrooms3 BedroomHouse, City Centre, £150 per week added 3rd, from 1st September 2024")
	c.ImageURLs = []string{"https://img/a.jpg", "data:image/gif;base64,R0lGOD", "https://img/a.jpg", " https://img/b.jpg "}

	got, err := e.Extract(c)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img/a.jpg", "https://img/b.jpg"}, got.ImageURLs)
}

func TestNormalizeCardTextStripsBanners(t *testing.T) {
	got := NormalizeCardText("Featured\n 2 bathrooms \n\nBills Included 3 Bedroom")
	assert.Equal(t, "2 bathrooms 3 Bedroom", got)
}

func TestTokenizeReportsPresence(t *testing.T) {
	f := Tokenize("2 bathrooms 3 Bedroom House")

	assert.True(t, f.Bathrooms.Present)
	assert.True(t, f.Bedrooms.Present)
	assert.True(t, f.PropertyType.Present)
	assert.False(t, f.Address.Present)
	assert.False(t, f.Price.Present)
	assert.Equal(t, []string{FieldAddress, FieldPrice, FieldAdded, FieldAvailableFrom}, f.Missing())
}
