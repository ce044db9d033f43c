package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"housing-scraper/geocode"
	"housing-scraper/models"
	"housing-scraper/utils"
)

type fakeSource struct {
	cards []*models.RawCard
	err   error
}

func (f *fakeSource) Scrape(_ context.Context, stats *models.RunStats) ([]*models.RawCard, error) {
	stats.Pages = 1
	stats.CardsSeen = len(f.cards)
	return f.cards, f.err
}

type mockGeocoder struct{ mock.Mock }

func (m *mockGeocoder) Forward(ctx context.Context, area string) (string, error) {
	args := m.Called(ctx, area)
	return args.String(0), args.Error(1)
}

type memStore struct {
	mu      sync.Mutex
	byURL   map[string]*models.ParsedListing
	nextID  int64
	failURL string
}

func newMemStore() *memStore { return &memStore{byURL: make(map[string]*models.ParsedListing)} }

func (s *memStore) ReplaceListing(_ context.Context, p *models.ParsedListing) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.URL == s.failURL {
		return 0, errors.New("postgres: commit: connection reset")
	}
	s.nextID++
	s.byURL[p.URL] = p
	return s.nextID, nil
}

type recordingRaw struct{ got []*models.RawCard }

func (r *recordingRaw) WriteRaw(cards []*models.RawCard) error { r.got = cards; return nil }
func (r *recordingRaw) Close() error                           { return nil }

func rawCard(link, text string) *models.RawCard {
	return &models.RawCard{Page: 1, Text: text, Link: link, ScrapedAt: scrapedAt}
}

const goodText = "2 bathrooms3 BedroomHouse, City Centre, £150 per week added 3rd, from 1st September 2024"

func TestPipelineSkipsBadCardAndContinues(t *testing.T) {
	geo := &mockGeocoder{}
	geo.On("Forward", mock.Anything, "City Centre").Return("M1 1AE", nil)

	store := newMemStore()
	raw := &recordingRaw{}
	src := &fakeSource{cards: []*models.RawCard{
		rawCard("https://x/1", goodText),
		rawCard("https://x/2", "3 BedroomHouse, City Centre, £150 per week added 3rd, from 1st September 2024"),
		rawCard("https://x/3", goodText),
	}}

	p := NewPipeline(PipelineOptions{
		Source:    src,
		Geocoder:  geo,
		Store:     store,
		RawWriter: raw,
		Logger:    utils.NewNopLogger(),
		LockPath:  filepath.Join(t.TempDir(), "run.lock"),
	})
	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, 2, stats.Parsed)
	assert.Equal(t, 1, stats.Skipped[FieldBathrooms])
	assert.Equal(t, 2, stats.Written)
	assert.Zero(t, stats.WriteFailures)
	assert.Len(t, raw.got, 3, "every card reaches the raw audit file")

	require.Contains(t, store.byURL, "https://x/1")
	assert.Equal(t, "M1 1AE", store.byURL["https://x/1"].PostalCode)
	assert.NotContains(t, store.byURL, "https://x/2")
	geo.AssertNumberOfCalls(t, "Forward", 2)
}

func TestPipelineStoresListingWhenGeocodeFails(t *testing.T) {
	geo := &mockGeocoder{}
	geo.On("Forward", mock.Anything, "Mayfield Road").Return("", geocode.ErrNotFound)
	geo.On("Forward", mock.Anything, "Mayfield Road, Fallowfield").Return("", geocode.ErrNetwork)

	store := newMemStore()
	text := "2 bathrooms 4 Bedroom House Mayfield Road, Fallowfield, £120 pppw added today, from 1st July 2024"
	p := NewPipeline(PipelineOptions{
		Source:   &fakeSource{cards: []*models.RawCard{rawCard("https://x/9", text)}},
		Geocoder: geo,
		Store:    store,
	})

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.GeocodeMisses)
	assert.Equal(t, 1, stats.Written)
	require.Contains(t, store.byURL, "https://x/9")
	assert.Empty(t, store.byURL["https://x/9"].PostalCode)
	geo.AssertExpectations(t)
}

func TestPipelineCountsWriteFailures(t *testing.T) {
	store := newMemStore()
	store.failURL = "https://x/1"

	p := NewPipeline(PipelineOptions{
		Source: &fakeSource{cards: []*models.RawCard{rawCard("https://x/1", goodText), rawCard("https://x/2", goodText)}},
		Store:  store,
	})

	stats, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.WriteFailures)
	assert.Equal(t, 1, stats.Written)
}

func TestPipelineFailsWhenLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	held, err := utils.AcquireRunLock(path)
	require.NoError(t, err)
	defer held.Release()

	p := NewPipeline(PipelineOptions{Source: &fakeSource{}, Store: newMemStore(), LockPath: path})
	_, err = p.Run(context.Background())
	assert.ErrorIs(t, err, utils.ErrLocked)
}

func TestPipelineSourceError(t *testing.T) {
	p := NewPipeline(PipelineOptions{
		Source: &fakeSource{err: errors.New("browser not started")},
		Store:  newMemStore(),
	})
	stats, err := p.Run(context.Background())
	require.Error(t, err)
	assert.False(t, stats.FinishedAt.IsZero())
}
