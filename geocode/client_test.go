package geocode

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	base := "http://127.0.0.1:1"
	if srv != nil {
		base = srv.URL
	}
	return New(Options{
		NominatimURL: base,
		PostcodesURL: base,
		City:         "Manchester, United Kingdom",
		Timeout:      2 * time.Second,
		MaxRetries:   2,
		RetryDelay:   time.Millisecond,
	})
}

func TestForwardReturnsTopPostcode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Wilmslow Road, Manchester, United Kingdom", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("addressdetails"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`[{"address":{"postcode":"M14 6HR"}},{"address":{"postcode":"M20 1AA"}}]`))
	}))
	defer srv.Close()

	pc, err := newTestClient(t, srv).Forward(context.Background(), "Wilmslow Road")
	require.NoError(t, err)
	assert.Equal(t, "M14 6HR", pc)
}

func TestForwardNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Forward(context.Background(), "Nowhere Lane")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestForwardStatusError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Forward(context.Background(), "Oxford Road")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLookupFailed)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx is not retried")
}

func TestForwardRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"address":{"postcode":"M13 9PL"}}]`))
	}))
	defer srv.Close()

	pc, err := newTestClient(t, srv).Forward(context.Background(), "Oxford Road")
	require.NoError(t, err)
	assert.Equal(t, "M13 9PL", pc)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestReverseWard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/postcodes/M146HR", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":200,"result":{"admin_ward":"Withington","admin_district":"Manchester"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	first, err := c.Reverse(context.Background(), "m14 6hr")
	require.NoError(t, err)
	second, err := c.Reverse(context.Background(), "M14 6HR")
	require.NoError(t, err)

	assert.Equal(t, "Withington", first)
	assert.Equal(t, first, second)
}

func TestReverseStaticTableSkipsNetwork(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"status":200,"result":{"admin_ward":"Live Ward"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	for _, pc := range []string{"M13", "m13", " M 13 "} {
		ward, err := c.Reverse(context.Background(), pc)
		require.NoError(t, err)
		assert.Equal(t, "Fallowfield", ward)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestReverseDistinguishesFailures(t *testing.T) {
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":404,"error":"Invalid postcode"}`))
	}))
	defer notFound.Close()

	emptyOK := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":200,"result":null}`))
	}))
	defer emptyOK.Close()

	malformed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer malformed.Close()

	ctx := context.Background()

	_, errInvalid := newTestClient(t, notFound).Reverse(ctx, "ZZ99 9ZZ")
	_, errEmpty := newTestClient(t, emptyOK).Reverse(ctx, "M14 6HR")
	_, errMalformed := newTestClient(t, malformed).Reverse(ctx, "M14 6HR")
	_, errNetwork := newTestClient(t, nil).Reverse(ctx, "M14 6HR")

	assert.ErrorIs(t, errInvalid, ErrInvalidPostcode)
	assert.NotErrorIs(t, errInvalid, ErrLookupFailed)
	assert.NotErrorIs(t, errInvalid, ErrNetwork)

	assert.ErrorIs(t, errEmpty, ErrLookupFailed)
	assert.NotErrorIs(t, errEmpty, ErrInvalidPostcode)
	assert.NotErrorIs(t, errEmpty, ErrNetwork)

	assert.ErrorIs(t, errMalformed, ErrLookupFailed)

	assert.ErrorIs(t, errNetwork, ErrNetwork)
	assert.NotErrorIs(t, errNetwork, ErrLookupFailed)
	assert.NotErrorIs(t, errNetwork, ErrInvalidPostcode)
}

func TestReverseEmptyPostcode(t *testing.T) {
	_, err := newTestClient(t, nil).Reverse(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrInvalidPostcode)
}

func TestReverseHonoursTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := New(Options{PostcodesURL: srv.URL, Timeout: 50 * time.Millisecond, MaxRetries: 1})
	_, err := c.Reverse(context.Background(), "M14 6HR")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)

	var ne net.Error
	if errors.As(err, &ne) {
		assert.True(t, ne.Timeout())
	}
}

func TestWardOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wards.yaml")
	require.NoError(t, os.WriteFile(path, []byte("wards:\n  m14 6hr: Old Moat\n  M13: Rusholme\n  '': ignored\n"), 0o644))

	table := NewWardTable()
	before := table.Len()
	require.NoError(t, table.LoadOverrides(path))

	ward, ok := table.Lookup("M14 6HR")
	assert.True(t, ok)
	assert.Equal(t, "Old Moat", ward)

	ward, ok = table.Lookup("m13")
	assert.True(t, ok)
	assert.Equal(t, "Rusholme", ward)
	assert.Equal(t, before+1, table.Len())

	_, ok = table.Lookup("M14 6HS")
	assert.False(t, ok, "lookup is exact, not by prefix")
}

func TestWardOverridesMissingFile(t *testing.T) {
	err := NewWardTable().LoadOverrides(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
