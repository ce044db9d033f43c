// Package geocode resolves free-text areas to UK postcodes and postcodes to
// ward names using Nominatim and postcodes.io.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"housing-scraper/utils"
)

const maxBodyBytes = 1 << 20

// Options configures a Client. Zero values get sensible defaults.
type Options struct {
	NominatimURL string
	PostcodesURL string
	City         string
	UserAgent    string
	Timeout      time.Duration
	NominatimRPS float64
	PostcodesRPS float64
	MaxRetries   int
	RetryDelay   time.Duration

	Wards      *WardTable
	HTTPClient *http.Client
	Logger     *utils.Logger
}

// Client talks to the forward and reverse geocoding services. It is safe
// for concurrent use; each service has its own rate limiter.
type Client struct {
	hc           *http.Client
	nominatimURL string
	postcodesURL string
	city         string
	userAgent    string

	nominatimLimiter *rate.Limiter
	postcodesLimiter *rate.Limiter

	wards  *WardTable
	retry  *utils.RetryConfig
	logger *utils.Logger
}

// New builds a Client from opts.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "housing-scraper/1.0"
	}
	if opts.Wards == nil {
		opts.Wards = NewWardTable()
	}
	if opts.Logger == nil {
		opts.Logger = utils.NewNopLogger()
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		hc:               hc,
		nominatimURL:     strings.TrimRight(opts.NominatimURL, "/"),
		postcodesURL:     strings.TrimRight(opts.PostcodesURL, "/"),
		city:             opts.City,
		userAgent:        opts.UserAgent,
		nominatimLimiter: newLimiter(opts.NominatimRPS),
		postcodesLimiter: newLimiter(opts.PostcodesRPS),
		wards:            opts.Wards,
		retry: &utils.RetryConfig{
			MaxAttempts: opts.MaxRetries,
			BaseDelay:   opts.RetryDelay,
			Logger:      opts.Logger,
			Retryable:   retryable,
		},
		logger: opts.Logger,
	}
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

type nominatimPlace struct {
	Address struct {
		Postcode string `json:"postcode"`
	} `json:"address"`
}

// Forward returns the postcode of the top search result for area in the
// configured city.
func (c *Client) Forward(ctx context.Context, area string) (string, error) {
	area = strings.TrimSpace(area)
	if area == "" {
		return "", ErrNotFound
	}

	q := url.Values{}
	q.Set("q", area+", "+c.city)
	q.Set("format", "json")
	q.Set("addressdetails", "1")
	endpoint := c.nominatimURL + "/search?" + q.Encode()

	var postcode string
	err := c.retry.Do(ctx, "nominatim-search", func() error {
		code, body, err := c.get(ctx, c.nominatimLimiter, endpoint)
		if err != nil {
			return err
		}
		if code != http.StatusOK {
			return &StatusError{Service: "nominatim", Code: code}
		}

		var places []nominatimPlace
		if err := json.Unmarshal(body, &places); err != nil {
			return fmt.Errorf("%w: nominatim: decode: %v", ErrLookupFailed, err)
		}
		if len(places) == 0 || strings.TrimSpace(places[0].Address.Postcode) == "" {
			return ErrNotFound
		}
		postcode = strings.TrimSpace(places[0].Address.Postcode)
		return nil
	})
	if err != nil {
		return "", err
	}

	c.logger.Debug("[geocode] %q -> %s", area, postcode)
	return postcode, nil
}

type postcodeResponse struct {
	Status int `json:"status"`
	Result *struct {
		AdminWard     string `json:"admin_ward"`
		AdminDistrict string `json:"admin_district"`
	} `json:"result"`
}

// Reverse returns the ward name for a postcode. Static table entries win
// and never touch the network.
func (c *Client) Reverse(ctx context.Context, postcode string) (string, error) {
	pc := NormalizePostcode(postcode)
	if pc == "" {
		return "", ErrInvalidPostcode
	}
	if ward, ok := c.wards.Lookup(pc); ok {
		return ward, nil
	}

	endpoint := c.postcodesURL + "/postcodes/" + url.PathEscape(pc)

	var ward string
	err := c.retry.Do(ctx, "postcodes-lookup", func() error {
		code, body, err := c.get(ctx, c.postcodesLimiter, endpoint)
		if err != nil {
			return err
		}
		switch code {
		case http.StatusOK:
		case http.StatusNotFound:
			return ErrInvalidPostcode
		default:
			return &StatusError{Service: "postcodes.io", Code: code}
		}

		var resp postcodeResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("%w: postcodes.io: decode: %v", ErrLookupFailed, err)
		}
		if resp.Result == nil || strings.TrimSpace(resp.Result.AdminWard) == "" {
			return fmt.Errorf("%w: postcodes.io: no ward for %s", ErrLookupFailed, pc)
		}
		ward = strings.TrimSpace(resp.Result.AdminWard)
		return nil
	})
	if err != nil {
		return "", err
	}
	return ward, nil
}

// get performs one rate-limited GET. Transport failures are wrapped in
// ErrNetwork; any status is returned to the caller for classification.
func (c *Client) get(ctx context.Context, lim *rate.Limiter, endpoint string) (int, []byte, error) {
	if err := lim.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: build request: %v", ErrLookupFailed, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	res, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read body: %w", ErrNetwork, err)
	}
	return res.StatusCode, body, nil
}
