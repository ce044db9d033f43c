// Package unihomes drives a headless browser over the unihomes listing pages
// and hands on every rendered property card.
package unihomes

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"

	"housing-scraper/config"
	"housing-scraper/models"
	"housing-scraper/utils"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// extractCardsJS returns text and markup for every card on the page.
var extractCardsJS = `
	(function() {
		var cards = document.querySelectorAll('` + cardSelector + `');
		var out = [];
		for (var i = 0; i < cards.length; i++) {
			out.push({ text: cards[i].innerText || '', html: cards[i].outerHTML || '' });
		}
		return out;
	})()
`

// pageFetcher loads one listing page and returns its cards.
type pageFetcher interface {
	FetchCards(ctx context.Context, pageURL string) ([]cardNode, error)
}

// starter is implemented by fetchers that hold a resource for the whole run.
type starter interface {
	start(ctx context.Context) (stop func(), err error)
}

// Scraper walks the configured page range of the listings site.
type Scraper struct {
	cfg     *config.Config
	logger  *utils.Logger
	retry   *utils.RetryConfig
	fetcher pageFetcher
	delay   time.Duration
	now     func() time.Time
}

// New creates a Scraper backed by headless Chrome.
func New(cfg *config.Config, logger *utils.Logger) *Scraper {
	return &Scraper{
		cfg:    cfg,
		logger: logger,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		fetcher: &browser{cfg: cfg, logger: logger},
		delay:   time.Duration(cfg.RateLimitMs) * time.Millisecond,
		now:     time.Now,
	}
}

// PageURL returns the address of one results page.
func PageURL(base string, page int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Scrape visits PagesToScrape pages starting at StartPage and returns the
// cards found, in page order. Page counters and duplicates are recorded in
// stats. A page that still fails after retries is logged and skipped; only
// cancellation or a bad base URL stops the run.
func (s *Scraper) Scrape(ctx context.Context, stats *models.RunStats) ([]*models.RawCard, error) {
	if _, err := url.Parse(s.cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("unihomes: bad base url: %w", err)
	}

	start := s.cfg.StartPage
	if start < 1 {
		start = 1
	}
	last := start + s.cfg.PagesToScrape - 1

	s.logger.Info("[unihomes] Starting scrape: pages %d-%d of %s", start, last, s.cfg.BaseURL)

	if st, ok := s.fetcher.(starter); ok {
		stop, err := st.start(ctx)
		if err != nil {
			return nil, fmt.Errorf("unihomes: start browser: %w", err)
		}
		defer stop()
	}

	seen := utils.NewURLSet()
	var cards []*models.RawCard

	for page := start; page <= last; page++ {
		if err := ctx.Err(); err != nil {
			return cards, err
		}

		pageURL, err := PageURL(s.cfg.BaseURL, page)
		if err != nil {
			return cards, fmt.Errorf("unihomes: %w", err)
		}
		base, _ := url.Parse(pageURL)

		var nodes []cardNode
		err = s.retry.Do(ctx, fmt.Sprintf("scrape-page-%d", page), func() error {
			var ferr error
			nodes, ferr = s.fetcher.FetchCards(ctx, pageURL)
			return ferr
		})
		stats.Pages++
		if err != nil {
			if ctx.Err() != nil {
				return cards, ctx.Err()
			}
			stats.PagesFailed++
			s.logger.Error("[unihomes] Page %d failed: %v", page, err)
			continue
		}

		scrapedAt := s.now()
		added := 0
		for _, n := range nodes {
			stats.CardsSeen++

			link, images, err := parseCardHTML(n.HTML, base)
			if err != nil {
				s.logger.Warn("[unihomes] Page %d: %v", page, err)
			}
			if link != "" && !seen.Add(link) {
				stats.Duplicates++
				s.logger.Debug("[unihomes] Skipping duplicate: %s", link)
				continue
			}

			cards = append(cards, &models.RawCard{
				Page:      page,
				Text:      n.Text,
				Link:      link,
				ImageURLs: images,
				ScrapedAt: scrapedAt,
			})
			added++
		}

		s.logger.Info("[unihomes] Page %d done: %d cards (%d total)", page, added, len(cards))

		if page < last && s.delay > 0 {
			select {
			case <-ctx.Done():
				return cards, ctx.Err()
			case <-time.After(s.delay):
			}
		}
	}

	s.logger.Info("[unihomes] Scrape complete: %d cards from %d pages (%d failed)",
		len(cards), stats.Pages, stats.PagesFailed)
	return cards, nil
}

// browser fetches pages with chromedp. One allocator is shared by the whole
// run; each page gets its own tab and timeout.
type browser struct {
	cfg      *config.Config
	logger   *utils.Logger
	allocCtx context.Context
}

func (b *browser) start(ctx context.Context) (func(), error) {
	chromeBin := b.cfg.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	b.logger.Info("[unihomes] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)

	// Suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, err
	}
	b.allocCtx = browserCtx

	return func() {
		cancelBrowser()
		cancelAlloc()
	}, nil
}

func (b *browser) FetchCards(ctx context.Context, pageURL string) ([]cardNode, error) {
	if b.allocCtx == nil {
		return nil, fmt.Errorf("browser not started")
	}

	tabCtx, cancel := chromedp.NewContext(b.allocCtx)
	defer cancel()

	timeout := b.cfg.PageTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
	defer cancelTimeout()

	// The run context lives outside the browser tree; propagate its cancellation.
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	var nodes []cardNode
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible(containerSelector, chromedp.ByQuery),
		chromedp.Evaluate(extractCardsJS, &nodes),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp page scrape: %w", err)
	}

	b.logger.Debug("[unihomes] %s: found %d cards", pageURL, len(nodes))
	return nodes, nil
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
