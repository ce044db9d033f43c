package cmd

import (
	"github.com/spf13/cobra"
)

func scrapeCommand() *cobra.Command {
	var (
		startPage int
		pages     int
	)

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape listing pages and store the parsed listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if cmd.Flags().Changed("start-page") {
				cfg.StartPage = startPage
			}
			if cmd.Flags().Changed("pages") {
				cfg.PagesToScrape = pages
			}

			logger.Info("=== Housing scraper starting ===")
			logger.Info("Config: pages %d-%d | retries: %d | rate: %dms",
				cfg.StartPage, cfg.StartPage+cfg.PagesToScrape-1, cfg.MaxRetries, cfg.RateLimitMs)

			store, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			geo, err := newGeocoder(cfg, logger)
			if err != nil {
				return err
			}
			return runScrape(ctx, cfg, logger, store, geo, nil)
		},
	}

	cmd.Flags().IntVar(&startPage, "start-page", 1, "first results page to visit")
	cmd.Flags().IntVar(&pages, "pages", 18, "number of results pages to visit")
	return cmd
}
