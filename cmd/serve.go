package cmd

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"housing-scraper/api"
	"housing-scraper/metrics"
)

func serveCommand() *cobra.Command {
	var (
		addr     string
		schedule string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API, optionally scraping on a cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if addr == "" {
				addr = cfg.HTTPAddr
			}

			store, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			geo, err := newGeocoder(cfg, logger)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			if !debug {
				gin.SetMode(gin.ReleaseMode)
			}
			router := api.NewRouter(api.NewHandler(store, geo, logger), store, reg, logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return api.Serve(gctx, addr, router, logger)
			})

			if schedule != "" {
				c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
				if _, err := c.AddFunc(schedule, func() {
					if err := runScrape(gctx, cfg, logger, store, geo, m); err != nil {
						logger.Error("[scheduler] Scrape failed: %v", err)
						return
					}
					if err := runBackfill(gctx, cfg, logger, store, geo, m, true); err != nil {
						logger.Error("[scheduler] Backfill failed: %v", err)
					}
				}); err != nil {
					return err
				}

				g.Go(func() error {
					logger.Info("[scheduler] Scraping on schedule %q", schedule)
					c.Start()
					<-gctx.Done()
					<-c.Stop().Done()
					return nil
				})
			}

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default HTTP_ADDR)")
	cmd.Flags().StringVar(&schedule, "schedule", "", `cron schedule for scrape and backfill, e.g. "0 3 * * *"`)
	return cmd
}
