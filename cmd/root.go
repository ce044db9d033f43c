// Package cmd implements the housing command-line interface.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"housing-scraper/config"
	"housing-scraper/utils"
)

// Version is set at build time with -ldflags "-X housing-scraper/cmd.Version=...".
var Version = "dev"

var (
	// debug forces debug logging regardless of LOG_LEVEL.
	debug bool

	cfg    *config.Config
	logger *utils.Logger

	rootCmd = &cobra.Command{
		Use:           "housing",
		Short:         "Student housing listing scraper",
		Long:          `Scrapes student property listings, resolves postcodes and wards, and stores them in PostgreSQL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.Load()
			level := cfg.LogLevel
			if debug {
				level = "debug"
			}
			logger = utils.NewLoggerWithLevel(level)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command under ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "housing version %s\n", Version)
		},
	})

	rootCmd.AddCommand(scrapeCommand())
	rootCmd.AddCommand(backfillCommand())
	rootCmd.AddCommand(reportCommand())
	rootCmd.AddCommand(resolveCommand())
	rootCmd.AddCommand(serveCommand())
}
