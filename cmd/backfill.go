package cmd

import (
	"github.com/spf13/cobra"
)

func backfillCommand() *cobra.Command {
	var onlyMissing bool

	cmd := &cobra.Command{
		Use:   "backfill-areas",
		Short: "Resolve the ward of every stored postcode",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			geo, err := newGeocoder(cfg, logger)
			if err != nil {
				return err
			}
			return runBackfill(ctx, cfg, logger, store, geo, nil, onlyMissing)
		},
	}

	cmd.Flags().BoolVar(&onlyMissing, "only-missing", false, "skip listings that already have an area")
	return cmd
}
