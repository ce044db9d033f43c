package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"housing-scraper/services"
)

func reportCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print summary figures over the stored listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			listings, err := store.FetchAll(ctx)
			if err != nil {
				return err
			}

			svc := services.NewInsightService(logger)
			report := svc.Generate(listings)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			svc.Print(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
