package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func resolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <postcode>",
		Short: "Look up the ward of one postcode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			geo, err := newGeocoder(cfg, logger)
			if err != nil {
				return err
			}
			ward, err := geo.Reverse(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ward)
			return nil
		},
	}
}
