package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPlatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plates",
		Short: "List the distinct plates known to the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			res, _, err := a.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer res.Close()

			plates, err := res.Store.FetchDistinctPlates(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				if plates == nil {
					plates = []string{}
				}
				return printJSON(out, plates)
			}
			for _, p := range plates {
				if _, err := fmt.Fprintln(out, p); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
