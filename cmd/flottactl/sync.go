package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"flotta/internal/backend"
	"flotta/internal/worker"
)

type syncOutput struct {
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
	Errored int `json:"errored"`
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push one batch of pending journal records to Google Sheets",
		Long: `sync runs a single sweep of the SQLite journal, the same one flotta-worker
runs periodically. It needs DATA_BACKEND=sqlite and a configured spreadsheet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			res, bcfg, err := a.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer res.Close()

			if res.Journal == nil {
				return fmt.Errorf("sync needs the sqlite backend, got %s", bcfg.Type)
			}
			if !bcfg.HasSheets() {
				return errors.New("sync needs GOOGLE_SPREADSHEET_ID")
			}
			client, err := backend.NewSheetsClient(cmd.Context(), bcfg)
			if err != nil {
				return err
			}

			result, err := worker.NewSyncWorker(res.Journal, client, a.cfg.SyncBatchSize).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := res.Journal.Stats(cmd.Context())
			if err != nil {
				return err
			}

			o := syncOutput{Synced: result.Synced, Failed: result.Failed, Pending: stats.Pending, Errored: stats.Errored}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), o)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "synced %d, failed %d (journal: %d pending, %d in error)\n",
				o.Synced, o.Failed, o.Pending, o.Errored)
			return err
		},
	}
}
