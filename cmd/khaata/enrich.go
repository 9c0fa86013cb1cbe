package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/khaata-app/khaata/internal/enrich"
	"github.com/khaata-app/khaata/internal/rules"
)

func enrichCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Classify unenriched bank transactions with the learned rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			applier := enrich.NewApplier(store, rules.NewRepository(store))

			pending, err := store.ListUnenrichedTransactions(ctx, userID)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println("Nothing to enrich.")
				return nil
			}

			bar := progressbar.Default(int64(len(pending)), "enriching")
			stats, err := applier.EnrichAll(ctx, userID, cfg.EnrichWorkers, func() {
				_ = bar.Add(1)
			})
			_ = bar.Finish()
			if err != nil {
				return err
			}

			fmt.Printf("Enriched %d of %d transactions (%d unmatched by any rule, %d failed)\n",
				stats.Enriched, stats.Total, stats.Skipped, stats.Failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "effective owner user id (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
