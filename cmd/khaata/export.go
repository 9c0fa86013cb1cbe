package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"
)

// proposalRow is the CSV shape of a reconciliation proposal.
type proposalRow struct {
	Confidence   string `csv:"confidence"`
	BankIDs      string `csv:"bank_transaction_ids"`
	VyaparIDs    string `csv:"vyapar_transaction_ids"`
	BankTotal    string `csv:"bank_total"`
	VyaparTotal  string `csv:"vyapar_total"`
	DateSpread   int    `csv:"date_spread_days"`
	Strong       bool   `csv:"strong"`
}

func exportCmd() *cobra.Command {
	var (
		userID  string
		fromStr string
		toStr   string
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export reconciliation proposals to CSV for offline review",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			dateRange, err := parseDateRange(fromStr, toStr)
			if err != nil {
				return err
			}

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			_, engine, err := buildRecon(store, false)
			if err != nil {
				return err
			}

			proposals, err := engine.Reconcile(ctx, userID, dateRange)
			if err != nil {
				return err
			}

			out := make([]proposalRow, 0, len(proposals))
			for _, p := range proposals {
				out = append(out, proposalRow{
					Confidence:  p.Confidence.String(),
					BankIDs:     strings.Join(p.BankIDs, ";"),
					VyaparIDs:   strings.Join(p.VyaparIDs, ";"),
					BankTotal:   formatAmount(p.BankTotal),
					VyaparTotal: formatAmount(p.VyaparTotal),
					DateSpread:  p.DateSpread,
					Strong:      p.Strong,
				})
			}

			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", outPath, err)
			}
			defer func() { _ = f.Close() }()

			if err := gocsv.MarshalFile(&out, f); err != nil {
				return fmt.Errorf("failed to write CSV: %w", err)
			}

			fmt.Printf("Wrote %d proposal(s) to %s\n", len(out), outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "effective owner user id (required)")
	cmd.Flags().StringVar(&fromStr, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toStr, "to", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&outPath, "output", "o", "proposals.csv", "output file")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
