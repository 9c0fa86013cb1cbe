package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/khaata-app/khaata/internal/service"
)

func reconcileCmd() *cobra.Command {
	var (
		userID      string
		fromStr     string
		toStr       string
		autoConfirm bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Propose match groups between bank and vyapar transactions",
		Long: `Scans unmatched transactions on both sides and proposes match groups by
amount and date proximity. Proposals are printed for review; with
--auto-confirm-strong, exact-amount exact-date unique matches are confirmed
directly.`,
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

			_, engine, err := buildRecon(store, autoConfirm)
			if err != nil {
				return err
			}

			proposals, err := engine.Reconcile(ctx, userID, dateRange)
			if err != nil {
				return err
			}

			if len(proposals) == 0 {
				fmt.Println("No match proposals.")
				return nil
			}

			fmt.Printf("%d proposal(s) for review:\n\n", len(proposals))
			for i, p := range proposals {
				fmt.Printf("%3d. [%s] bank %s (%s) <-> vyapar %s (%s)\n",
					i+1, p.Confidence,
					strings.Join(p.BankIDs, ","), formatAmount(p.BankTotal),
					strings.Join(p.VyaparIDs, ","), formatAmount(p.VyaparTotal),
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "effective owner user id (required)")
	cmd.Flags().StringVar(&fromStr, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toStr, "to", "", "end date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&autoConfirm, "auto-confirm-strong", false, "confirm exact unique matches without review")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func parseDateRange(fromStr, toStr string) (service.DateRange, error) {
	var dr service.DateRange
	if fromStr != "" {
		from, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			return dr, fmt.Errorf("invalid --from date %q: %w", fromStr, err)
		}
		dr.Start = from
	}
	if toStr != "" {
		to, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			return dr, fmt.Errorf("invalid --to date %q: %w", toStr, err)
		}
		dr.End = to
	}
	return dr, nil
}
