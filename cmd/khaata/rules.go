package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/khaata-app/khaata/internal/model"
	"github.com/khaata-app/khaata/internal/rules"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage enrichment rules",
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesDeactivateCmd())
	return cmd
}

func rulesListCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active rules, highest priority first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			active, err := store.ListActiveRules(ctx, userID)
			if err != nil {
				return err
			}
			if len(active) == 0 {
				fmt.Println("No active rules.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tPATTERN\tVENDOR\tPRIORITY\tMATCHES")
			for _, r := range active {
				vendor := ""
				if r.Payload.VendorName != nil {
					vendor = *r.Payload.VendorName
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
					r.ID, r.PatternType, r.PatternValue, vendor, r.Priority, r.MatchCount)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "effective owner user id (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func rulesAddCmd() *cobra.Command {
	var (
		userID       string
		patternType  string
		patternValue string
		vendorName   string
		bizType      string
		gstType      string
		needsInvoice bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a rule, merging into an existing one for the same pattern",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rule := model.EnrichmentRule{
				UserID:       userID,
				PatternType:  model.PatternType(patternType),
				PatternValue: patternValue,
				State:        model.RuleActive,
			}
			if vendorName != "" {
				rule.Payload.VendorName = &vendorName
			}
			if bizType != "" {
				rule.Payload.BizType = &bizType
			}
			if gstType != "" {
				g := model.GSTType(gstType)
				rule.Payload.GSTType = &g
			}
			if cmd.Flags().Changed("needs-invoice") {
				rule.Payload.NeedsInvoice = &needsInvoice
			}

			repo := rules.NewRepository(store)
			if err := repo.Upsert(ctx, &rule); err != nil {
				return err
			}

			fmt.Printf("Rule %s saved (priority %d)\n", rule.ID, rule.Priority)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "effective owner user id (required)")
	cmd.Flags().StringVar(&patternType, "type", "narration_contains", "pattern type (narration_contains, upi_id, neft_name, exact_match)")
	cmd.Flags().StringVar(&patternValue, "value", "", "pattern value (required)")
	cmd.Flags().StringVar(&vendorName, "vendor", "", "vendor name payload")
	cmd.Flags().StringVar(&bizType, "biz-type", "", "business type payload")
	cmd.Flags().StringVar(&gstType, "gst", "", "gst treatment (input, output, none)")
	cmd.Flags().BoolVar(&needsInvoice, "needs-invoice", false, "mark matched transactions as needing an invoice")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func rulesDeactivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deactivate <rule-id>",
		Short: "Retire a rule (kept for history, never deleted)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			repo := rules.NewRepository(store)
			if err := repo.Deactivate(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Rule %s deactivated\n", args[0])
			return nil
		},
	}
	return cmd
}
