// Package enrich applies enrichment rules to transactions and learns new
// rules from user-confirmed corrections.
package enrich

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/khaata-app/khaata/internal/common"
	"github.com/khaata-app/khaata/internal/model"
	"github.com/khaata-app/khaata/internal/pattern"
	"github.com/khaata-app/khaata/internal/rules"
	"github.com/khaata-app/khaata/internal/service"
)

// DefaultSweepWorkers bounds the parallelism of a batch enrichment sweep.
const DefaultSweepWorkers = 4

// Result reports the outcome of enriching a single transaction.
type Result struct {
	RuleID  string
	Fields  model.EnrichmentFields
	Applied bool
}

// SweepStats summarizes a batch enrichment sweep.
type SweepStats struct {
	Total    int
	Enriched int
	Skipped  int
	Failed   int
}

// Applier classifies transactions using the rule repository.
type Applier struct {
	storage service.Storage
	rules   *rules.Repository
}

// NewApplier creates an enrichment applier.
func NewApplier(storage service.Storage, repo *rules.Repository) *Applier {
	return &Applier{storage: storage, rules: repo}
}

// Enrich classifies one transaction. The first matching rule under the
// repository's ordering wins; enrichment is single-valued, never merged from
// multiple rules. A transaction the user has already confirmed is never
// touched, and finding no match is a normal outcome, not an error.
func (a *Applier) Enrich(ctx context.Context, txn model.Transaction) (Result, error) {
	if txn.EnrichmentStatus == model.EnrichmentConfirmed {
		return Result{}, nil
	}

	candidates, err := a.rules.Candidates(ctx, txn.UserID, txn)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load candidate rules: %w", err)
	}

	for _, rule := range candidates {
		matched, known := pattern.Matches(txn, rule)
		if !known {
			common.IntegrityWarning("skipping rule with unknown pattern type", common.Fields{
				"rule_id":      rule.ID,
				"pattern_type": string(rule.PatternType),
			})
			continue
		}
		if !matched {
			continue
		}

		if err := a.storage.UpdateTransactionEnrichment(ctx, txn.ID, rule.Payload, false); err != nil {
			return Result{}, fmt.Errorf("failed to write enrichment for transaction %s: %w", txn.ID, err)
		}
		if err := a.rules.RecordApplication(ctx, rule.ID); err != nil {
			return Result{}, fmt.Errorf("failed to record application of rule %s: %w", rule.ID, err)
		}

		return Result{Applied: true, RuleID: rule.ID, Fields: rule.Payload}, nil
	}

	return Result{}, nil
}

// ConfirmAndLearn records the user's corrected fields on the transaction and
// grows the rule set from them. This is how rules accumulate without an
// explicit rule-authoring step.
func (a *Applier) ConfirmAndLearn(ctx context.Context, txn model.Transaction, fields model.EnrichmentFields) (*model.EnrichmentRule, error) {
	if fields.Empty() {
		return nil, common.Validationf("confirmation for transaction %s carries no fields", txn.ID)
	}

	if err := a.storage.UpdateTransactionEnrichment(ctx, txn.ID, fields, true); err != nil {
		return nil, fmt.Errorf("failed to confirm enrichment for transaction %s: %w", txn.ID, err)
	}

	rule, err := pattern.Learn(txn, fields)
	if err != nil {
		return nil, err
	}
	if err := a.rules.Upsert(ctx, &rule); err != nil {
		return nil, fmt.Errorf("failed to upsert learned rule: %w", err)
	}

	return &rule, nil
}

// EnrichAll sweeps every unenriched transaction for the user. Transactions
// are independent, so the sweep runs them in a bounded worker pool; a
// per-transaction failure is logged and counted, never fatal to the sweep.
func (a *Applier) EnrichAll(ctx context.Context, userID string, workers int, onProgress func()) (SweepStats, error) {
	if workers <= 0 {
		workers = DefaultSweepWorkers
	}

	txns, err := a.storage.ListUnenrichedTransactions(ctx, userID)
	if err != nil {
		return SweepStats{}, fmt.Errorf("failed to list unenriched transactions: %w", err)
	}

	var (
		mu    sync.Mutex
		stats = SweepStats{Total: len(txns)}
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, txn := range txns {
		txn := txn
		g.Go(func() error {
			res, enrichErr := a.Enrich(ctx, txn)

			mu.Lock()
			switch {
			case enrichErr != nil:
				stats.Failed++
			case res.Applied:
				stats.Enriched++
			default:
				stats.Skipped++
			}
			mu.Unlock()

			if enrichErr != nil {
				common.LogError(enrichErr, "enrichment failed", common.Fields{
					"transaction_id": txn.ID,
				})
			}
			if onProgress != nil {
				onProgress()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, ctx.Err()
}
