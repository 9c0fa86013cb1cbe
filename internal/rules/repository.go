// Package rules owns the per-user set of enrichment rules: ordered candidate
// lookup, learned-rule upsert, usage bookkeeping and deactivation.
package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/khaata-app/khaata/internal/model"
	"github.com/khaata-app/khaata/internal/pattern"
	"github.com/khaata-app/khaata/internal/service"
)

// PriorityBump is added to an existing rule's priority when an identical
// pattern is learned again, so re-confirmed rules win future ties.
const PriorityBump = 10

// Repository mediates access to a user's enrichment rules.
type Repository struct {
	storage service.Storage
}

// NewRepository creates a rule repository backed by the given storage.
func NewRepository(storage service.Storage) *Repository {
	return &Repository{storage: storage}
}

// Candidates returns the active rules that could apply to txn, most
// authoritative first: priority descending, then match count descending,
// then most recently updated. Rule id breaks any remaining tie so repeated
// runs over the same data produce the same result.
func (r *Repository) Candidates(ctx context.Context, userID string, txn model.Transaction) ([]model.EnrichmentRule, error) {
	active, err := r.storage.ListActiveRules(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}

	var out []model.EnrichmentRule
	for _, rule := range active {
		if applicable(txn, rule) {
			out = append(out, rule)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.MatchCount != b.MatchCount {
			return a.MatchCount > b.MatchCount
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})

	return out, nil
}

// applicable pre-filters rule types against the fields present on the
// transaction, so a upi_id rule is never evaluated against a transaction
// without a UPI id.
func applicable(txn model.Transaction, rule model.EnrichmentRule) bool {
	switch rule.PatternType {
	case model.PatternUPIID:
		return txn.UPIID != ""
	case model.PatternNEFTName:
		return pattern.NEFTCounterparty(txn) != ""
	case model.PatternNarrationContains, model.PatternExactMatch:
		return txn.Narration != ""
	}
	// Unknown types flow through so the matcher can report them.
	return true
}

// Upsert merges the candidate into an existing active rule with the same
// (user, pattern type, pattern value), or inserts it as a new rule. Merging
// bumps the existing rule's priority and overwrites its payload with the
// fields the candidate supplies; there are never two active rules for the
// same pattern.
func (r *Repository) Upsert(ctx context.Context, candidate *model.EnrichmentRule) error {
	if err := pattern.ValidateRule(candidate); err != nil {
		return err
	}

	tx, err := r.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := findActive(ctx, tx, candidate)
	if err != nil {
		return err
	}

	if existing != nil {
		existing.Priority += PriorityBump
		existing.Payload.Merge(candidate.Payload)
		if err := tx.UpdateRule(ctx, existing); err != nil {
			return fmt.Errorf("failed to merge rule %s: %w", existing.ID, err)
		}
		*candidate = *existing
	} else {
		candidate.ID = uuid.NewString()
		candidate.Priority = 0
		candidate.MatchCount = 0
		candidate.State = model.RuleActive
		if err := tx.InsertRule(ctx, candidate); err != nil {
			return fmt.Errorf("failed to insert rule: %w", err)
		}
	}

	return tx.Commit()
}

func findActive(ctx context.Context, tx service.Tx, candidate *model.EnrichmentRule) (*model.EnrichmentRule, error) {
	active, err := tx.ListActiveRules(ctx, candidate.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}

	for i := range active {
		if active[i].PatternType == candidate.PatternType &&
			strings.EqualFold(active[i].PatternValue, candidate.PatternValue) {
			return &active[i], nil
		}
	}
	return nil, nil
}

// RecordApplication increments the rule's match count. The increment happens
// storage-side so concurrent enrichment passes never lose updates.
func (r *Repository) RecordApplication(ctx context.Context, ruleID string) error {
	return r.storage.IncrementRuleUsage(ctx, ruleID)
}

// Deactivate retires a rule. The rule is kept for history; there is no
// reactivation path.
func (r *Repository) Deactivate(ctx context.Context, ruleID string) error {
	return r.storage.DeactivateRule(ctx, ruleID)
}
