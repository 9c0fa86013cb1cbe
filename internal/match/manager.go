// Package match owns reconciliation match groups: creation, dissolution and
// membership lookup.
package match

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/khaata-app/khaata/internal/common"
	"github.com/khaata-app/khaata/internal/model"
	"github.com/khaata-app/khaata/internal/service"
)

// GroupManager creates and dissolves match groups. All writes for one group
// happen inside a single storage transaction, so a transaction id can never
// end up in two active groups.
type GroupManager struct {
	storage   service.Storage
	tolerance decimal.Decimal
}

// NewGroupManager creates a group manager. tolerance is the maximum absolute
// difference between the bank-side and vyapar-side sums still considered
// balanced.
func NewGroupManager(storage service.Storage, tolerance decimal.Decimal) *GroupManager {
	return &GroupManager{storage: storage, tolerance: tolerance}
}

// CreateGroup links the given bank and vyapar transactions as one real-world
// fund movement. Each side may hold any number of transactions, but at least
// one id must be supplied overall. Ids already held by another active group
// are rejected with a conflict before anything is written.
func (m *GroupManager) CreateGroup(ctx context.Context, userID string, bankIDs, vyaparIDs []string, confirmed bool) (*model.MatchGroup, error) {
	if len(bankIDs) == 0 && len(vyaparIDs) == 0 {
		return nil, common.Validationf("a match group needs at least one transaction")
	}
	if err := checkDuplicates(bankIDs, vyaparIDs); err != nil {
		return nil, err
	}

	tx, err := m.storage.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	bankSum, err := verifySide(ctx, tx, bankIDs, model.SourceBank)
	if err != nil {
		return nil, err
	}
	vyaparSum, err := verifySide(ctx, tx, vyaparIDs, model.SourceVyapar)
	if err != nil {
		return nil, err
	}

	balanced := bankSum.Sub(vyaparSum).Abs().Cmp(m.tolerance) <= 0

	group := &model.MatchGroup{
		ID:         uuid.NewString(),
		UserID:     userID,
		Status:     model.GroupProposed,
		Unbalanced: !balanced,
		BankIDs:    bankIDs,
		VyaparIDs:  vyaparIDs,
		CreatedAt:  time.Now().UTC(),
	}
	if confirmed {
		group.Status = model.GroupConfirmed
		if !balanced {
			common.IntegrityWarning("confirming unbalanced match group", common.Fields{
				"match_group_id": group.ID,
				"bank_total":     bankSum.String(),
				"vyapar_total":   vyaparSum.String(),
			})
		}
	}

	if err := tx.CreateMatchGroupRows(ctx, group); err != nil {
		return nil, err
	}

	status := model.StatusMatched
	if !balanced {
		status = model.StatusPartiallyMatched
	}
	for _, id := range group.MemberIDs() {
		if err := tx.UpdateTransactionReconciliationStatus(ctx, id, group.ID, status); err != nil {
			return nil, fmt.Errorf("failed to update status of transaction %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit match group: %w", err)
	}
	return group, nil
}

func checkDuplicates(bankIDs, vyaparIDs []string) error {
	seen := make(map[string]struct{}, len(bankIDs)+len(vyaparIDs))
	for _, id := range append(append([]string{}, bankIDs...), vyaparIDs...) {
		if id == "" {
			return common.Validationf("match group contains an empty transaction id")
		}
		if _, dup := seen[id]; dup {
			return common.Validationf("transaction %s listed twice in the same group", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// verifySide loads one side of a group, rejecting unknown ids, ids from the
// wrong source and ids already claimed by another active group. Returns the
// side's amount total.
func verifySide(ctx context.Context, tx service.Tx, ids []string, source model.TransactionSource) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, id := range ids {
		txn, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return decimal.Zero, err
		}
		if txn == nil {
			return decimal.Zero, common.NotFoundf("transaction %s does not exist", id)
		}
		if txn.Source != source {
			return decimal.Zero, common.Validationf("transaction %s is not a %s transaction", id, source)
		}

		existing, err := tx.FindGroupByTransactionID(ctx, id)
		if err != nil {
			return decimal.Zero, err
		}
		if existing != nil {
			return decimal.Zero, common.Conflictf("transaction %s already belongs to group %s", id, existing.ID)
		}

		sum = sum.Add(txn.Amount)
	}
	return sum, nil
}

// DissolveGroup removes the group's junction rows and resets each referenced
// transaction to unmatched. Dissolving a nonexistent or already-dissolved
// group is a no-op.
func (m *GroupManager) DissolveGroup(ctx context.Context, matchGroupID string) error {
	tx, err := m.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	group, err := tx.GetMatchGroup(ctx, matchGroupID)
	if err != nil {
		return err
	}
	if group == nil {
		return nil
	}

	if err := tx.DeleteMatchGroupRows(ctx, matchGroupID); err != nil {
		return err
	}
	for _, id := range group.MemberIDs() {
		if err := tx.UpdateTransactionReconciliationStatus(ctx, id, "", model.StatusUnmatched); err != nil {
			return fmt.Errorf("failed to reset status of transaction %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dissolution: %w", err)
	}
	return nil
}

// GroupFor returns the id of the active group holding the transaction, or ""
// when the transaction is unmatched.
func (m *GroupManager) GroupFor(ctx context.Context, txnID string) (string, error) {
	group, err := m.storage.FindGroupByTransactionID(ctx, txnID)
	if err != nil {
		return "", err
	}
	if group == nil {
		return "", nil
	}
	return group.ID, nil
}
