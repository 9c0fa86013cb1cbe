package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/khaata-app/khaata/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidRule        = errors.New("invalid rule")
	ErrInvalidGroup       = errors.New("invalid match group")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransactions validates a slice of transactions.
func validateTransactions(txns []model.Transaction) error {
	if txns == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(txns) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	for i := range txns {
		if err := validateTransaction(&txns[i]); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if txn.UserID == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidTransaction)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	switch txn.Source {
	case model.SourceBank, model.SourceVyapar:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidTransaction, txn.Source)
	}
	return nil
}

// validateRule validates a rule at the storage boundary. Semantic pattern
// validation lives in the pattern package; this only guards the schema.
func validateRule(rule *model.EnrichmentRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if rule.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidRule)
	}
	if rule.UserID == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidRule)
	}
	if strings.TrimSpace(rule.PatternValue) == "" {
		return fmt.Errorf("%w: missing pattern value", ErrInvalidRule)
	}
	return nil
}

// validateGroup validates a match group before its rows are written. A row
// with neither side set has no defined meaning and is rejected here and by a
// schema CHECK constraint.
func validateGroup(group *model.MatchGroup) error {
	if group == nil {
		return fmt.Errorf("%w: group", ErrNilParameter)
	}
	if group.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidGroup)
	}
	if len(group.BankIDs) == 0 && len(group.VyaparIDs) == 0 {
		return fmt.Errorf("%w: no transactions", ErrInvalidGroup)
	}
	return nil
}
