// Package service defines the interfaces khaata's components depend on.
package service

import (
	"context"
	"time"

	"github.com/khaata-app/khaata/internal/model"
)

// DateRange bounds a transaction query. Zero values mean unbounded.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// Storage is the persistence contract for rules, transactions and match
// groups. Every operation is scoped to a single effective owner: callers
// pass an already-resolved userID, never raw caller identity.
type Storage interface {
	// Enrichment rule operations
	ListActiveRules(ctx context.Context, userID string) ([]model.EnrichmentRule, error)
	GetRule(ctx context.Context, ruleID string) (*model.EnrichmentRule, error)
	InsertRule(ctx context.Context, rule *model.EnrichmentRule) error
	UpdateRule(ctx context.Context, rule *model.EnrichmentRule) error
	DeactivateRule(ctx context.Context, ruleID string) error
	IncrementRuleUsage(ctx context.Context, ruleID string) error

	// Transaction operations
	SaveTransactions(ctx context.Context, txns []model.Transaction) error
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	ListUnmatchedTransactions(ctx context.Context, userID string, source model.TransactionSource, dateRange DateRange) ([]model.Transaction, error)
	ListUnenrichedTransactions(ctx context.Context, userID string) ([]model.Transaction, error)
	UpdateTransactionEnrichment(ctx context.Context, txnID string, fields model.EnrichmentFields, confirmed bool) error
	UpdateTransactionReconciliationStatus(ctx context.Context, txnID string, matchGroupID string, status model.ReconciliationStatus) error

	// Match group operations
	CreateMatchGroupRows(ctx context.Context, group *model.MatchGroup) error
	DeleteMatchGroupRows(ctx context.Context, matchGroupID string) error
	GetMatchGroup(ctx context.Context, matchGroupID string) (*model.MatchGroup, error)
	FindGroupByTransactionID(ctx context.Context, txnID string) (*model.MatchGroup, error)

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Tx, error)
	Close() error
}

// Tx is a storage transaction. It exposes the full Storage contract so
// multi-step operations can run atomically.
type Tx interface {
	Commit() error
	Rollback() error
	Storage
}
