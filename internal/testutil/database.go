// Package testutil provides shared helpers for khaata's tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/khaata-app/khaata/internal/model"
	"github.com/khaata-app/khaata/internal/service"
	"github.com/khaata-app/khaata/internal/storage"
)

// SetupTestDB creates a migrated in-memory SQLite database that is torn down
// with the test.
func SetupTestDB(t *testing.T) service.Storage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// Txn builds a transaction with sensible defaults for tests.
func Txn(id, userID string, source model.TransactionSource, amount string, date time.Time, narration string) model.Transaction {
	return model.Transaction{
		ID:        id,
		UserID:    userID,
		Source:    source,
		Amount:    decimal.RequireFromString(amount),
		Date:      date,
		Narration: narration,
		Status:    model.StatusUnmatched,
	}
}

// SeedTransactions saves the given transactions, failing the test on error.
func SeedTransactions(t *testing.T, store service.Storage, txns ...model.Transaction) {
	t.Helper()
	if err := store.SaveTransactions(context.Background(), txns); err != nil {
		t.Fatalf("failed to seed transactions: %v", err)
	}
}

// StrPtr returns a pointer to s.
func StrPtr(s string) *string { return &s }

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }
