package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaata-app/khaata/internal/common"
	"github.com/khaata-app/khaata/internal/model"
	"github.com/khaata-app/khaata/internal/service"
	"github.com/khaata-app/khaata/internal/storage"
	"github.com/khaata-app/khaata/internal/testutil"
)

var day = time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)

func activeRule(id, value string) model.EnrichmentRule {
	return model.EnrichmentRule{
		ID:           id,
		UserID:       "u1",
		PatternType:  model.PatternNarrationContains,
		PatternValue: value,
		Payload:      model.EnrichmentFields{VendorName: testutil.StrPtr("Acme Store")},
		State:        model.RuleActive,
	}
}

func TestMigrate_IsIdempotent(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx))

	// Schema is usable after the second run.
	rule := activeRule("r1", "acme")
	assert.NoError(t, store.InsertRule(ctx, &rule))
}

func TestRuleLifecycle(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	rule := activeRule("r1", "acme")
	require.NoError(t, store.InsertRule(ctx, &rule))

	got, err := store.GetRule(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "acme", got.PatternValue)
	require.NotNil(t, got.Payload.VendorName)
	assert.Equal(t, "Acme Store", *got.Payload.VendorName)

	require.NoError(t, store.IncrementRuleUsage(ctx, "r1"))
	got, err = store.GetRule(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.MatchCount)

	require.NoError(t, store.DeactivateRule(ctx, "r1"))
	active, err := store.ListActiveRules(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestGetRule_MissingReturnsNil(t *testing.T) {
	store := testutil.SetupTestDB(t)

	got, err := store.GetRule(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInsertRule_DuplicateActivePatternConflicts(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	first := activeRule("r1", "acme")
	require.NoError(t, store.InsertRule(ctx, &first))

	dup := activeRule("r2", "acme")
	assert.ErrorIs(t, store.InsertRule(ctx, &dup), common.ErrConflict)

	// Deactivated rules release the pattern.
	require.NoError(t, store.DeactivateRule(ctx, "r1"))
	again := activeRule("r3", "acme")
	assert.NoError(t, store.InsertRule(ctx, &again))
}

func TestRuleWrites_MissingRowIsNotFound(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	rule := activeRule("ghost", "acme")
	assert.ErrorIs(t, store.UpdateRule(ctx, &rule), common.ErrNotFound)
	assert.ErrorIs(t, store.DeactivateRule(ctx, "ghost"), common.ErrNotFound)
	assert.ErrorIs(t, store.IncrementRuleUsage(ctx, "ghost"), common.ErrNotFound)
}

func TestListActiveRules_Ordering(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	seed := func(id string, priority, matchCount int) {
		rule := activeRule(id, "pattern-"+id)
		rule.Priority = priority
		rule.MatchCount = matchCount
		require.NoError(t, store.InsertRule(ctx, &rule))
	}
	seed("c", 0, 5)
	seed("a", 10, 0)
	seed("b", 0, 9)

	rules, err := store.ListActiveRules(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, "a", rules[0].ID)
	assert.Equal(t, "b", rules[1].ID)
	assert.Equal(t, "c", rules[2].ID)
}

func TestSaveTransactions_ReimportKeepsEnrichment(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	txn := testutil.Txn("t1", "u1", model.SourceBank, "1500", day, "UPI-ACME")
	testutil.SeedTransactions(t, store, txn)

	require.NoError(t, store.UpdateTransactionEnrichment(ctx, "t1", model.EnrichmentFields{
		VendorName: testutil.StrPtr("Acme Store"),
	}, true))

	// Same id re-imported with a fresh narration.
	txn.Narration = "UPI-ACME STORE-merchant@upi"
	testutil.SeedTransactions(t, store, txn)

	got, err := store.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "UPI-ACME STORE-merchant@upi", got.Narration)
	assert.Equal(t, model.EnrichmentConfirmed, got.EnrichmentStatus)
	require.NotNil(t, got.Enrichment.VendorName)
	assert.Equal(t, "Acme Store", *got.Enrichment.VendorName)
}

func TestGetTransaction_MissingReturnsNil(t *testing.T) {
	store := testutil.SetupTestDB(t)

	got, err := store.GetTransaction(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListUnmatchedTransactions(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	testutil.SeedTransactions(t, store,
		testutil.Txn("b1", "u1", model.SourceBank, "100", day, "one"),
		testutil.Txn("b2", "u1", model.SourceBank, "200", day.AddDate(0, 0, 5), "two"),
		testutil.Txn("v1", "u1", model.SourceVyapar, "100", day, "sale"),
		testutil.Txn("b-other", "u2", model.SourceBank, "100", day, "other user"),
	)
	require.NoError(t, store.UpdateTransactionReconciliationStatus(ctx, "b2", "g1", model.StatusMatched))

	txns, err := store.ListUnmatchedTransactions(ctx, "u1", model.SourceBank, service.DateRange{})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "b1", txns[0].ID)

	// Date bounds exclude.
	txns, err = store.ListUnmatchedTransactions(ctx, "u1", model.SourceBank, service.DateRange{
		Start: day.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestListUnenrichedTransactions(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	testutil.SeedTransactions(t, store,
		testutil.Txn("b1", "u1", model.SourceBank, "100", day, "fresh"),
		testutil.Txn("b2", "u1", model.SourceBank, "200", day, "touched"),
		testutil.Txn("v1", "u1", model.SourceVyapar, "100", day, "vyapar side"),
	)
	require.NoError(t, store.UpdateTransactionEnrichment(ctx, "b2", model.EnrichmentFields{
		BizType: testutil.StrPtr("retail"),
	}, false))

	txns, err := store.ListUnenrichedTransactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "b1", txns[0].ID)
}

func TestUpdateTransactionEnrichment_ConfirmedGuard(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	testutil.SeedTransactions(t, store,
		testutil.Txn("t1", "u1", model.SourceBank, "100", day, "UPI-ACME"),
	)

	require.NoError(t, store.UpdateTransactionEnrichment(ctx, "t1", model.EnrichmentFields{
		VendorName: testutil.StrPtr("Confirmed Vendor"),
	}, true))

	// A later automatic pass silently leaves the row alone.
	require.NoError(t, store.UpdateTransactionEnrichment(ctx, "t1", model.EnrichmentFields{
		VendorName: testutil.StrPtr("Auto Vendor"),
	}, false))

	got, err := store.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.EnrichmentConfirmed, got.EnrichmentStatus)
	assert.Equal(t, "Confirmed Vendor", *got.Enrichment.VendorName)

	// A confirmed write against a missing row is an error.
	err = store.UpdateTransactionEnrichment(ctx, "missing", model.EnrichmentFields{
		VendorName: testutil.StrPtr("x"),
	}, true)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMatchGroupRows(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	testutil.SeedTransactions(t, store,
		testutil.Txn("b1", "u1", model.SourceBank, "1500", day, "UPI-ACME"),
		testutil.Txn("v1", "u1", model.SourceVyapar, "900", day, "inv 41"),
		testutil.Txn("v2", "u1", model.SourceVyapar, "600", day, "inv 42"),
	)

	group := &model.MatchGroup{
		ID:        "g1",
		UserID:    "u1",
		Status:    model.GroupConfirmed,
		BankIDs:   []string{"b1"},
		VyaparIDs: []string{"v1", "v2"},
		CreatedAt: day,
	}
	require.NoError(t, store.CreateMatchGroupRows(ctx, group))

	got, err := store.GetMatchGroup(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.GroupConfirmed, got.Status)
	assert.ElementsMatch(t, []string{"b1"}, got.BankIDs)
	assert.ElementsMatch(t, []string{"v1", "v2"}, got.VyaparIDs)

	found, err := store.FindGroupByTransactionID(ctx, "v2")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "g1", found.ID)
}

func TestCreateMatchGroupRows_MembershipIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	testutil.SeedTransactions(t, store,
		testutil.Txn("b1", "u1", model.SourceBank, "1500", day, "UPI-ACME"),
		testutil.Txn("v1", "u1", model.SourceVyapar, "1500", day, "sale"),
	)

	first := &model.MatchGroup{
		ID: "g1", UserID: "u1", Status: model.GroupProposed,
		BankIDs: []string{"b1"}, VyaparIDs: []string{"v1"}, CreatedAt: day,
	}
	require.NoError(t, store.CreateMatchGroupRows(ctx, first))

	// The unique index rejects a second active group over the same member,
	// even without the manager's upfront check.
	second := &model.MatchGroup{
		ID: "g2", UserID: "u1", Status: model.GroupProposed,
		VyaparIDs: []string{"v1"}, CreatedAt: day,
	}
	assert.ErrorIs(t, store.CreateMatchGroupRows(ctx, second), common.ErrConflict)
}

func TestDeleteMatchGroupRows(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	testutil.SeedTransactions(t, store,
		testutil.Txn("b1", "u1", model.SourceBank, "1500", day, "UPI-ACME"),
	)

	group := &model.MatchGroup{
		ID: "g1", UserID: "u1", Status: model.GroupProposed,
		BankIDs: []string{"b1"}, CreatedAt: day,
	}
	require.NoError(t, store.CreateMatchGroupRows(ctx, group))
	require.NoError(t, store.DeleteMatchGroupRows(ctx, "g1"))

	got, err := store.GetMatchGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting again is a no-op.
	assert.NoError(t, store.DeleteMatchGroupRows(ctx, "g1"))
}

func TestGetMatchGroup_MissingReturnsNil(t *testing.T) {
	store := testutil.SetupTestDB(t)

	got, err := store.GetMatchGroup(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBeginTx_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)

	rule := activeRule("r1", "acme")
	require.NoError(t, tx.InsertRule(ctx, &rule))
	require.NoError(t, tx.Rollback())

	got, err := store.GetRule(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
