package match_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaata-app/khaata/internal/common"
	"github.com/khaata-app/khaata/internal/match"
	"github.com/khaata-app/khaata/internal/model"
	"github.com/khaata-app/khaata/internal/service"
	"github.com/khaata-app/khaata/internal/testutil"
)

var day = time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)

func newManager(t *testing.T) (*match.GroupManager, service.Storage) {
	t.Helper()
	store := testutil.SetupTestDB(t)
	return match.NewGroupManager(store, decimal.Zero), store
}

func TestCreateGroup_BalancedOneToOne(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)

	testutil.SeedTransactions(t, store,
		testutil.Txn("b1", "u1", model.SourceBank, "1500", day, "UPI-ACME"),
		testutil.Txn("v1", "u1", model.SourceVyapar, "1500", day, "Acme sale"),
	)

	group, err := mgr.CreateGroup(ctx, "u1", []string{"b1"}, []string{"v1"}, false)
	require.NoError(t, err)
	require.NotNil(t, group)

	assert.Equal(t, model.GroupProposed, group.Status)
	assert.False(t, group.Unbalanced)

	for _, id := range []string{"b1", "v1"} {
		txn, err := store.GetTransaction(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusMatched, txn.Status)
		assert.Equal(t, group.ID, txn.MatchGroupID)
	}
}

func TestCreateGroup_SplitPayment(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)

	testutil.SeedTransactions(t, store,
		testutil.Txn("b1", "u1", model.SourceBank, "1500", day, "NEFT-N1-ACME-INV"),
		testutil.Txn("v1", "u1", model.SourceVyapar, "900", day, "Invoice 41"),
		testutil.Txn("v2", "u1", model.SourceVyapar, "600", day, "Invoice 42"),
	)

	group, err := mgr.CreateGroup(ctx, "u1", []string{"b1"}, []string{"v1", "v2"}, true)
	require.NoError(t, err)

	assert.Equal(t, model.GroupConfirmed, group.Status)
	assert.False(t, group.Unbalanced)
	assert.ElementsMatch(t, []string{"b1", "v1", "v2"}, group.MemberIDs())
}

func TestCreateGroup_UnbalancedMarksPartiallyMatched(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)

	testutil.SeedTransactions(t, store,
		testutil.Txn("b1", "u1", model.SourceBank, "1500", day, "UPI-ACME"),
		testutil.Txn("v1", "u1", model.SourceVyapar, "1400", day, "Acme sale"),
	)

	group, err := mgr.CreateGroup(ctx, "u1", []string{"b1"}, []string{"v1"}, false)
	require.NoError(t, err)
	assert.True(t, group.Unbalanced)

	txn, err := store.GetTransaction(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPartiallyMatched, txn.Status)
}

func TestCreateGroup_ToleranceAbsorbsRounding(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	mgr := match.NewGroupManager(store, decimal.RequireFromString("1"))

	testutil.SeedTransactions(t, store,
		testutil.Txn("b1", "u1", model.SourceBank, "1500.50", day, "UPI-ACME"),
		testutil.Txn("v1", "u1", model.SourceVyapar, "1500", day, "Acme sale"),
	)

	group, err := mgr.CreateGroup(ctx, "u1", []string{"b1"}, []string{"v1"}, false)
	require.NoError(t, err)
	assert.False(t, group.Unbalanced)
}

func TestCreateGroup_RejectsClaimedTransaction(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)

	testutil.SeedTransactions(t, store,
		testutil.Txn("b1", "u1", model.SourceBank, "1500", day, "UPI-ACME"),
		testutil.Txn("b2", "u1", model.SourceBank, "1500", day, "UPI-ACME AGAIN"),
		testutil.Txn("v1", "u1", model.SourceVyapar, "1500", day, "Acme sale"),
	)

	_, err := mgr.CreateGroup(ctx, "u1", []string{"b1"}, []string{"v1"}, false)
	require.NoError(t, err)

	_, err = mgr.CreateGroup(ctx, "u1", []string{"b2"}, []string{"v1"}, false)
	assert.ErrorIs(t, err, common.ErrConflict)

	// The failed attempt must not have touched b2.
	txn, err := store.GetTransaction(ctx, "b2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnmatched, txn.Status)
}

func TestCreateGroup_Validation(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)

	testutil.SeedTransactions(t, store,
		testutil.Txn("b1", "u1", model.SourceBank, "1500", day, "UPI-ACME"),
		testutil.Txn("v1", "u1", model.SourceVyapar, "1500", day, "Acme sale"),
	)

	tests := []struct {
		name      string
		bankIDs   []string
		vyaparIDs []string
		wantErr   error
	}{
		{"both sides empty", nil, nil, common.ErrValidation},
		{"duplicate id across sides", []string{"b1"}, []string{"b1"}, common.ErrValidation},
		{"empty id", []string{""}, []string{"v1"}, common.ErrValidation},
		{"unknown id", []string{"nope"}, []string{"v1"}, common.ErrNotFound},
		{"wrong source", []string{"v1"}, []string{"b1"}, common.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mgr.CreateGroup(ctx, "u1", tt.bankIDs, tt.vyaparIDs, false)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateGroup_OneSidedIsAllowed(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)

	testutil.SeedTransactions(t, store,
		testutil.Txn("v1", "u1", model.SourceVyapar, "200", day, "Cash sale"),
	)

	group, err := mgr.CreateGroup(ctx, "u1", nil, []string{"v1"}, false)
	require.NoError(t, err)
	assert.True(t, group.Unbalanced)
}

func TestDissolveGroup(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)

	testutil.SeedTransactions(t, store,
		testutil.Txn("b1", "u1", model.SourceBank, "1500", day, "UPI-ACME"),
		testutil.Txn("v1", "u1", model.SourceVyapar, "1500", day, "Acme sale"),
	)

	group, err := mgr.CreateGroup(ctx, "u1", []string{"b1"}, []string{"v1"}, true)
	require.NoError(t, err)

	require.NoError(t, mgr.DissolveGroup(ctx, group.ID))

	for _, id := range []string{"b1", "v1"} {
		txn, err := store.GetTransaction(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusUnmatched, txn.Status)
		assert.Empty(t, txn.MatchGroupID)
	}

	gone, err := store.GetMatchGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	// Members are free for a new group.
	_, err = mgr.CreateGroup(ctx, "u1", []string{"b1"}, []string{"v1"}, false)
	assert.NoError(t, err)
}

func TestDissolveGroup_MissingGroupIsNoOp(t *testing.T) {
	mgr, _ := newManager(t)
	assert.NoError(t, mgr.DissolveGroup(context.Background(), "never-existed"))
}

func TestGroupFor(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)

	testutil.SeedTransactions(t, store,
		testutil.Txn("b1", "u1", model.SourceBank, "1500", day, "UPI-ACME"),
		testutil.Txn("v1", "u1", model.SourceVyapar, "1500", day, "Acme sale"),
	)

	id, err := mgr.GroupFor(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, id)

	group, err := mgr.CreateGroup(ctx, "u1", []string{"b1"}, []string{"v1"}, false)
	require.NoError(t, err)

	id, err = mgr.GroupFor(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, group.ID, id)
}
