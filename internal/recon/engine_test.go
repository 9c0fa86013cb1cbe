package recon_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaata-app/khaata/internal/match"
	"github.com/khaata-app/khaata/internal/model"
	"github.com/khaata-app/khaata/internal/recon"
	"github.com/khaata-app/khaata/internal/service"
	"github.com/khaata-app/khaata/internal/testutil"
)

var day = time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)

func txn(id string, source model.TransactionSource, amount string, date time.Time) model.Transaction {
	return testutil.Txn(id, "u1", source, amount, date, "txn "+id)
}

func newEngine(opts recon.Options) *recon.Engine {
	return recon.NewEngine(nil, nil, opts)
}

func TestProposeMatches_ExactSingleIsStrong(t *testing.T) {
	engine := newEngine(recon.DefaultOptions())

	proposals := engine.ProposeMatches(context.Background(),
		[]model.Transaction{txn("b1", model.SourceBank, "1500", day)},
		[]model.Transaction{txn("v1", model.SourceVyapar, "1500", day)},
	)

	require.Len(t, proposals, 1)
	p := proposals[0]
	assert.Equal(t, []string{"b1"}, p.BankIDs)
	assert.Equal(t, []string{"v1"}, p.VyaparIDs)
	assert.Equal(t, recon.ConfidenceExactAmountExactDate, p.Confidence)
	assert.True(t, p.Strong)
	assert.Equal(t, 0, p.DateSpread)
}

func TestProposeMatches_AmbiguousExactHitIsNotStrong(t *testing.T) {
	engine := newEngine(recon.DefaultOptions())

	proposals := engine.ProposeMatches(context.Background(),
		[]model.Transaction{txn("b1", model.SourceBank, "1500", day)},
		[]model.Transaction{
			txn("v1", model.SourceVyapar, "1500", day),
			txn("v2", model.SourceVyapar, "1500", day),
		},
	)

	require.Len(t, proposals, 1)
	assert.Equal(t, recon.ConfidenceExactAmountExactDate, proposals[0].Confidence)
	assert.False(t, proposals[0].Strong)
}

func TestProposeMatches_EpsilonAbsorbsSmallDifference(t *testing.T) {
	engine := newEngine(recon.DefaultOptions())

	proposals := engine.ProposeMatches(context.Background(),
		[]model.Transaction{txn("b1", model.SourceBank, "1500.60", day)},
		[]model.Transaction{txn("v1", model.SourceVyapar, "1500", day)},
	)

	require.Len(t, proposals, 1)
	assert.Equal(t, recon.ConfidenceNearAmountExactDate, proposals[0].Confidence)
	assert.False(t, proposals[0].Strong)
}

func TestProposeMatches_SplitPaymentCombination(t *testing.T) {
	// One bank credit of 1500 settling two vyapar invoices of 900 and 600.
	engine := newEngine(recon.DefaultOptions())

	proposals := engine.ProposeMatches(context.Background(),
		[]model.Transaction{txn("b1", model.SourceBank, "1500", day)},
		[]model.Transaction{
			txn("v1", model.SourceVyapar, "900", day.AddDate(0, 0, -1)),
			txn("v2", model.SourceVyapar, "600", day),
		},
	)

	require.Len(t, proposals, 1)
	p := proposals[0]
	assert.ElementsMatch(t, []string{"v1", "v2"}, p.VyaparIDs)
	assert.Equal(t, recon.ConfidenceExactAmountNearDate, p.Confidence)
	assert.Equal(t, 1, p.DateSpread)
	assert.True(t, p.BankTotal.Equal(p.VyaparTotal))
}

func TestProposeMatches_CombinationRespectsMaxSize(t *testing.T) {
	opts := recon.DefaultOptions()
	opts.MaxCombination = 2

	// 1500 only reachable as 500+500+500, which exceeds the bound.
	proposals := newEngine(opts).ProposeMatches(context.Background(),
		[]model.Transaction{txn("b1", model.SourceBank, "1500", day)},
		[]model.Transaction{
			txn("v1", model.SourceVyapar, "500", day),
			txn("v2", model.SourceVyapar, "500", day),
			txn("v3", model.SourceVyapar, "500", day),
		},
	)
	assert.Empty(t, proposals)
}

func TestProposeMatches_DateWindowExcludesFarCandidates(t *testing.T) {
	engine := newEngine(recon.DefaultOptions())

	proposals := engine.ProposeMatches(context.Background(),
		[]model.Transaction{txn("b1", model.SourceBank, "1500", day)},
		[]model.Transaction{txn("v1", model.SourceVyapar, "1500", day.AddDate(0, 0, 7))},
	)
	assert.Empty(t, proposals)
}

func TestProposeMatches_CandidateIsClaimedOnlyOnce(t *testing.T) {
	engine := newEngine(recon.DefaultOptions())

	proposals := engine.ProposeMatches(context.Background(),
		[]model.Transaction{
			txn("b1", model.SourceBank, "1500", day),
			txn("b2", model.SourceBank, "1500", day.AddDate(0, 0, 1)),
		},
		[]model.Transaction{txn("v1", model.SourceVyapar, "1500", day)},
	)

	require.Len(t, proposals, 1)
	assert.Equal(t, []string{"b1"}, proposals[0].BankIDs)
}

func TestProposeMatches_OrderedByConfidence(t *testing.T) {
	engine := newEngine(recon.DefaultOptions())

	proposals := engine.ProposeMatches(context.Background(),
		[]model.Transaction{
			txn("b-near", model.SourceBank, "200.40", day),
			txn("b-exact", model.SourceBank, "7000", day.AddDate(0, 0, 2)),
		},
		[]model.Transaction{
			txn("v-near", model.SourceVyapar, "200", day),
			txn("v-exact", model.SourceVyapar, "7000", day.AddDate(0, 0, 2)),
		},
	)

	require.Len(t, proposals, 2)
	assert.Equal(t, []string{"b-exact"}, proposals[0].BankIDs)
	assert.Equal(t, recon.ConfidenceExactAmountExactDate, proposals[0].Confidence)
	assert.Equal(t, recon.ConfidenceNearAmountExactDate, proposals[1].Confidence)
}

func TestProposeMatches_IsDeterministic(t *testing.T) {
	engine := newEngine(recon.DefaultOptions())

	bank := []model.Transaction{
		txn("b2", model.SourceBank, "800", day.AddDate(0, 0, 1)),
		txn("b1", model.SourceBank, "800", day),
	}
	vyapar := []model.Transaction{
		txn("v1", model.SourceVyapar, "800", day),
		txn("v2", model.SourceVyapar, "800", day.AddDate(0, 0, 1)),
	}

	first := engine.ProposeMatches(context.Background(), bank, vyapar)
	require.Len(t, first, 2)
	for i := 0; i < 5; i++ {
		again := engine.ProposeMatches(context.Background(), bank, vyapar)
		assert.Equal(t, first, again)
	}
}

func TestProposeMatches_ExpiredContextReturnsPartialResults(t *testing.T) {
	engine := newEngine(recon.DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	proposals := engine.ProposeMatches(ctx,
		[]model.Transaction{txn("b1", model.SourceBank, "1500", day)},
		[]model.Transaction{txn("v1", model.SourceVyapar, "1500", day)},
	)
	assert.Empty(t, proposals)
}

func TestConfidenceString(t *testing.T) {
	assert.Equal(t, "exact amount, exact date", recon.ConfidenceExactAmountExactDate.String())
	assert.Equal(t, "near amount, near date", recon.ConfidenceNearAmountNearDate.String())
}

func TestReconcile_AutoConfirmsStrongMatches(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	groups := match.NewGroupManager(store, decimal.Zero)

	opts := recon.DefaultOptions()
	opts.AutoConfirmStrong = true
	engine := recon.NewEngine(store, groups, opts)

	testutil.SeedTransactions(t, store,
		txn("b1", model.SourceBank, "1500", day),
		txn("v1", model.SourceVyapar, "1500", day),
		// Near-amount pair that must stay a proposal.
		txn("b2", model.SourceBank, "300.50", day),
		txn("v2", model.SourceVyapar, "300", day),
	)

	remaining, err := engine.Reconcile(ctx, "u1", service.DateRange{})
	require.NoError(t, err)

	require.Len(t, remaining, 1)
	assert.Equal(t, []string{"b2"}, remaining[0].BankIDs)

	confirmed, err := store.GetTransaction(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusMatched, confirmed.Status)

	group, err := store.FindGroupByTransactionID(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, group)
	assert.Equal(t, model.GroupConfirmed, group.Status)
}

func TestReconcile_WithoutFastPathOnlyProposes(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	engine := recon.NewEngine(store, nil, recon.DefaultOptions())

	testutil.SeedTransactions(t, store,
		txn("b1", model.SourceBank, "1500", day),
		txn("v1", model.SourceVyapar, "1500", day),
	)

	proposals, err := engine.Reconcile(ctx, "u1", service.DateRange{})
	require.NoError(t, err)
	require.Len(t, proposals, 1)

	// Nothing written.
	bank, err := store.GetTransaction(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnmatched, bank.Status)
}
