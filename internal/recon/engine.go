// Package recon discovers candidate match groups between bank and vyapar
// transactions and drives their confirmation through the group manager.
package recon

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/khaata-app/khaata/internal/common"
	"github.com/khaata-app/khaata/internal/model"
	"github.com/khaata-app/khaata/internal/service"
)

// Confidence ranks a proposal by how exactly its amounts and dates line up.
// Higher is stronger.
type Confidence int

// Confidence levels, weakest first.
const (
	ConfidenceNearAmountNearDate Confidence = iota
	ConfidenceNearAmountExactDate
	ConfidenceExactAmountNearDate
	ConfidenceExactAmountExactDate
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceExactAmountExactDate:
		return "exact amount, exact date"
	case ConfidenceExactAmountNearDate:
		return "exact amount, near date"
	case ConfidenceNearAmountExactDate:
		return "near amount, exact date"
	case ConfidenceNearAmountNearDate:
		return "near amount, near date"
	}
	return "unknown"
}

// Options tunes candidate discovery.
type Options struct {
	// WindowDays is the date window, in days either side of the bank
	// transaction, inside which vyapar transactions are considered.
	WindowDays int
	// AmountEpsilon is the slack allowed on single-transaction near-amount
	// matches, absorbing rounding differences.
	AmountEpsilon decimal.Decimal
	// MaxCombination bounds the subset search for split payments. Beyond
	// this many vyapar transactions the engine reports no automatic match.
	MaxCombination int
	// AutoConfirmStrong enables the fast path: exact amount, exact date and
	// a unique candidate may be confirmed directly instead of proposed.
	AutoConfirmStrong bool
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		WindowDays:     3,
		AmountEpsilon:  decimal.NewFromInt(1),
		MaxCombination: 4,
	}
}

// Proposal is an unconfirmed candidate match group: one bank transaction
// against one or more vyapar transactions.
type Proposal struct {
	BankIDs      []string
	VyaparIDs    []string
	Confidence   Confidence
	Strong       bool
	DateSpread   int
	BankTotal    decimal.Decimal
	VyaparTotal  decimal.Decimal
}

// Engine proposes match groups. ProposeMatches is a pure read; persistence
// happens only through the group manager once a proposal is accepted.
type Engine struct {
	storage service.Storage
	groups  GroupCreator
	opts    Options
}

// GroupCreator is the slice of the group manager the engine needs for the
// auto-confirm fast path.
type GroupCreator interface {
	CreateGroup(ctx context.Context, userID string, bankIDs, vyaparIDs []string, confirmed bool) (*model.MatchGroup, error)
}

// NewEngine creates a reconciliation engine.
func NewEngine(storage service.Storage, groups GroupCreator, opts Options) *Engine {
	if opts.WindowDays <= 0 {
		opts.WindowDays = DefaultOptions().WindowDays
	}
	if opts.MaxCombination <= 0 {
		opts.MaxCombination = DefaultOptions().MaxCombination
	}
	return &Engine{storage: storage, groups: groups, opts: opts}
}

// ProposeMatches pairs unmatched bank transactions with unmatched vyapar
// transactions. It never writes. When the context deadline expires mid-way
// the proposals found so far are returned rather than blocking.
func (e *Engine) ProposeMatches(ctx context.Context, bankTxns, vyaparTxns []model.Transaction) []Proposal {
	// Deterministic scan order: oldest bank transaction first.
	bank := make([]model.Transaction, len(bankTxns))
	copy(bank, bankTxns)
	sort.Slice(bank, func(i, j int) bool {
		if !bank[i].Date.Equal(bank[j].Date) {
			return bank[i].Date.Before(bank[j].Date)
		}
		return bank[i].ID < bank[j].ID
	})

	claimed := make(map[string]bool, len(vyaparTxns))
	var proposals []Proposal

	for _, bt := range bank {
		if ctx.Err() != nil {
			break
		}

		window := e.windowCandidates(bt, vyaparTxns, claimed)
		if len(window) == 0 {
			continue
		}

		if p, ok := e.bestSingle(bt, window); ok {
			claim(claimed, p.VyaparIDs)
			proposals = append(proposals, p)
			continue
		}

		if p, ok := e.bestCombination(ctx, bt, window); ok {
			claim(claimed, p.VyaparIDs)
			proposals = append(proposals, p)
		}
	}

	sort.SliceStable(proposals, func(i, j int) bool {
		if proposals[i].Confidence != proposals[j].Confidence {
			return proposals[i].Confidence > proposals[j].Confidence
		}
		if proposals[i].DateSpread != proposals[j].DateSpread {
			return proposals[i].DateSpread < proposals[j].DateSpread
		}
		return proposals[i].BankIDs[0] < proposals[j].BankIDs[0]
	})

	return proposals
}

func claim(claimed map[string]bool, ids []string) {
	for _, id := range ids {
		claimed[id] = true
	}
}

// windowCandidates returns the unclaimed vyapar transactions within the date
// window around the bank transaction.
func (e *Engine) windowCandidates(bt model.Transaction, vyaparTxns []model.Transaction, claimed map[string]bool) []model.Transaction {
	var out []model.Transaction
	for _, vt := range vyaparTxns {
		if claimed[vt.ID] {
			continue
		}
		if dateDiffDays(bt.Date, vt.Date) <= e.opts.WindowDays {
			out = append(out, vt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// bestSingle finds the strongest one-to-one candidate: exact amount beats
// near amount, exact date beats near date, smaller date distance beats
// larger.
func (e *Engine) bestSingle(bt model.Transaction, window []model.Transaction) (Proposal, bool) {
	var (
		best      Proposal
		found     bool
		exactHits int
	)

	for _, vt := range window {
		diff := bt.Amount.Sub(vt.Amount).Abs()
		exactAmount := diff.IsZero()
		if !exactAmount && diff.Cmp(e.opts.AmountEpsilon) > 0 {
			continue
		}

		spread := dateDiffDays(bt.Date, vt.Date)
		p := Proposal{
			BankIDs:     []string{bt.ID},
			VyaparIDs:   []string{vt.ID},
			Confidence:  confidence(exactAmount, spread == 0),
			DateSpread:  spread,
			BankTotal:   bt.Amount,
			VyaparTotal: vt.Amount,
		}
		if exactAmount && spread == 0 {
			exactHits++
		}
		if !found || better(p, best) {
			best = p
			found = true
		}
	}

	if found && best.Confidence == ConfidenceExactAmountExactDate && exactHits == 1 {
		best.Strong = true
	}
	return best, found
}

func better(a, b Proposal) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.DateSpread < b.DateSpread
}

// bestCombination searches for 2..MaxCombination vyapar transactions whose
// amounts sum exactly to the bank amount, modelling split payments. The
// search is exhaustive within the bound and stops early when the context is
// done.
func (e *Engine) bestCombination(ctx context.Context, bt model.Transaction, window []model.Transaction) (Proposal, bool) {
	combo := findCombination(ctx, window, bt.Amount, e.opts.MaxCombination)
	if len(combo) < 2 {
		return Proposal{}, false
	}

	spread := 0
	total := decimal.Zero
	ids := make([]string, 0, len(combo))
	for _, vt := range combo {
		if d := dateDiffDays(bt.Date, vt.Date); d > spread {
			spread = d
		}
		total = total.Add(vt.Amount)
		ids = append(ids, vt.ID)
	}

	return Proposal{
		BankIDs:     []string{bt.ID},
		VyaparIDs:   ids,
		Confidence:  confidence(true, spread == 0),
		DateSpread:  spread,
		BankTotal:   bt.Amount,
		VyaparTotal: total,
	}, true
}

func confidence(exactAmount, exactDate bool) Confidence {
	switch {
	case exactAmount && exactDate:
		return ConfidenceExactAmountExactDate
	case exactAmount:
		return ConfidenceExactAmountNearDate
	case exactDate:
		return ConfidenceNearAmountExactDate
	}
	return ConfidenceNearAmountNearDate
}

func dateDiffDays(a, b time.Time) int {
	days := int(a.Truncate(24*time.Hour).Sub(b.Truncate(24*time.Hour)).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

// Reconcile loads the user's unmatched transactions, proposes matches and,
// when the fast path is enabled, confirms the strong ones directly. The
// remaining proposals are returned for manual review.
func (e *Engine) Reconcile(ctx context.Context, userID string, dateRange service.DateRange) ([]Proposal, error) {
	bank, err := e.storage.ListUnmatchedTransactions(ctx, userID, model.SourceBank, dateRange)
	if err != nil {
		return nil, fmt.Errorf("failed to list unmatched bank transactions: %w", err)
	}
	vyapar, err := e.storage.ListUnmatchedTransactions(ctx, userID, model.SourceVyapar, dateRange)
	if err != nil {
		return nil, fmt.Errorf("failed to list unmatched vyapar transactions: %w", err)
	}

	proposals := e.ProposeMatches(ctx, bank, vyapar)
	if !e.opts.AutoConfirmStrong || e.groups == nil {
		return proposals, nil
	}

	remaining := proposals[:0]
	for _, p := range proposals {
		if !p.Strong {
			remaining = append(remaining, p)
			continue
		}
		if _, err := e.groups.CreateGroup(ctx, userID, p.BankIDs, p.VyaparIDs, true); err != nil {
			common.LogError(err, "auto-confirm failed, leaving proposal for review", common.Fields{
				"bank_transaction_id": p.BankIDs[0],
			})
			remaining = append(remaining, p)
		}
	}
	return remaining, nil
}
