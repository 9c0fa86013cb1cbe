package recon

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/khaata-app/khaata/internal/model"
)

// findCombination searches for up to maxN transactions from cands whose
// amounts sum exactly to target. cands must be sorted by amount descending;
// the search walks subsets depth-first, pruning branches that overshoot, and
// aborts with nil once the context is done. Returns nil when no combination
// exists within the bound.
func findCombination(ctx context.Context, cands []model.Transaction, target decimal.Decimal, maxN int) []model.Transaction {
	if target.Sign() <= 0 {
		return nil
	}

	s := &subsetSearch{ctx: ctx, cands: cands, maxN: maxN}
	if s.walk(0, target, nil) {
		return s.found
	}
	return nil
}

type subsetSearch struct {
	ctx   context.Context
	cands []model.Transaction
	found []model.Transaction
	maxN  int
}

func (s *subsetSearch) walk(start int, remaining decimal.Decimal, picked []model.Transaction) bool {
	if s.ctx.Err() != nil {
		return false
	}
	if remaining.IsZero() {
		if len(picked) == 0 {
			return false
		}
		s.found = append([]model.Transaction(nil), picked...)
		return true
	}
	if len(picked) == s.maxN || remaining.Sign() < 0 {
		return false
	}

	for i := start; i < len(s.cands); i++ {
		amt := s.cands[i].Amount
		// cands are sorted descending, so once one amount fits the rest
		// might too; amounts larger than the remainder can't contribute.
		if amt.Cmp(remaining) > 0 {
			continue
		}
		if s.walk(i+1, remaining.Sub(amt), append(picked, s.cands[i])) {
			return true
		}
	}
	return false
}
