// Package pattern implements pure matching between transactions and
// enrichment rules, and derives new rule candidates from user-confirmed
// transactions.
package pattern

import (
	"strings"

	"github.com/khaata-app/khaata/internal/model"
)

// Matches reports whether the rule's pattern applies to the transaction.
// The second return value is false when the rule carries a pattern type this
// version does not understand; callers surface that as a data-integrity
// warning and treat the rule as non-matching.
func Matches(txn model.Transaction, rule model.EnrichmentRule) (matched, known bool) {
	switch rule.PatternType {
	case model.PatternNarrationContains:
		return containsFold(txn.Narration, rule.PatternValue), true
	case model.PatternUPIID:
		return txn.UPIID != "" && strings.EqualFold(txn.UPIID, rule.PatternValue), true
	case model.PatternNEFTName:
		name := NEFTCounterparty(txn)
		return name != "" && strings.EqualFold(name, rule.PatternValue), true
	case model.PatternExactMatch:
		return strings.TrimSpace(txn.Narration) == strings.TrimSpace(rule.PatternValue), true
	}

	return false, false
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// NEFTCounterparty extracts the counterparty name from an NEFT-style
// narration such as "NEFT-N22508123456-ACME SUPPLIES PVT LTD-PAYMENT".
// The imported NEFTName field wins when the parser already filled it in.
// Returns "" when the narration does not look like an NEFT entry.
func NEFTCounterparty(txn model.Transaction) string {
	if txn.NEFTName != "" {
		return txn.NEFTName
	}

	narr := strings.TrimSpace(txn.Narration)
	if !strings.HasPrefix(strings.ToUpper(narr), "NEFT") {
		return ""
	}

	// NEFT-<reference>-<name>[-<remarks>...]
	parts := strings.Split(narr, "-")
	if len(parts) < 3 {
		return ""
	}

	return strings.TrimSpace(parts[2])
}
