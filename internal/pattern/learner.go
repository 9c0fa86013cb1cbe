package pattern

import (
	"strings"
	"unicode"

	"github.com/khaata-app/khaata/internal/common"
	"github.com/khaata-app/khaata/internal/model"
)

// stopwords are bank-statement boilerplate tokens that never identify a
// counterparty.
var stopwords = map[string]struct{}{
	"upi": {}, "neft": {}, "imps": {}, "rtgs": {}, "ach": {}, "nach": {},
	"transfer": {}, "payment": {}, "pmt": {}, "txn": {}, "trf": {},
	"ref": {}, "utr": {}, "to": {}, "from": {}, "by": {}, "of": {},
	"ltd": {}, "pvt": {},
}

// Learn derives a rule candidate from a user-confirmed transaction. The
// pattern type follows a fixed preference order: a UPI id is the most stable
// identifier, an NEFT counterparty name the next best, and a distinguishing
// narration token the fallback.
func Learn(txn model.Transaction, payload model.EnrichmentFields) (model.EnrichmentRule, error) {
	rule := model.EnrichmentRule{
		UserID:  txn.UserID,
		Payload: payload,
		State:   model.RuleActive,
	}

	switch {
	case txn.UPIID != "":
		rule.PatternType = model.PatternUPIID
		rule.PatternValue = strings.ToLower(txn.UPIID)
	case NEFTCounterparty(txn) != "":
		rule.PatternType = model.PatternNEFTName
		rule.PatternValue = NEFTCounterparty(txn)
	default:
		token := DistinguishingToken(txn.Narration)
		if token == "" {
			return model.EnrichmentRule{}, common.Validationf(
				"cannot learn a rule from transaction %s: narration has no usable token", txn.ID)
		}
		rule.PatternType = model.PatternNarrationContains
		rule.PatternValue = token
	}

	return rule, nil
}

// DistinguishingToken picks the narration token most likely to identify the
// counterparty: the longest token that is neither boilerplate nor a numeric
// reference.
func DistinguishingToken(narration string) string {
	tokens := strings.FieldsFunc(narration, func(r rune) bool {
		switch r {
		case ' ', '-', '/', '_', ':', '.', ',', '*':
			return true
		}
		return false
	})

	best := ""
	for _, tok := range tokens {
		if _, skip := stopwords[strings.ToLower(tok)]; skip {
			continue
		}
		if isNumericRef(tok) {
			continue
		}
		if len(tok) > len(best) {
			best = tok
		}
	}

	return best
}

// isNumericRef reports whether a token is a bank reference number: digits
// with at most a single leading letter prefix.
func isNumericRef(tok string) bool {
	digits := 0
	for _, r := range tok {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits > 0 && digits >= len(tok)-1
}
