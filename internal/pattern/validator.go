package pattern

import (
	"strings"

	"github.com/khaata-app/khaata/internal/common"
	"github.com/khaata-app/khaata/internal/model"
)

// ValidateRule checks an enrichment rule before it reaches storage.
func ValidateRule(rule *model.EnrichmentRule) error {
	if rule == nil {
		return common.Validationf("rule is nil")
	}
	if strings.TrimSpace(rule.UserID) == "" {
		return common.Validationf("rule is missing a user id")
	}
	if strings.TrimSpace(rule.PatternValue) == "" {
		return common.Validationf("rule has an empty pattern value")
	}

	switch rule.PatternType {
	case model.PatternNarrationContains,
		model.PatternUPIID,
		model.PatternNEFTName,
		model.PatternExactMatch:
	default:
		return common.Validationf("unknown pattern type %q", rule.PatternType)
	}

	if rule.Payload.GSTType != nil {
		switch *rule.Payload.GSTType {
		case model.GSTInput, model.GSTOutput, model.GSTNone:
		default:
			return common.Validationf("unknown gst type %q", *rule.Payload.GSTType)
		}
	}

	return nil
}
