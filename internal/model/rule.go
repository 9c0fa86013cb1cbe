package model

import (
	"time"
)

// PatternType selects which transaction field a rule matches against.
type PatternType string

// Pattern types.
const (
	PatternNarrationContains PatternType = "narration_contains"
	PatternUPIID             PatternType = "upi_id"
	PatternNEFTName          PatternType = "neft_name"
	PatternExactMatch        PatternType = "exact_match"
)

// RuleState is the lifecycle state of an enrichment rule. The transition is
// one-way: active rules may be deactivated, deactivated rules stay inactive.
type RuleState string

// Rule states.
const (
	RuleActive   RuleState = "active"
	RuleInactive RuleState = "inactive"
)

// EnrichmentRule maps a transaction pattern to a classification payload.
// Rules are strictly user-scoped. After creation only MatchCount, Priority,
// State and UpdatedAt change.
type EnrichmentRule struct {
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ID           string
	UserID       string
	PatternValue string
	PatternType  PatternType
	Payload      EnrichmentFields
	MatchCount   int
	Priority     int
	State        RuleState
}

// IsActive reports whether the rule participates in matching.
func (r *EnrichmentRule) IsActive() bool {
	return r.State == RuleActive
}
