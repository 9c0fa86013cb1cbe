// Package model defines the core data structures for khaata.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionSource identifies where a transaction record came from.
type TransactionSource string

// Transaction sources.
const (
	SourceBank   TransactionSource = "bank"
	SourceVyapar TransactionSource = "vyapar"
)

// ReconciliationStatus tracks a transaction's membership in a match group.
type ReconciliationStatus string

// Reconciliation statuses.
const (
	StatusUnmatched        ReconciliationStatus = "unmatched"
	StatusMatched          ReconciliationStatus = "matched"
	StatusPartiallyMatched ReconciliationStatus = "partially_matched"
)

// EnrichmentStatus distinguishes untouched, auto-enriched and user-confirmed
// transactions. Confirmed values are never overwritten by a later automatic
// enrichment pass.
type EnrichmentStatus string

// Enrichment statuses.
const (
	EnrichmentNone      EnrichmentStatus = "none"
	EnrichmentAuto      EnrichmentStatus = "auto"
	EnrichmentConfirmed EnrichmentStatus = "confirmed"
)

// GSTType is the GST treatment of a transaction.
type GSTType string

// GST treatments.
const (
	GSTInput  GSTType = "input"
	GSTOutput GSTType = "output"
	GSTNone   GSTType = "none"
)

// Transaction represents a single financial movement, imported from a bank
// statement or recorded directly in the vyapar ledger. Import fields are
// immutable; enrichment and reconciliation fields are owned by the applier
// and the group manager respectively and never touched by the other side.
type Transaction struct {
	Date      time.Time
	ID        string
	UserID    string
	Narration string
	UPIID     string
	NEFTName  string
	Source    TransactionSource
	Amount    decimal.Decimal

	// Enrichment fields, written by the enrichment applier.
	Enrichment       EnrichmentFields
	EnrichmentStatus EnrichmentStatus

	// Reconciliation fields, written by the match group manager.
	MatchGroupID string
	Status       ReconciliationStatus
}

// EnrichmentFields carries the derived classification for a transaction.
// A nil field means "leave the existing value untouched", never "clear".
type EnrichmentFields struct {
	BizType        *string
	BizDescription *string
	VendorName     *string
	NeedsInvoice   *bool
	GSTType        *GSTType
}

// Empty reports whether the payload carries no values at all.
func (f EnrichmentFields) Empty() bool {
	return f.BizType == nil && f.BizDescription == nil && f.VendorName == nil &&
		f.NeedsInvoice == nil && f.GSTType == nil
}

// Merge overwrites the fields that other supplies and leaves the rest alone.
func (f *EnrichmentFields) Merge(other EnrichmentFields) {
	if other.BizType != nil {
		f.BizType = other.BizType
	}
	if other.BizDescription != nil {
		f.BizDescription = other.BizDescription
	}
	if other.VendorName != nil {
		f.VendorName = other.VendorName
	}
	if other.NeedsInvoice != nil {
		f.NeedsInvoice = other.NeedsInvoice
	}
	if other.GSTType != nil {
		f.GSTType = other.GSTType
	}
}
