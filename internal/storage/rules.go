package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/khaata-app/khaata/internal/common"
	"github.com/khaata-app/khaata/internal/model"
)

const ruleColumns = `id, user_id, pattern_type, pattern_value,
	biz_type, biz_description, vendor_name, needs_invoice, gst_type,
	match_count, priority, state, created_at, updated_at`

// ListActiveRules retrieves the user's active rules ordered by priority
// descending, then match count, then recency. Rule id breaks final ties so
// the ordering is deterministic.
func (s *SQLiteStorage) ListActiveRules(ctx context.Context, userID string) ([]model.EnrichmentRule, error) {
	return listActiveRules(ctx, s.db, userID)
}

func (t *sqliteTx) ListActiveRules(ctx context.Context, userID string) ([]model.EnrichmentRule, error) {
	return listActiveRules(ctx, t.tx, userID)
}

func listActiveRules(ctx context.Context, q querier, userID string) ([]model.EnrichmentRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + ruleColumns + `
		FROM enrichment_rules
		WHERE user_id = ? AND state = 'active'
		ORDER BY priority DESC, match_count DESC, updated_at DESC, id ASC
	`

	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.EnrichmentRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

// GetRule retrieves a rule by id, active or not. Returns nil when absent.
func (s *SQLiteStorage) GetRule(ctx context.Context, ruleID string) (*model.EnrichmentRule, error) {
	return getRule(ctx, s.db, ruleID)
}

func (t *sqliteTx) GetRule(ctx context.Context, ruleID string) (*model.EnrichmentRule, error) {
	return getRule(ctx, t.tx, ruleID)
}

func getRule(ctx context.Context, q querier, ruleID string) (*model.EnrichmentRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ruleID, "ruleID"); err != nil {
		return nil, err
	}

	query := `SELECT ` + ruleColumns + ` FROM enrichment_rules WHERE id = ?`

	rows, err := q.QueryContext(ctx, query, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to get rule: %w", err)
		}
		return nil, nil
	}

	rule, err := scanRule(rows)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// InsertRule inserts a new rule. A duplicate active pattern for the same
// user violates the partial unique index and surfaces as a conflict.
func (s *SQLiteStorage) InsertRule(ctx context.Context, rule *model.EnrichmentRule) error {
	return insertRule(ctx, s.db, rule)
}

func (t *sqliteTx) InsertRule(ctx context.Context, rule *model.EnrichmentRule) error {
	return insertRule(ctx, t.tx, rule)
}

func insertRule(ctx context.Context, q querier, rule *model.EnrichmentRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO enrichment_rules (
			id, user_id, pattern_type, pattern_value,
			biz_type, biz_description, vendor_name, needs_invoice, gst_type,
			match_count, priority, state, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		rule.ID, rule.UserID, string(rule.PatternType), rule.PatternValue,
		rule.Payload.BizType, rule.Payload.BizDescription, rule.Payload.VendorName,
		boolToNullInt(rule.Payload.NeedsInvoice), gstToNullString(rule.Payload.GSTType),
		rule.MatchCount, rule.Priority, string(rule.State), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return common.Conflictf("active rule for pattern (%s, %s) already exists", rule.PatternType, rule.PatternValue)
		}
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	rule.CreatedAt = now
	rule.UpdatedAt = now
	return nil
}

// UpdateRule rewrites a rule's mutable fields: payload, priority, match
// count and state.
func (s *SQLiteStorage) UpdateRule(ctx context.Context, rule *model.EnrichmentRule) error {
	return updateRule(ctx, s.db, rule)
}

func (t *sqliteTx) UpdateRule(ctx context.Context, rule *model.EnrichmentRule) error {
	return updateRule(ctx, t.tx, rule)
}

func updateRule(ctx context.Context, q querier, rule *model.EnrichmentRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		UPDATE enrichment_rules SET
			biz_type = ?, biz_description = ?, vendor_name = ?,
			needs_invoice = ?, gst_type = ?,
			match_count = ?, priority = ?, state = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := q.ExecContext(ctx, query,
		rule.Payload.BizType, rule.Payload.BizDescription, rule.Payload.VendorName,
		boolToNullInt(rule.Payload.NeedsInvoice), gstToNullString(rule.Payload.GSTType),
		rule.MatchCount, rule.Priority, string(rule.State), now,
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return common.NotFoundf("rule %s", rule.ID)
	}

	rule.UpdatedAt = now
	return nil
}

// DeactivateRule retires a rule without deleting it.
func (s *SQLiteStorage) DeactivateRule(ctx context.Context, ruleID string) error {
	return deactivateRule(ctx, s.db, ruleID)
}

func (t *sqliteTx) DeactivateRule(ctx context.Context, ruleID string) error {
	return deactivateRule(ctx, t.tx, ruleID)
}

func deactivateRule(ctx context.Context, q querier, ruleID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(ruleID, "ruleID"); err != nil {
		return err
	}

	query := `UPDATE enrichment_rules SET state = 'inactive', updated_at = ? WHERE id = ?`
	result, err := q.ExecContext(ctx, query, time.Now().UTC(), ruleID)
	if err != nil {
		return fmt.Errorf("failed to deactivate rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return common.NotFoundf("rule %s", ruleID)
	}
	return nil
}

// IncrementRuleUsage bumps a rule's match count. The increment runs inside
// the UPDATE so concurrent callers serialize on the row and never lose
// updates.
func (s *SQLiteStorage) IncrementRuleUsage(ctx context.Context, ruleID string) error {
	return incrementRuleUsage(ctx, s.db, ruleID)
}

func (t *sqliteTx) IncrementRuleUsage(ctx context.Context, ruleID string) error {
	return incrementRuleUsage(ctx, t.tx, ruleID)
}

func incrementRuleUsage(ctx context.Context, q querier, ruleID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(ruleID, "ruleID"); err != nil {
		return err
	}

	query := `UPDATE enrichment_rules SET match_count = match_count + 1, updated_at = ? WHERE id = ?`
	result, err := q.ExecContext(ctx, query, time.Now().UTC(), ruleID)
	if err != nil {
		return fmt.Errorf("failed to increment rule usage: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return common.NotFoundf("rule %s", ruleID)
	}
	return nil
}

// scanRule reads one rule from the current row.
func scanRule(rows *sql.Rows) (model.EnrichmentRule, error) {
	var (
		rule         model.EnrichmentRule
		patternType  string
		state        string
		bizType      sql.NullString
		bizDesc      sql.NullString
		vendorName   sql.NullString
		needsInvoice sql.NullInt64
		gstType      sql.NullString
	)

	err := rows.Scan(
		&rule.ID, &rule.UserID, &patternType, &rule.PatternValue,
		&bizType, &bizDesc, &vendorName, &needsInvoice, &gstType,
		&rule.MatchCount, &rule.Priority, &state, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return model.EnrichmentRule{}, fmt.Errorf("failed to scan rule: %w", err)
	}

	rule.PatternType = model.PatternType(patternType)
	rule.State = model.RuleState(state)
	rule.Payload = model.EnrichmentFields{
		BizType:        nullStringPtr(bizType),
		BizDescription: nullStringPtr(bizDesc),
		VendorName:     nullStringPtr(vendorName),
		NeedsInvoice:   nullIntBoolPtr(needsInvoice),
		GSTType:        nullGSTPtr(gstType),
	}
	return rule, nil
}
