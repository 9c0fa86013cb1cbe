package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/khaata-app/khaata/internal/common"
	"github.com/khaata-app/khaata/internal/model"
)

// CreateMatchGroupRows writes the group header and one junction row per
// member transaction. The partial unique indexes on the junction table turn
// a double-claimed transaction id into a conflict at write time, so the
// membership check and the insert are atomic.
func (s *SQLiteStorage) CreateMatchGroupRows(ctx context.Context, group *model.MatchGroup) error {
	return createMatchGroupRows(ctx, s.db, group)
}

func (t *sqliteTx) CreateMatchGroupRows(ctx context.Context, group *model.MatchGroup) error {
	return createMatchGroupRows(ctx, t.tx, group)
}

func createMatchGroupRows(ctx context.Context, q querier, group *model.MatchGroup) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateGroup(group); err != nil {
		return err
	}

	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO match_groups (id, user_id, status, unbalanced, created_at) VALUES (?, ?, ?, ?, ?)`,
		group.ID, group.UserID, string(group.Status), group.Unbalanced, group.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return common.Conflictf("match group %s already exists", group.ID)
		}
		return fmt.Errorf("failed to insert match group: %w", err)
	}

	for _, id := range group.BankIDs {
		if err := insertGroupRow(ctx, q, group.ID, id, ""); err != nil {
			return err
		}
	}
	for _, id := range group.VyaparIDs {
		if err := insertGroupRow(ctx, q, group.ID, "", id); err != nil {
			return err
		}
	}
	return nil
}

func insertGroupRow(ctx context.Context, q querier, groupID, bankID, vyaparID string) error {
	var bank, vyapar sql.NullString
	if bankID != "" {
		bank = sql.NullString{String: bankID, Valid: true}
	}
	if vyaparID != "" {
		vyapar = sql.NullString{String: vyaparID, Valid: true}
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO match_group_rows (match_group_id, bank_transaction_id, vyapar_transaction_id) VALUES (?, ?, ?)`,
		groupID, bank, vyapar,
	)
	if err != nil {
		if isUniqueViolation(err) {
			id := bankID
			if id == "" {
				id = vyaparID
			}
			return common.Conflictf("transaction %s already belongs to an active match group", id)
		}
		return fmt.Errorf("failed to insert match group row: %w", err)
	}
	return nil
}

// DeleteMatchGroupRows removes the group and all its junction rows. Deleting
// rows for a group that no longer exists is a no-op.
func (s *SQLiteStorage) DeleteMatchGroupRows(ctx context.Context, matchGroupID string) error {
	return deleteMatchGroupRows(ctx, s.db, matchGroupID)
}

func (t *sqliteTx) DeleteMatchGroupRows(ctx context.Context, matchGroupID string) error {
	return deleteMatchGroupRows(ctx, t.tx, matchGroupID)
}

func deleteMatchGroupRows(ctx context.Context, q querier, matchGroupID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(matchGroupID, "matchGroupID"); err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx,
		`DELETE FROM match_group_rows WHERE match_group_id = ?`, matchGroupID); err != nil {
		return fmt.Errorf("failed to delete match group rows: %w", err)
	}
	if _, err := q.ExecContext(ctx,
		`DELETE FROM match_groups WHERE id = ?`, matchGroupID); err != nil {
		return fmt.Errorf("failed to delete match group: %w", err)
	}
	return nil
}

// GetMatchGroup loads a group and its membership. Returns nil when the group
// does not exist.
func (s *SQLiteStorage) GetMatchGroup(ctx context.Context, matchGroupID string) (*model.MatchGroup, error) {
	return getMatchGroup(ctx, s.db, matchGroupID)
}

func (t *sqliteTx) GetMatchGroup(ctx context.Context, matchGroupID string) (*model.MatchGroup, error) {
	return getMatchGroup(ctx, t.tx, matchGroupID)
}

func getMatchGroup(ctx context.Context, q querier, matchGroupID string) (*model.MatchGroup, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(matchGroupID, "matchGroupID"); err != nil {
		return nil, err
	}

	var (
		group  model.MatchGroup
		status string
	)
	row := q.QueryRowContext(ctx,
		`SELECT id, user_id, status, unbalanced, created_at FROM match_groups WHERE id = ?`,
		matchGroupID,
	)
	err := row.Scan(&group.ID, &group.UserID, &status, &group.Unbalanced, &group.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match group: %w", err)
	}
	group.Status = model.MatchGroupStatus(status)

	if err := loadGroupMembers(ctx, q, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

// FindGroupByTransactionID returns the active group holding the transaction,
// with membership loaded, or nil when the transaction is unmatched.
func (s *SQLiteStorage) FindGroupByTransactionID(ctx context.Context, txnID string) (*model.MatchGroup, error) {
	return findGroupByTransactionID(ctx, s.db, txnID)
}

func (t *sqliteTx) FindGroupByTransactionID(ctx context.Context, txnID string) (*model.MatchGroup, error) {
	return findGroupByTransactionID(ctx, t.tx, txnID)
}

func findGroupByTransactionID(ctx context.Context, q querier, txnID string) (*model.MatchGroup, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(txnID, "txnID"); err != nil {
		return nil, err
	}

	var groupID string
	row := q.QueryRowContext(ctx,
		`SELECT match_group_id FROM match_group_rows
		 WHERE bank_transaction_id = ? OR vyapar_transaction_id = ?
		 LIMIT 1`,
		txnID, txnID,
	)
	err := row.Scan(&groupID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find group for transaction: %w", err)
	}

	return getMatchGroup(ctx, q, groupID)
}

func loadGroupMembers(ctx context.Context, q querier, group *model.MatchGroup) error {
	rows, err := q.QueryContext(ctx,
		`SELECT bank_transaction_id, vyapar_transaction_id
		 FROM match_group_rows WHERE match_group_id = ? ORDER BY id ASC`,
		group.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to load match group rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var bank, vyapar sql.NullString
		if err := rows.Scan(&bank, &vyapar); err != nil {
			return fmt.Errorf("failed to scan match group row: %w", err)
		}
		if bank.Valid {
			group.BankIDs = append(group.BankIDs, bank.String)
		}
		if vyapar.Valid {
			group.VyaparIDs = append(group.VyaparIDs, vyapar.String)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating match group rows: %w", err)
	}
	return nil
}
