package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/khaata-app/khaata/internal/common"
	"github.com/khaata-app/khaata/internal/model"
	"github.com/khaata-app/khaata/internal/service"
)

const transactionColumns = `id, user_id, source, date, amount, narration, upi_id, neft_name,
	biz_type, biz_description, vendor_name, needs_invoice, gst_type,
	enrichment_status, match_group_id, recon_status`

// SaveTransactions inserts or replaces imported transactions. Re-importing a
// statement is routine, so an existing id keeps its enrichment and
// reconciliation fields and only refreshes the import fields.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, txns []model.Transaction) error {
	return saveTransactions(ctx, s.db, txns)
}

func (t *sqliteTx) SaveTransactions(ctx context.Context, txns []model.Transaction) error {
	return saveTransactions(ctx, t.tx, txns)
}

func saveTransactions(ctx context.Context, q querier, txns []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(txns); err != nil {
		return err
	}

	query := `
		INSERT INTO transactions (id, user_id, source, date, amount, narration, upi_id, neft_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			amount = excluded.amount,
			narration = excluded.narration,
			upi_id = excluded.upi_id,
			neft_name = excluded.neft_name
	`

	for i := range txns {
		txn := &txns[i]
		_, err := q.ExecContext(ctx, query,
			txn.ID, txn.UserID, string(txn.Source), txn.Date.UTC(),
			txn.Amount.String(), txn.Narration, txn.UPIID, txn.NEFTName,
		)
		if err != nil {
			return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
		}
	}
	return nil
}

// GetTransaction retrieves a transaction by id. Returns nil when absent.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	return getTransaction(ctx, s.db, id)
}

func (t *sqliteTx) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	return getTransaction(ctx, t.tx, id)
}

func getTransaction(ctx context.Context, q querier, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

	rows, err := q.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to get transaction: %w", err)
		}
		return nil, nil
	}

	txn, err := scanTransaction(rows)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// ListUnmatchedTransactions retrieves unmatched transactions for the user
// and source within the date range, oldest first.
func (s *SQLiteStorage) ListUnmatchedTransactions(ctx context.Context, userID string, source model.TransactionSource, dateRange service.DateRange) ([]model.Transaction, error) {
	return listUnmatchedTransactions(ctx, s.db, userID, source, dateRange)
}

func (t *sqliteTx) ListUnmatchedTransactions(ctx context.Context, userID string, source model.TransactionSource, dateRange service.DateRange) ([]model.Transaction, error) {
	return listUnmatchedTransactions(ctx, t.tx, userID, source, dateRange)
}

func listUnmatchedTransactions(ctx context.Context, q querier, userID string, source model.TransactionSource, dateRange service.DateRange) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = ? AND source = ? AND recon_status = 'unmatched'
	`
	args := []any{userID, string(source)}

	if !dateRange.Start.IsZero() {
		query += ` AND date >= ?`
		args = append(args, dateRange.Start.UTC())
	}
	if !dateRange.End.IsZero() {
		query += ` AND date <= ?`
		args = append(args, dateRange.End.UTC())
	}
	query += ` ORDER BY date ASC, id ASC`

	return queryTransactions(ctx, q, query, args...)
}

// ListUnenrichedTransactions retrieves the user's bank transactions that no
// enrichment pass has touched yet.
func (s *SQLiteStorage) ListUnenrichedTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	return listUnenrichedTransactions(ctx, s.db, userID)
}

func (t *sqliteTx) ListUnenrichedTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	return listUnenrichedTransactions(ctx, t.tx, userID)
}

func listUnenrichedTransactions(ctx context.Context, q querier, userID string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = ? AND source = 'bank' AND enrichment_status = 'none'
		ORDER BY date ASC, id ASC
	`
	return queryTransactions(ctx, q, query, userID)
}

// UpdateTransactionEnrichment writes the payload's non-nil fields onto the
// transaction. confirmed marks the values as user-confirmed; a confirmed
// transaction is never downgraded back to auto.
func (s *SQLiteStorage) UpdateTransactionEnrichment(ctx context.Context, txnID string, fields model.EnrichmentFields, confirmed bool) error {
	return updateTransactionEnrichment(ctx, s.db, txnID, fields, confirmed)
}

func (t *sqliteTx) UpdateTransactionEnrichment(ctx context.Context, txnID string, fields model.EnrichmentFields, confirmed bool) error {
	return updateTransactionEnrichment(ctx, t.tx, txnID, fields, confirmed)
}

func updateTransactionEnrichment(ctx context.Context, q querier, txnID string, fields model.EnrichmentFields, confirmed bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(txnID, "txnID"); err != nil {
		return err
	}

	set := ""
	var args []any
	appendSet := func(column string, value any) {
		if set != "" {
			set += ", "
		}
		set += column + " = ?"
		args = append(args, value)
	}

	if fields.BizType != nil {
		appendSet("biz_type", *fields.BizType)
	}
	if fields.BizDescription != nil {
		appendSet("biz_description", *fields.BizDescription)
	}
	if fields.VendorName != nil {
		appendSet("vendor_name", *fields.VendorName)
	}
	if fields.NeedsInvoice != nil {
		appendSet("needs_invoice", boolToNullInt(fields.NeedsInvoice))
	}
	if fields.GSTType != nil {
		appendSet("gst_type", string(*fields.GSTType))
	}

	status := model.EnrichmentAuto
	if confirmed {
		status = model.EnrichmentConfirmed
	}
	appendSet("enrichment_status", string(status))
	args = append(args, txnID)

	query := `UPDATE transactions SET ` + set + ` WHERE id = ?`
	if !confirmed {
		// An automatic pass must never overwrite user-confirmed values.
		query += ` AND enrichment_status != 'confirmed'`
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update enrichment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 && confirmed {
		return common.NotFoundf("transaction %s", txnID)
	}
	return nil
}

// UpdateTransactionReconciliationStatus sets the transaction's match group
// membership. An empty matchGroupID clears it.
func (s *SQLiteStorage) UpdateTransactionReconciliationStatus(ctx context.Context, txnID string, matchGroupID string, status model.ReconciliationStatus) error {
	return updateTransactionReconciliationStatus(ctx, s.db, txnID, matchGroupID, status)
}

func (t *sqliteTx) UpdateTransactionReconciliationStatus(ctx context.Context, txnID string, matchGroupID string, status model.ReconciliationStatus) error {
	return updateTransactionReconciliationStatus(ctx, t.tx, txnID, matchGroupID, status)
}

func updateTransactionReconciliationStatus(ctx context.Context, q querier, txnID string, matchGroupID string, status model.ReconciliationStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(txnID, "txnID"); err != nil {
		return err
	}

	var groupID sql.NullString
	if matchGroupID != "" {
		groupID = sql.NullString{String: matchGroupID, Valid: true}
	}

	query := `UPDATE transactions SET match_group_id = ?, recon_status = ? WHERE id = ?`
	result, err := q.ExecContext(ctx, query, groupID, string(status), txnID)
	if err != nil {
		return fmt.Errorf("failed to update reconciliation status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return common.NotFoundf("transaction %s", txnID)
	}
	return nil
}

func queryTransactions(ctx context.Context, q querier, query string, args ...any) ([]model.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txns, nil
}

func scanTransaction(rows *sql.Rows) (model.Transaction, error) {
	var (
		txn          model.Transaction
		source       string
		date         time.Time
		amount       string
		bizType      sql.NullString
		bizDesc      sql.NullString
		vendorName   sql.NullString
		needsInvoice sql.NullInt64
		gstType      sql.NullString
		enrichStatus string
		matchGroupID sql.NullString
		reconStatus  string
	)

	err := rows.Scan(
		&txn.ID, &txn.UserID, &source, &date, &amount, &txn.Narration, &txn.UPIID, &txn.NEFTName,
		&bizType, &bizDesc, &vendorName, &needsInvoice, &gstType,
		&enrichStatus, &matchGroupID, &reconStatus,
	)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("failed to scan transaction: %w", err)
	}

	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("corrupt amount %q on transaction %s: %w", amount, txn.ID, err)
	}

	txn.Source = model.TransactionSource(source)
	txn.Date = date
	txn.Amount = amt
	txn.Enrichment = model.EnrichmentFields{
		BizType:        nullStringPtr(bizType),
		BizDescription: nullStringPtr(bizDesc),
		VendorName:     nullStringPtr(vendorName),
		NeedsInvoice:   nullIntBoolPtr(needsInvoice),
		GSTType:        nullGSTPtr(gstType),
	}
	txn.EnrichmentStatus = model.EnrichmentStatus(enrichStatus)
	txn.MatchGroupID = matchGroupID.String
	txn.Status = model.ReconciliationStatus(reconStatus)
	return txn, nil
}
