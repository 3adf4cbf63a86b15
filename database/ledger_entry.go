package database

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"github.com/mobolade/tally/internal/apierror"
	"github.com/mobolade/tally/model"
)

// The ledger entry log is append-only: RecordLedgerEntry is the only write,
// and there is deliberately no update or delete.

func (d Datasource) RecordLedgerEntry(ctx context.Context, scope WriteScope, entry *model.LedgerEntry) (*model.LedgerEntry, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "Appending ledger entry")
	defer span.End()

	_, err := scope.exec().ExecContext(ctx, `
		INSERT INTO tally.ledger_entries (entry_id, transaction_id, account_id, kind, amount, currency, balance_after, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.EntryID, entry.TransactionID, entry.AccountID, entry.Kind, entry.Amount, entry.Currency, entry.BalanceAfter, entry.Description, entry.CreatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record ledger entry", err)
	}

	return entry, nil
}

const ledgerEntryColumns = `entry_id, transaction_id, account_id, kind, amount, currency, balance_after, description, created_at`

func (d Datasource) GetLedgerEntries(ctx context.Context, accountID string, page, limit int) ([]model.LedgerEntry, int64, error) {
	var total int64
	err := d.Conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM tally.ledger_entries WHERE account_id = $1`, accountID).Scan(&total)
	if err != nil {
		return nil, 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count ledger entries", err)
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+ledgerEntryColumns+`
		FROM tally.ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, model.Offset(page, limit))
	if err != nil {
		return nil, 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve ledger entries", err)
	}
	defer rows.Close()

	entries, err := collectLedgerEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (d Datasource) GetLedgerEntriesByTransaction(ctx context.Context, transactionID string) ([]model.LedgerEntry, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+ledgerEntryColumns+`
		FROM tally.ledger_entries
		WHERE transaction_id = $1
		ORDER BY account_id
	`, transactionID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve ledger entries", err)
	}
	defer rows.Close()

	return collectLedgerEntries(rows)
}

// SumLedgerEntries folds the signed entries of an account in the store:
// debits count positive, credits negative. The result must equal the
// account's balance.
func (d Datasource) SumLedgerEntries(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN kind = 'debit' THEN amount ELSE -amount END), 0)
		FROM tally.ledger_entries
		WHERE account_id = $1
	`, accountID).Scan(&sum)
	if err != nil {
		return decimal.Zero, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to sum ledger entries", err)
	}
	return sum, nil
}

func collectLedgerEntries(rows *sql.Rows) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	for rows.Next() {
		entry := model.LedgerEntry{}
		err := rows.Scan(&entry.EntryID, &entry.TransactionID, &entry.AccountID, &entry.Kind, &entry.Amount,
			&entry.Currency, &entry.BalanceAfter, &entry.Description, &entry.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan ledger entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate ledger entries", err)
	}
	return entries, nil
}
