package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/mobolade/tally/internal/apierror"
	"github.com/mobolade/tally/model"
)

const transactionCacheTTL = 5 * time.Minute

func transactionCacheKey(id string) string {
	return "tally:transaction:" + id
}

func (d Datasource) RecordTransaction(ctx context.Context, scope WriteScope, txn *model.Transaction) (*model.Transaction, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "Saving transaction to db")
	defer span.End()

	metaDataJSON, err := json.Marshal(txn.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	_, err = scope.exec().ExecContext(ctx, `
		INSERT INTO tally.transactions (transaction_id, owner_id, type, amount, currency, source_account_id, destination_account_id, reference, description, status, meta_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, txn.TransactionID, txn.OwnerID, txn.Type, txn.Amount, txn.Currency, nullString(txn.Source), nullString(txn.Destination),
		txn.Reference, txn.Description, txn.Status, metaDataJSON, txn.CreatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record transaction", err)
	}

	return txn, nil
}

// MarkTransactionCompleted is the only status transition the core performs;
// it happens inside the same scope as the writes it depends on.
func (d Datasource) MarkTransactionCompleted(ctx context.Context, scope WriteScope, id string, completedAt time.Time) error {
	result, err := scope.exec().ExecContext(ctx, `
		UPDATE tally.transactions
		SET status = $2, completed_at = $3
		WHERE transaction_id = $1 AND status = $4
	`, id, model.StatusCompleted, completedAt, model.StatusPending)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to complete transaction", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewReasonError(apierror.ErrNotFound, apierror.ReasonTransactionNotFound,
			fmt.Sprintf("Pending transaction with ID '%s' not found", id), nil)
	}

	if d.Cache != nil {
		_ = d.Cache.Delete(ctx, transactionCacheKey(id))
	}
	return nil
}

const transactionColumns = `transaction_id, owner_id, type, amount, currency, source_account_id, destination_account_id, reference, description, status, meta_data, created_at, completed_at`

func (d Datasource) GetTransaction(ctx context.Context, id, ownerID string) (*model.Transaction, error) {
	if d.Cache != nil {
		cached := &model.Transaction{}
		if err := d.Cache.Get(ctx, transactionCacheKey(id), cached); err == nil && cached.TransactionID == id {
			if cached.OwnerID != ownerID {
				return nil, apierror.NewReasonError(apierror.ErrNotFound, apierror.ReasonTransactionNotFound,
					fmt.Sprintf("Transaction with ID '%s' not found", id), nil)
			}
			return cached, nil
		}
	}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM tally.transactions
		WHERE transaction_id = $1 AND owner_id = $2
	`, id, ownerID)

	txn, err := scanTransaction(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewReasonError(apierror.ErrNotFound, apierror.ReasonTransactionNotFound,
				fmt.Sprintf("Transaction with ID '%s' not found", id), err)
		}
		return nil, err
	}

	if d.Cache != nil {
		_ = d.Cache.Set(ctx, transactionCacheKey(id), txn, transactionCacheTTL)
	}
	return txn, nil
}

func (d Datasource) GetTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.Transaction, int64, error) {
	where := `WHERE owner_id = $1`
	args := []interface{}{filter.OwnerID}
	if filter.AccountID != "" {
		args = append(args, filter.AccountID)
		where += fmt.Sprintf(` AND (source_account_id = $%d OR destination_account_id = $%d)`, len(args), len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		where += fmt.Sprintf(` AND type = $%d`, len(args))
	}
	if !filter.StartDate.IsZero() {
		args = append(args, filter.StartDate)
		where += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if !filter.EndDate.IsZero() {
		args = append(args, filter.EndDate)
		where += fmt.Sprintf(` AND created_at <= $%d`, len(args))
	}

	var total int64
	err := d.Conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM tally.transactions `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count transactions", err)
	}

	args = append(args, filter.Limit, model.Offset(filter.Page, filter.Limit))
	query := fmt.Sprintf(`SELECT `+transactionColumns+` FROM tally.transactions %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transactions", err)
	}
	defer rows.Close()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		transactions = append(transactions, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate transactions", err)
	}

	return transactions, total, nil
}

func (d Datasource) TransactionExistsByRef(ctx context.Context, reference string) (bool, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "Checking transaction reference")
	defer span.End()

	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM tally.transactions WHERE reference = $1)
	`, reference).Scan(&exists)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check if transaction exists", err)
	}

	return exists, nil
}

func scanTransaction(scan func(dest ...interface{}) error) (*model.Transaction, error) {
	txn := &model.Transaction{}
	var metaDataJSON []byte
	var source, destination sql.NullString
	var completedAt sql.NullTime

	err := scan(&txn.TransactionID, &txn.OwnerID, &txn.Type, &txn.Amount, &txn.Currency, &source, &destination,
		&txn.Reference, &txn.Description, &txn.Status, &metaDataJSON, &txn.CreatedAt, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transaction", err)
	}

	txn.Source = source.String
	txn.Destination = destination.String
	if completedAt.Valid {
		txn.CompletedAt = &completedAt.Time
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &txn.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}
	return txn, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
