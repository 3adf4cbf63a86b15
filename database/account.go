package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"github.com/mobolade/tally/internal/apierror"
	"github.com/mobolade/tally/model"
)

func (d Datasource) CreateAccount(ctx context.Context, account model.Account) (model.Account, error) {
	metaDataJSON, err := json.Marshal(account.MetaData)
	if err != nil {
		return model.Account{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	account.AccountID = model.GenerateUUIDWithSuffix("acc")
	account.Balance = decimal.Zero
	account.AvailableBalance = decimal.Zero
	account.Status = model.AccountStatusActive
	account.Version = 1
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO tally.accounts (account_id, owner_id, currency, balance, available_balance, status, version, meta_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, account.AccountID, account.OwnerID, account.Currency, account.Balance, account.AvailableBalance, account.Status, account.Version, metaDataJSON, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return model.Account{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create account", err)
	}

	return account, nil
}

const accountColumns = `account_id, owner_id, currency, balance, available_balance, status, version, meta_data, created_at, updated_at`

func scanAccount(row *sql.Row) (*model.Account, error) {
	account := &model.Account{}
	var metaDataJSON []byte
	err := row.Scan(&account.AccountID, &account.OwnerID, &account.Currency, &account.Balance, &account.AvailableBalance,
		&account.Status, &account.Version, &metaDataJSON, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &account.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}
	return account, nil
}

// GetAccount loads an account outside any write scope. An empty ownerID
// skips the ownership check; transfer destinations rely on that.
func (d Datasource) GetAccount(ctx context.Context, accountID, ownerID string) (*model.Account, error) {
	account, err := getAccount(ctx, d.Conn, accountID, ownerID, "")
	if err != nil {
		return nil, err
	}
	return account, nil
}

// GetAccountInScope loads an account through the write scope; under strict
// atomicity the row stays locked until the scope ends.
func (d Datasource) GetAccountInScope(ctx context.Context, scope WriteScope, accountID, ownerID string) (*model.Account, error) {
	return getAccount(ctx, scope.exec(), accountID, ownerID, scope.rowLock())
}

func getAccount(ctx context.Context, exec executor, accountID, ownerID, lock string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM tally.accounts WHERE account_id = $1`
	args := []interface{}{accountID}
	if ownerID != "" {
		query += ` AND owner_id = $2`
		args = append(args, ownerID)
	}
	query += lock

	account, err := scanAccount(exec.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewReasonError(apierror.ErrNotFound, apierror.ReasonAccountNotFound,
				fmt.Sprintf("Account with ID '%s' not found", accountID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve account", err)
	}
	return account, nil
}

func (d Datasource) GetAccounts(ctx context.Context, filter model.AccountFilter) ([]model.Account, int64, error) {
	where := `WHERE owner_id = $1`
	args := []interface{}{filter.OwnerID}
	if filter.Currency != "" {
		args = append(args, filter.Currency)
		where += fmt.Sprintf(` AND currency = $%d`, len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}

	var total int64
	err := d.Conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM tally.accounts `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count accounts", err)
	}

	args = append(args, filter.Limit, model.Offset(filter.Page, filter.Limit))
	query := fmt.Sprintf(`SELECT `+accountColumns+` FROM tally.accounts %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve accounts", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		account := model.Account{}
		var metaDataJSON []byte
		err = rows.Scan(&account.AccountID, &account.OwnerID, &account.Currency, &account.Balance, &account.AvailableBalance,
			&account.Status, &account.Version, &metaDataJSON, &account.CreatedAt, &account.UpdatedAt)
		if err != nil {
			return nil, 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan account", err)
		}
		if len(metaDataJSON) > 0 {
			if err := json.Unmarshal(metaDataJSON, &account.MetaData); err != nil {
				return nil, 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
			}
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate accounts", err)
	}

	return accounts, total, nil
}

// ApplyBalanceDelta mutates balance and available balance by a signed delta
// in one statement, guarded by the version the caller read. Zero rows means
// another writer got there first.
func (d Datasource) ApplyBalanceDelta(ctx context.Context, scope WriteScope, accountID string, delta decimal.Decimal, version int64) error {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "Applying balance delta")
	defer span.End()

	result, err := scope.exec().ExecContext(ctx, `
		UPDATE tally.accounts
		SET balance = balance + $2, available_balance = available_balance + $2, version = version + 1, updated_at = NOW()
		WHERE account_id = $1 AND version = $3
	`, accountID, delta, version)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update account balance", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewReasonError(apierror.ErrConflict, apierror.ReasonVersionConflict,
			fmt.Sprintf("Account '%s' was modified concurrently", accountID), nil)
	}

	return nil
}

func (d Datasource) UpdateAccountStatus(ctx context.Context, accountID, status string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE tally.accounts
		SET status = $2, updated_at = NOW()
		WHERE account_id = $1
	`, accountID, status)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update account status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewReasonError(apierror.ErrNotFound, apierror.ReasonAccountNotFound,
			fmt.Sprintf("Account with ID '%s' not found", accountID), nil)
	}

	return nil
}
