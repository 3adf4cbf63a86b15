/*
Copyright 2025 Tally Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package tally

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/mobolade/tally/config"
	"github.com/mobolade/tally/database"
	"github.com/mobolade/tally/internal/apierror"
	"github.com/mobolade/tally/model"
)

func newTestTally(t *testing.T) (*Tally, sqlmock.Sqlmock) {
	t.Helper()
	config.MockConfig(&config.Configuration{})

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	ds := &database.Datasource{Conn: db, Atomic: database.NewAdapter(db, config.AtomicityStrict)}
	return NewTallyWithRedis(ds, client), mock
}

func accountRows(accountID, ownerID, currency, balance, available, status string, version int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"account_id", "owner_id", "currency", "balance", "available_balance", "status", "version", "meta_data", "created_at", "updated_at"}).
		AddRow(accountID, ownerID, currency, balance, available, status, version, []byte(`{}`), time.Now(), time.Now())
}

func TestDeposit(t *testing.T) {
	d, mock := newTestTally(t)
	ownerID := gofakeit.UUID()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM tally.accounts WHERE account_id = \\$1 AND owner_id = \\$2 FOR UPDATE").
		WithArgs("acc_1", ownerID).
		WillReturnRows(accountRows("acc_1", ownerID, "USD", "1000", "1000", "active", 3))
	mock.ExpectExec("INSERT INTO tally.transactions").
		WithArgs(sqlmock.AnyArg(), ownerID, model.TypeDeposit, sqlmock.AnyArg(), "USD", sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), "payday", model.StatusPending, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO tally.ledger_entries").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "acc_1", model.EntryDebit, sqlmock.AnyArg(), "USD",
			sqlmock.AnyArg(), "payday", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE tally.accounts").
		WithArgs("acc_1", sqlmock.AnyArg(), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE tally.transactions").
		WithArgs(sqlmock.AnyArg(), model.StatusCompleted, sqlmock.AnyArg(), model.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	txn, err := d.Deposit(context.Background(), &model.DepositRequest{
		OwnerID:     ownerID,
		AccountID:   "acc_1",
		Amount:      decimal.NewFromInt(500),
		Currency:    "USD",
		Description: "payday",
	})
	assert.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, txn.Status)
	assert.Equal(t, model.TypeDeposit, txn.Type)
	assert.Equal(t, "acc_1", txn.Destination)
	assert.Empty(t, txn.Source)
	assert.NotNil(t, txn.CompletedAt)
	assert.Contains(t, txn.TransactionID, "txn_")
	assert.Contains(t, txn.Reference, "ref_")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepositWithWrongCurrency(t *testing.T) {
	d, mock := newTestTally(t)
	ownerID := gofakeit.UUID()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM tally.accounts WHERE account_id = \\$1 AND owner_id = \\$2 FOR UPDATE").
		WithArgs("acc_1", ownerID).
		WillReturnRows(accountRows("acc_1", ownerID, "EUR", "1000", "1000", "active", 1))
	mock.ExpectRollback()

	_, err := d.Deposit(context.Background(), &model.DepositRequest{
		OwnerID:   ownerID,
		AccountID: "acc_1",
		Amount:    decimal.NewFromInt(500),
		Currency:  "USD",
	})
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))
	assert.Equal(t, apierror.ReasonCurrencyMismatch, apierror.ReasonOf(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	d, mock := newTestTally(t)

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		_, err := d.Deposit(context.Background(), &model.DepositRequest{
			OwnerID:   gofakeit.UUID(),
			AccountID: "acc_1",
			Amount:    amount,
			Currency:  "USD",
		})
		assert.Error(t, err)
		assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))
	}

	// Rejected at validation; nothing may reach the store.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepositAccountNotFound(t *testing.T) {
	d, mock := newTestTally(t)
	ownerID := gofakeit.UUID()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM tally.accounts WHERE account_id = \\$1 AND owner_id = \\$2 FOR UPDATE").
		WithArgs("acc_missing", ownerID).
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}))
	mock.ExpectRollback()

	_, err := d.Deposit(context.Background(), &model.DepositRequest{
		OwnerID:   ownerID,
		AccountID: "acc_missing",
		Amount:    decimal.NewFromInt(500),
		Currency:  "USD",
	})
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrNotFound, apierror.CodeOf(err))
	assert.Equal(t, apierror.ReasonAccountNotFound, apierror.ReasonOf(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdraw(t *testing.T) {
	d, mock := newTestTally(t)
	ownerID := gofakeit.UUID()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM tally.accounts WHERE account_id = \\$1 AND owner_id = \\$2 FOR UPDATE").
		WithArgs("acc_1", ownerID).
		WillReturnRows(accountRows("acc_1", ownerID, "USD", "1000", "1000", "active", 1))
	mock.ExpectExec("INSERT INTO tally.transactions").
		WithArgs(sqlmock.AnyArg(), ownerID, model.TypeWithdrawal, sqlmock.AnyArg(), "USD", sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), "rent", model.StatusPending, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO tally.ledger_entries").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "acc_1", model.EntryCredit, sqlmock.AnyArg(), "USD",
			sqlmock.AnyArg(), "rent", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE tally.accounts").
		WithArgs("acc_1", sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE tally.transactions").
		WithArgs(sqlmock.AnyArg(), model.StatusCompleted, sqlmock.AnyArg(), model.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// Withdrawing exactly the available balance succeeds.
	txn, err := d.Withdraw(context.Background(), &model.WithdrawRequest{
		OwnerID:     ownerID,
		AccountID:   "acc_1",
		Amount:      decimal.NewFromInt(1000),
		Currency:    "USD",
		Description: "rent",
	})
	assert.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, txn.Status)
	assert.Equal(t, model.TypeWithdrawal, txn.Type)
	assert.Equal(t, "acc_1", txn.Source)
	assert.Empty(t, txn.Destination)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	d, mock := newTestTally(t)
	ownerID := gofakeit.UUID()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM tally.accounts WHERE account_id = \\$1 AND owner_id = \\$2 FOR UPDATE").
		WithArgs("acc_1", ownerID).
		WillReturnRows(accountRows("acc_1", ownerID, "USD", "1000", "1000", "active", 1))
	mock.ExpectRollback()

	_, err := d.Withdraw(context.Background(), &model.WithdrawRequest{
		OwnerID:   ownerID,
		AccountID: "acc_1",
		Amount:    decimal.NewFromInt(2000),
		Currency:  "USD",
	})
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrConflict, apierror.CodeOf(err))
	assert.Equal(t, apierror.ReasonInsufficientFunds, apierror.ReasonOf(err))

	// The scope aborted before any insert; no transaction record, no ledger
	// entry and no balance change were expected.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawFromFrozenAccount(t *testing.T) {
	d, mock := newTestTally(t)
	ownerID := gofakeit.UUID()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM tally.accounts WHERE account_id = \\$1 AND owner_id = \\$2 FOR UPDATE").
		WithArgs("acc_1", ownerID).
		WillReturnRows(accountRows("acc_1", ownerID, "USD", "1000", "1000", "frozen", 1))
	mock.ExpectRollback()

	_, err := d.Withdraw(context.Background(), &model.WithdrawRequest{
		OwnerID:   ownerID,
		AccountID: "acc_1",
		Amount:    decimal.NewFromInt(100),
		Currency:  "USD",
	})
	assert.Error(t, err)
	assert.Equal(t, apierror.ReasonAccountNotActive, apierror.ReasonOf(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransfer(t *testing.T) {
	d, mock := newTestTally(t)
	ownerID := gofakeit.UUID()

	mock.ExpectBegin()
	// Source id sorts before destination id, so it is read first.
	mock.ExpectQuery("SELECT .* FROM tally.accounts WHERE account_id = \\$1 AND owner_id = \\$2 FOR UPDATE").
		WithArgs("acc_a", ownerID).
		WillReturnRows(accountRows("acc_a", ownerID, "USD", "1000", "1000", "active", 1))
	mock.ExpectQuery("SELECT .* FROM tally.accounts WHERE account_id = \\$1 FOR UPDATE").
		WithArgs("acc_b").
		WillReturnRows(accountRows("acc_b", gofakeit.UUID(), "USD", "0", "0", "active", 1))
	mock.ExpectExec("INSERT INTO tally.transactions").
		WithArgs(sqlmock.AnyArg(), ownerID, model.TypeTransfer, sqlmock.AnyArg(), "USD", sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), "split bill", model.StatusPending, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO tally.ledger_entries").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "acc_a", model.EntryCredit, sqlmock.AnyArg(), "USD",
			sqlmock.AnyArg(), "split bill", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO tally.ledger_entries").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "acc_b", model.EntryDebit, sqlmock.AnyArg(), "USD",
			sqlmock.AnyArg(), "split bill", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE tally.accounts").
		WithArgs("acc_a", sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE tally.accounts").
		WithArgs("acc_b", sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE tally.transactions").
		WithArgs(sqlmock.AnyArg(), model.StatusCompleted, sqlmock.AnyArg(), model.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	txn, err := d.Transfer(context.Background(), &model.TransferRequest{
		OwnerID:              ownerID,
		SourceAccountID:      "acc_a",
		DestinationAccountID: "acc_b",
		Amount:               decimal.NewFromInt(500),
		Currency:             "USD",
		Description:          "split bill",
	})
	assert.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, txn.Status)
	assert.Equal(t, model.TypeTransfer, txn.Type)
	assert.Equal(t, "acc_a", txn.Source)
	assert.Equal(t, "acc_b", txn.Destination)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferReadsAccountsInAscendingOrder(t *testing.T) {
	d, mock := newTestTally(t)
	ownerID := gofakeit.UUID()

	// Source sorts after destination; the destination row must be read
	// first even though ownership still applies to the source.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM tally.accounts WHERE account_id = \\$1 FOR UPDATE").
		WithArgs("acc_a").
		WillReturnRows(accountRows("acc_a", gofakeit.UUID(), "USD", "0", "0", "active", 1))
	mock.ExpectQuery("SELECT .* FROM tally.accounts WHERE account_id = \\$1 AND owner_id = \\$2 FOR UPDATE").
		WithArgs("acc_b", ownerID).
		WillReturnRows(accountRows("acc_b", ownerID, "USD", "1000", "1000", "active", 1))
	mock.ExpectExec("INSERT INTO tally.transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO tally.ledger_entries").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO tally.ledger_entries").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE tally.accounts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE tally.accounts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE tally.transactions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	txn, err := d.Transfer(context.Background(), &model.TransferRequest{
		OwnerID:              ownerID,
		SourceAccountID:      "acc_b",
		DestinationAccountID: "acc_a",
		Amount:               decimal.NewFromInt(100),
		Currency:             "USD",
	})
	assert.NoError(t, err)
	assert.Equal(t, "acc_b", txn.Source)
	assert.Equal(t, "acc_a", txn.Destination)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferDestinationNotFound(t *testing.T) {
	d, mock := newTestTally(t)
	ownerID := gofakeit.UUID()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM tally.accounts WHERE account_id = \\$1 AND owner_id = \\$2 FOR UPDATE").
		WithArgs("acc_a", ownerID).
		WillReturnRows(accountRows("acc_a", ownerID, "USD", "1000", "1000", "active", 1))
	mock.ExpectQuery("SELECT .* FROM tally.accounts WHERE account_id = \\$1 FOR UPDATE").
		WithArgs("acc_b").
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}))
	mock.ExpectRollback()

	_, err := d.Transfer(context.Background(), &model.TransferRequest{
		OwnerID:              ownerID,
		SourceAccountID:      "acc_a",
		DestinationAccountID: "acc_b",
		Amount:               decimal.NewFromInt(500),
		Currency:             "USD",
	})
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrNotFound, apierror.CodeOf(err))
	assert.Equal(t, apierror.ReasonDestinationAccountNotFound, apierror.ReasonOf(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferSourceCurrencyMismatch(t *testing.T) {
	d, mock := newTestTally(t)
	ownerID := gofakeit.UUID()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM tally.accounts WHERE account_id = \\$1 AND owner_id = \\$2 FOR UPDATE").
		WithArgs("acc_a", ownerID).
		WillReturnRows(accountRows("acc_a", ownerID, "EUR", "1000", "1000", "active", 1))
	mock.ExpectQuery("SELECT .* FROM tally.accounts WHERE account_id = \\$1 FOR UPDATE").
		WithArgs("acc_b").
		WillReturnRows(accountRows("acc_b", gofakeit.UUID(), "USD", "0", "0", "active", 1))
	mock.ExpectRollback()

	_, err := d.Transfer(context.Background(), &model.TransferRequest{
		OwnerID:              ownerID,
		SourceAccountID:      "acc_a",
		DestinationAccountID: "acc_b",
		Amount:               decimal.NewFromInt(500),
		Currency:             "USD",
	})
	assert.Error(t, err)
	assert.Equal(t, apierror.ReasonSourceAccountCurrencyMismatch, apierror.ReasonOf(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferToSameAccountRejected(t *testing.T) {
	d, mock := newTestTally(t)

	_, err := d.Transfer(context.Background(), &model.TransferRequest{
		OwnerID:              gofakeit.UUID(),
		SourceAccountID:      "acc_a",
		DestinationAccountID: "acc_a",
		Amount:               decimal.NewFromInt(500),
		Currency:             "USD",
	})
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDuplicateReferenceRejected(t *testing.T) {
	d, mock := newTestTally(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ref_reused").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := d.Deposit(context.Background(), &model.DepositRequest{
		OwnerID:   gofakeit.UUID(),
		AccountID: "acc_1",
		Amount:    decimal.NewFromInt(500),
		Currency:  "USD",
		Reference: "ref_reused",
	})
	assert.Error(t, err)
	assert.Equal(t, apierror.ReasonDuplicateReference, apierror.ReasonOf(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTransactions(t *testing.T) {
	d, mock := newTestTally(t)
	ownerID := gofakeit.UUID()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM tally.transactions").
		WithArgs(ownerID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))
	mock.ExpectQuery("SELECT .* FROM tally.transactions WHERE owner_id = \\$1 ORDER BY created_at DESC").
		WithArgs(ownerID, 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"transaction_id", "owner_id", "type", "amount", "currency", "source_account_id", "destination_account_id", "reference", "description", "status", "meta_data", "created_at", "completed_at"}).
			AddRow("txn_1", ownerID, model.TypeDeposit, "500", "USD", nil, "acc_1", "ref_1", "payday", model.StatusCompleted, []byte(`{}`), time.Now(), time.Now()))

	list, err := d.GetTransactions(context.Background(), model.TransactionFilter{OwnerID: ownerID})
	assert.NoError(t, err)
	assert.Len(t, list.Transactions, 1)
	assert.Equal(t, int64(42), list.Total)
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 20, list.Limit)
	assert.Equal(t, 3, list.PageCount)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTransactionsRejectsBadDateRange(t *testing.T) {
	d, mock := newTestTally(t)

	_, err := d.GetTransactions(context.Background(), model.TransactionFilter{
		OwnerID:   gofakeit.UUID(),
		StartDate: time.Now(),
		EndDate:   time.Now().Add(-24 * time.Hour),
	})
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLedgerEntries(t *testing.T) {
	d, mock := newTestTally(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM tally.ledger_entries").
		WithArgs("acc_1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT .* FROM tally.ledger_entries WHERE account_id = \\$1 ORDER BY created_at DESC").
		WithArgs("acc_1", 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"entry_id", "transaction_id", "account_id", "kind", "amount", "currency", "balance_after", "description", "created_at"}).
			AddRow("lqe_2", "txn_2", "acc_1", model.EntryCredit, "200", "USD", "1300", "", time.Now()).
			AddRow("lqe_1", "txn_1", "acc_1", model.EntryDebit, "1500", "USD", "1500", "", time.Now()))

	list, err := d.GetLedgerEntries(context.Background(), "acc_1", 0, 0)
	assert.NoError(t, err)
	assert.Len(t, list.Entries, 2)
	assert.Equal(t, int64(2), list.Total)
	assert.Equal(t, 1, list.PageCount)

	assert.NoError(t, mock.ExpectationsWereMet())
}
