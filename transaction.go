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
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mobolade/tally/database"
	"github.com/mobolade/tally/internal/apierror"
	redlock "github.com/mobolade/tally/internal/lock"
	"github.com/mobolade/tally/model"
)

var tracer = otel.Tracer("tally.coordinator")

// lockTTL bounds how long a movement may hold an account lock; a crashed
// process frees its accounts after this.
const lockTTL = time.Minute

func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	logrus.Error(msg, err)
	return err
}

// Deposit credits funds into an owner's account: one transaction record,
// one debit ledger entry, one balance increment, all inside one write scope.
func (t *Tally) Deposit(ctx context.Context, req *model.DepositRequest) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Depositing funds")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}
	if err := t.ensureReference(ctx, &req.Reference); err != nil {
		return nil, err
	}

	locker, err := t.lockAccounts(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	defer t.unlock(ctx, locker)

	scope, err := t.datasource.BeginScope(ctx)
	if err != nil {
		return nil, err
	}

	txn, err := t.applyDeposit(ctx, scope, req)
	if err != nil {
		if abortErr := scope.Abort(); abortErr != nil {
			logrus.Error("abort error", abortErr)
		}
		return nil, logAndRecordError(span, "deposit failed: ", err)
	}
	if err := scope.Commit(); err != nil {
		return nil, logAndRecordError(span, "commit error: ", err)
	}

	return txn, nil
}

func (t *Tally) applyDeposit(ctx context.Context, scope database.WriteScope, req *model.DepositRequest) (*model.Transaction, error) {
	account, err := t.datasource.GetAccountInScope(ctx, scope, req.AccountID, req.OwnerID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive() {
		return nil, apierror.NewReasonError(apierror.ErrConflict, apierror.ReasonAccountNotActive,
			"Account is not active", nil)
	}
	if account.Currency != req.Currency {
		return nil, apierror.NewReasonError(apierror.ErrInvalidInput, apierror.ReasonCurrencyMismatch,
			"Account currency does not match transaction currency", nil)
	}

	txn := newPendingTransaction(model.TypeDeposit, req.OwnerID, req.Amount, req.Currency, req.Reference, req.Description, req.MetaData)
	txn.Destination = account.AccountID
	if _, err := t.datasource.RecordTransaction(ctx, scope, txn); err != nil {
		return nil, err
	}

	entry := &model.LedgerEntry{
		EntryID:       model.GenerateUUIDWithSuffix("lqe"),
		TransactionID: txn.TransactionID,
		AccountID:     account.AccountID,
		Kind:          model.EntryDebit,
		Amount:        req.Amount,
		Currency:      req.Currency,
		BalanceAfter:  account.Balance.Add(req.Amount),
		Description:   req.Description,
		CreatedAt:     txn.CreatedAt,
	}
	if _, err := t.datasource.RecordLedgerEntry(ctx, scope, entry); err != nil {
		return nil, err
	}

	if err := t.datasource.ApplyBalanceDelta(ctx, scope, account.AccountID, req.Amount, account.Version); err != nil {
		return nil, err
	}

	return t.completeTransaction(ctx, scope, txn)
}

// Withdraw debits funds from an owner's account. Same scope discipline as
// Deposit, plus the available-balance check.
func (t *Tally) Withdraw(ctx context.Context, req *model.WithdrawRequest) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Withdrawing funds")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}
	if err := t.ensureReference(ctx, &req.Reference); err != nil {
		return nil, err
	}

	locker, err := t.lockAccounts(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	defer t.unlock(ctx, locker)

	scope, err := t.datasource.BeginScope(ctx)
	if err != nil {
		return nil, err
	}

	txn, err := t.applyWithdrawal(ctx, scope, req)
	if err != nil {
		if abortErr := scope.Abort(); abortErr != nil {
			logrus.Error("abort error", abortErr)
		}
		return nil, logAndRecordError(span, "withdrawal failed: ", err)
	}
	if err := scope.Commit(); err != nil {
		return nil, logAndRecordError(span, "commit error: ", err)
	}

	return txn, nil
}

func (t *Tally) applyWithdrawal(ctx context.Context, scope database.WriteScope, req *model.WithdrawRequest) (*model.Transaction, error) {
	account, err := t.datasource.GetAccountInScope(ctx, scope, req.AccountID, req.OwnerID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive() {
		return nil, apierror.NewReasonError(apierror.ErrConflict, apierror.ReasonAccountNotActive,
			"Account is not active", nil)
	}
	if account.Currency != req.Currency {
		return nil, apierror.NewReasonError(apierror.ErrInvalidInput, apierror.ReasonCurrencyMismatch,
			"Account currency does not match transaction currency", nil)
	}
	if !account.CanDebit(req.Amount) {
		return nil, apierror.NewReasonError(apierror.ErrConflict, apierror.ReasonInsufficientFunds,
			"Insufficient available balance", nil)
	}

	txn := newPendingTransaction(model.TypeWithdrawal, req.OwnerID, req.Amount, req.Currency, req.Reference, req.Description, req.MetaData)
	txn.Source = account.AccountID
	if _, err := t.datasource.RecordTransaction(ctx, scope, txn); err != nil {
		return nil, err
	}

	entry := &model.LedgerEntry{
		EntryID:       model.GenerateUUIDWithSuffix("lqe"),
		TransactionID: txn.TransactionID,
		AccountID:     account.AccountID,
		Kind:          model.EntryCredit,
		Amount:        req.Amount,
		Currency:      req.Currency,
		BalanceAfter:  account.Balance.Sub(req.Amount),
		Description:   req.Description,
		CreatedAt:     txn.CreatedAt,
	}
	if _, err := t.datasource.RecordLedgerEntry(ctx, scope, entry); err != nil {
		return nil, err
	}

	if err := t.datasource.ApplyBalanceDelta(ctx, scope, account.AccountID, req.Amount.Neg(), account.Version); err != nil {
		return nil, err
	}

	return t.completeTransaction(ctx, scope, txn)
}

// Transfer moves funds between two accounts: one transaction record, a
// credit entry on the source, a debit entry on the destination, and both
// balance updates, all in one write scope. The source must belong to the
// caller; the destination may be any existing account.
func (t *Tally) Transfer(ctx context.Context, req *model.TransferRequest) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Transferring funds")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}
	if err := t.ensureReference(ctx, &req.Reference); err != nil {
		return nil, err
	}

	locker, err := t.lockAccounts(ctx, req.SourceAccountID, req.DestinationAccountID)
	if err != nil {
		return nil, err
	}
	defer t.unlock(ctx, locker)

	scope, err := t.datasource.BeginScope(ctx)
	if err != nil {
		return nil, err
	}

	txn, err := t.applyTransfer(ctx, scope, req)
	if err != nil {
		if abortErr := scope.Abort(); abortErr != nil {
			logrus.Error("abort error", abortErr)
		}
		return nil, logAndRecordError(span, "transfer failed: ", err)
	}
	if err := scope.Commit(); err != nil {
		return nil, logAndRecordError(span, "commit error: ", err)
	}

	return txn, nil
}

func (t *Tally) applyTransfer(ctx context.Context, scope database.WriteScope, req *model.TransferRequest) (*model.Transaction, error) {
	var source, destination *model.Account

	loadSource := func() error {
		account, err := t.datasource.GetAccountInScope(ctx, scope, req.SourceAccountID, req.OwnerID)
		if err != nil {
			return withNotFoundReason(err, apierror.ReasonSourceAccountNotFound, "Source account not found")
		}
		source = account
		return nil
	}
	loadDestination := func() error {
		// Destination lookup is deliberately not owner-scoped: any
		// existing account may receive funds.
		account, err := t.datasource.GetAccountInScope(ctx, scope, req.DestinationAccountID, "")
		if err != nil {
			return withNotFoundReason(err, apierror.ReasonDestinationAccountNotFound, "Destination account not found")
		}
		destination = account
		return nil
	}

	// Rows are read in ascending account-id order so two opposing transfers
	// on the same pair cannot deadlock on their row locks.
	steps := []func() error{loadSource, loadDestination}
	if req.DestinationAccountID < req.SourceAccountID {
		steps[0], steps[1] = steps[1], steps[0]
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	if !source.IsActive() || !destination.IsActive() {
		return nil, apierror.NewReasonError(apierror.ErrConflict, apierror.ReasonAccountNotActive,
			"Account is not active", nil)
	}
	if source.Currency != req.Currency {
		return nil, apierror.NewReasonError(apierror.ErrInvalidInput, apierror.ReasonSourceAccountCurrencyMismatch,
			"Source account currency does not match transaction currency", nil)
	}
	if destination.Currency != req.Currency {
		return nil, apierror.NewReasonError(apierror.ErrInvalidInput, apierror.ReasonDestinationAccountCurrencyMismatch,
			"Destination account currency does not match transaction currency", nil)
	}
	if !source.CanDebit(req.Amount) {
		return nil, apierror.NewReasonError(apierror.ErrConflict, apierror.ReasonInsufficientFunds,
			"Insufficient available balance in source account", nil)
	}

	txn := newPendingTransaction(model.TypeTransfer, req.OwnerID, req.Amount, req.Currency, req.Reference, req.Description, req.MetaData)
	txn.Source = source.AccountID
	txn.Destination = destination.AccountID
	if _, err := t.datasource.RecordTransaction(ctx, scope, txn); err != nil {
		return nil, err
	}

	sourceEntry := &model.LedgerEntry{
		EntryID:       model.GenerateUUIDWithSuffix("lqe"),
		TransactionID: txn.TransactionID,
		AccountID:     source.AccountID,
		Kind:          model.EntryCredit,
		Amount:        req.Amount,
		Currency:      req.Currency,
		BalanceAfter:  source.Balance.Sub(req.Amount),
		Description:   req.Description,
		CreatedAt:     txn.CreatedAt,
	}
	if _, err := t.datasource.RecordLedgerEntry(ctx, scope, sourceEntry); err != nil {
		return nil, err
	}

	destinationEntry := &model.LedgerEntry{
		EntryID:       model.GenerateUUIDWithSuffix("lqe"),
		TransactionID: txn.TransactionID,
		AccountID:     destination.AccountID,
		Kind:          model.EntryDebit,
		Amount:        req.Amount,
		Currency:      req.Currency,
		BalanceAfter:  destination.Balance.Add(req.Amount),
		Description:   req.Description,
		CreatedAt:     txn.CreatedAt,
	}
	if _, err := t.datasource.RecordLedgerEntry(ctx, scope, destinationEntry); err != nil {
		return nil, err
	}

	if err := t.datasource.ApplyBalanceDelta(ctx, scope, source.AccountID, req.Amount.Neg(), source.Version); err != nil {
		return nil, err
	}
	if err := t.datasource.ApplyBalanceDelta(ctx, scope, destination.AccountID, req.Amount, destination.Version); err != nil {
		return nil, err
	}

	return t.completeTransaction(ctx, scope, txn)
}

// GetTransaction returns a single transaction scoped to its owner.
func (t *Tally) GetTransaction(ctx context.Context, transactionID, ownerID string) (*model.Transaction, error) {
	return t.datasource.GetTransaction(ctx, transactionID, ownerID)
}

// GetTransactions lists an owner's transactions newest first.
func (t *Tally) GetTransactions(ctx context.Context, filter model.TransactionFilter) (*model.TransactionList, error) {
	filter.Normalize()
	if err := filter.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}

	transactions, total, err := t.datasource.GetTransactions(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &model.TransactionList{
		Transactions: transactions,
		Total:        total,
		Page:         filter.Page,
		Limit:        filter.Limit,
		PageCount:    model.PageCount(total, filter.Limit),
	}, nil
}

// GetLedgerEntries lists an account's ledger entries newest first.
func (t *Tally) GetLedgerEntries(ctx context.Context, accountID string, page, limit int) (*model.LedgerEntryList, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = model.DefaultPageLimit
	}
	if limit > model.MaxPageLimit {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "limit must be at most 100", nil)
	}

	entries, total, err := t.datasource.GetLedgerEntries(ctx, accountID, page, limit)
	if err != nil {
		return nil, err
	}
	return &model.LedgerEntryList{
		Entries:   entries,
		Total:     total,
		Page:      page,
		Limit:     limit,
		PageCount: model.PageCount(total, limit),
	}, nil
}

func newPendingTransaction(txnType, ownerID string, amount decimal.Decimal, currency, reference, description string, metaData map[string]interface{}) *model.Transaction {
	return &model.Transaction{
		TransactionID: model.GenerateUUIDWithSuffix("txn"),
		OwnerID:       ownerID,
		Type:          txnType,
		Amount:        amount,
		Currency:      currency,
		Reference:     reference,
		Description:   description,
		Status:        model.StatusPending,
		MetaData:      metaData,
		CreatedAt:     time.Now(),
	}
}

func (t *Tally) completeTransaction(ctx context.Context, scope database.WriteScope, txn *model.Transaction) (*model.Transaction, error) {
	completedAt := time.Now()
	if err := t.datasource.MarkTransactionCompleted(ctx, scope, txn.TransactionID, completedAt); err != nil {
		return nil, err
	}
	txn.Status = model.StatusCompleted
	txn.CompletedAt = &completedAt
	return txn, nil
}

// ensureReference generates a reference when the caller sent none and
// rejects one that was already used.
func (t *Tally) ensureReference(ctx context.Context, reference *string) error {
	if *reference == "" {
		*reference = model.GenerateUUIDWithSuffix("ref")
		return nil
	}
	exists, err := t.datasource.TransactionExistsByRef(ctx, *reference)
	if err != nil {
		return err
	}
	if exists {
		return apierror.NewReasonError(apierror.ErrConflict, apierror.ReasonDuplicateReference,
			fmt.Sprintf("reference %s has already been used", *reference), nil)
	}
	return nil
}

func (t *Tally) lockAccounts(ctx context.Context, accountIDs ...string) (*redlock.MultiLocker, error) {
	locker := redlock.NewMultiLocker(t.redis, accountIDs, model.GenerateUUIDWithSuffix("lock"))
	if err := locker.Lock(ctx, lockTTL); err != nil {
		return nil, apierror.NewReasonError(apierror.ErrConflict, apierror.ReasonAccountLocked,
			"Account is locked by another operation", err)
	}
	return locker, nil
}

func (t *Tally) unlock(ctx context.Context, locker *redlock.MultiLocker) {
	if err := locker.Unlock(ctx); err != nil {
		logrus.Error("lock error", err)
	}
}

func withNotFoundReason(err error, reason apierror.Reason, message string) error {
	if apierror.CodeOf(err) == apierror.ErrNotFound {
		return apierror.NewReasonError(apierror.ErrNotFound, reason, message, err)
	}
	return err
}
