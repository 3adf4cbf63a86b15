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

	"github.com/mobolade/tally/internal/apierror"
	"github.com/mobolade/tally/model"
)

// CreateAccount opens a new active account with zero balances.
func (t *Tally) CreateAccount(ctx context.Context, req *model.CreateAccountRequest) (*model.Account, error) {
	if err := req.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}

	account, err := t.datasource.CreateAccount(ctx, model.Account{
		OwnerID:  req.OwnerID,
		Currency: req.Currency,
		MetaData: req.MetaData,
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccount returns an account scoped to its owner.
func (t *Tally) GetAccount(ctx context.Context, accountID, ownerID string) (*model.Account, error) {
	return t.datasource.GetAccount(ctx, accountID, ownerID)
}

// GetAccounts lists an owner's accounts, optionally filtered by currency and
// status.
func (t *Tally) GetAccounts(ctx context.Context, filter model.AccountFilter) (*model.AccountList, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = model.DefaultPageLimit
	}
	if filter.Limit > model.MaxPageLimit {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "limit must be at most 100", nil)
	}

	accounts, total, err := t.datasource.GetAccounts(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &model.AccountList{
		Accounts:  accounts,
		Total:     total,
		Page:      filter.Page,
		Limit:     filter.Limit,
		PageCount: model.PageCount(total, filter.Limit),
	}, nil
}

// FreezeAccount suspends movements on an active account.
func (t *Tally) FreezeAccount(ctx context.Context, accountID, ownerID string) error {
	return t.transitionAccountStatus(ctx, accountID, ownerID, model.AccountStatusActive, model.AccountStatusFrozen)
}

// UnfreezeAccount reactivates a frozen account.
func (t *Tally) UnfreezeAccount(ctx context.Context, accountID, ownerID string) error {
	return t.transitionAccountStatus(ctx, accountID, ownerID, model.AccountStatusFrozen, model.AccountStatusActive)
}

// CloseAccount retires an account logically; the record is never deleted.
// Closing requires a balance of exactly zero.
func (t *Tally) CloseAccount(ctx context.Context, accountID, ownerID string) error {
	locker, err := t.lockAccounts(ctx, accountID)
	if err != nil {
		return err
	}
	defer t.unlock(ctx, locker)

	account, err := t.datasource.GetAccount(ctx, accountID, ownerID)
	if err != nil {
		return err
	}
	if account.Status == model.AccountStatusClosed {
		return apierror.NewReasonError(apierror.ErrConflict, apierror.ReasonAccountNotActive,
			"Account is already closed", nil)
	}
	if !account.Balance.IsZero() {
		return apierror.NewReasonError(apierror.ErrConflict, apierror.ReasonAccountBalanceNotZero,
			"Account must have zero balance to be closed", nil)
	}

	return t.datasource.UpdateAccountStatus(ctx, accountID, model.AccountStatusClosed)
}

func (t *Tally) transitionAccountStatus(ctx context.Context, accountID, ownerID, from, to string) error {
	account, err := t.datasource.GetAccount(ctx, accountID, ownerID)
	if err != nil {
		return err
	}
	if account.Status != from {
		return apierror.NewReasonError(apierror.ErrConflict, apierror.ReasonAccountNotActive,
			fmt.Sprintf("Account status is %s, expected %s", account.Status, from), nil)
	}
	return t.datasource.UpdateAccountStatus(ctx, accountID, to)
}

// ReconcileAccount recomputes an account's balance from the signed sum of
// its ledger entries and reports any drift. Under strict atomicity the two
// figures always agree; under best-effort a partial write shows up here.
func (t *Tally) ReconcileAccount(ctx context.Context, accountID string) (*model.AccountReconciliation, error) {
	account, err := t.datasource.GetAccount(ctx, accountID, "")
	if err != nil {
		return nil, err
	}

	sum, err := t.datasource.SumLedgerEntries(ctx, accountID)
	if err != nil {
		return nil, err
	}

	drift := account.Balance.Sub(sum)
	return &model.AccountReconciliation{
		AccountID: account.AccountID,
		Balance:   account.Balance,
		LedgerSum: sum,
		Drift:     drift,
		InSync:    drift.IsZero(),
		CheckedAt: time.Now(),
	}, nil
}
