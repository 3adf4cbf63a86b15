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

package database

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mobolade/tally/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	account     // Interface for account-related operations
	transaction // Interface for transaction-related operations
	ledgerEntry // Interface for ledger-entry operations

	// BeginScope opens a write scope with the strategy fixed at construction.
	BeginScope(ctx context.Context) (WriteScope, error)
	AtomicityMode() string
}

// account defines methods for handling accounts and their balances.
type account interface {
	CreateAccount(ctx context.Context, account model.Account) (model.Account, error)                                                // Creates a new account with zero balances
	GetAccount(ctx context.Context, accountID, ownerID string) (*model.Account, error)                                              // Retrieves an account; unscoped when ownerID is empty
	GetAccountInScope(ctx context.Context, scope WriteScope, accountID, ownerID string) (*model.Account, error)                     // Retrieves an account inside a write scope, row-locked under strict atomicity
	GetAccounts(ctx context.Context, filter model.AccountFilter) ([]model.Account, int64, error)                                    // Retrieves accounts by owner/currency/status with total count
	ApplyBalanceDelta(ctx context.Context, scope WriteScope, accountID string, delta decimal.Decimal, version int64) error          // Applies a signed delta to balance and available balance, guarded by version
	UpdateAccountStatus(ctx context.Context, accountID, status string) error                                                        // Updates the lifecycle status of an account
}

// transaction defines methods for handling transaction records.
type transaction interface {
	RecordTransaction(ctx context.Context, scope WriteScope, txn *model.Transaction) (*model.Transaction, error) // Records a new transaction inside the scope
	MarkTransactionCompleted(ctx context.Context, scope WriteScope, id string, completedAt time.Time) error      // Transitions a pending transaction to completed
	GetTransaction(ctx context.Context, id, ownerID string) (*model.Transaction, error)                          // Retrieves a transaction scoped to its owner
	GetTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.Transaction, int64, error)     // Retrieves transactions by filter, newest first, with total count
	TransactionExistsByRef(ctx context.Context, reference string) (bool, error)                                  // Checks if a transaction exists by reference
}

// ledgerEntry defines methods for the append-only ledger entry log.
type ledgerEntry interface {
	RecordLedgerEntry(ctx context.Context, scope WriteScope, entry *model.LedgerEntry) (*model.LedgerEntry, error) // Appends one immutable ledger entry inside the scope
	GetLedgerEntries(ctx context.Context, accountID string, page, limit int) ([]model.LedgerEntry, int64, error)   // Retrieves entries for an account, newest first, with total count
	GetLedgerEntriesByTransaction(ctx context.Context, transactionID string) ([]model.LedgerEntry, error)          // Retrieves the entries written by one transaction
	SumLedgerEntries(ctx context.Context, accountID string) (decimal.Decimal, error)                               // Sums signed entries (debit +, credit -) for reconciliation
}
