package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// EntryDebit increases an asset-class account, EntryCredit decreases it,
	// per accounting convention for asset accounts.
	EntryDebit  = "debit"
	EntryCredit = "credit"
)

// LedgerEntry is the immutable audit record of one account-side effect of a
// transaction. BalanceAfter is the account balance immediately after this
// entry was applied. Entries are never updated or deleted.
type LedgerEntry struct {
	ID            int64           `json:"-"`
	EntryID       string          `json:"entry_id"`
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Kind          string          `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
}

// SignedAmount returns the entry amount with its accounting sign applied:
// debits positive, credits negative. Summing signed amounts over all entries
// of an account reproduces its balance.
func (e *LedgerEntry) SignedAmount() decimal.Decimal {
	if e.Kind == EntryCredit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// SumEntries folds signed entry amounts into a single balance figure.
func SumEntries(entries []LedgerEntry) decimal.Decimal {
	sum := decimal.Zero
	for i := range entries {
		sum = sum.Add(entries[i].SignedAmount())
	}
	return sum
}

type LedgerEntryList struct {
	Entries   []LedgerEntry `json:"entries"`
	Total     int64         `json:"total"`
	Page      int           `json:"page"`
	Limit     int           `json:"limit"`
	PageCount int           `json:"page_count"`
}
