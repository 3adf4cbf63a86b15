package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AccountStatusActive = "active"
	AccountStatusFrozen = "frozen"
	AccountStatusClosed = "closed"
)

// Account is the only shared mutable record in the system. Its balance is
// the running sum of the signed ledger entries recorded against it; only the
// coordinator mutates it, guarded by the version field.
type Account struct {
	ID               int64                  `json:"-"`
	AccountID        string                 `json:"account_id"`
	OwnerID          string                 `json:"owner_id"`
	Currency         string                 `json:"currency"`
	Balance          decimal.Decimal        `json:"balance"`
	AvailableBalance decimal.Decimal        `json:"available_balance"`
	Status           string                 `json:"status"`
	Version          int64                  `json:"-"`
	MetaData         map[string]interface{} `json:"meta_data,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// IsActive reports whether the account can take part in a movement.
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// CanDebit reports whether the available balance covers amount.
func (a *Account) CanDebit(amount decimal.Decimal) bool {
	return a.AvailableBalance.GreaterThanOrEqual(amount)
}

type AccountFilter struct {
	OwnerID  string `json:"owner_id"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Page     int    `json:"page"`
	Limit    int    `json:"limit"`
}

type AccountList struct {
	Accounts  []Account `json:"accounts"`
	Total     int64     `json:"total"`
	Page      int       `json:"page"`
	Limit     int       `json:"limit"`
	PageCount int       `json:"page_count"`
}
