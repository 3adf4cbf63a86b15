package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	// Defined for administrative tooling; no deposit, withdrawal or transfer
	// flow ever produces them.
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

const (
	TypeDeposit    = "deposit"
	TypeWithdrawal = "withdrawal"
	TypeTransfer   = "transfer"
	TypeFee        = "fee"
	TypeAdjustment = "adjustment"
)

// Transaction is the intent/outcome record of one movement. It is created
// pending and marked completed inside the same write scope as its ledger
// entries and balance updates.
type Transaction struct {
	ID            int64                  `json:"-"`
	TransactionID string                 `json:"id"`
	OwnerID       string                 `json:"owner_id"`
	Type          string                 `json:"type"`
	Amount        decimal.Decimal        `json:"amount"`
	Currency      string                 `json:"currency"`
	Source        string                 `json:"source,omitempty"`
	Destination   string                 `json:"destination,omitempty"`
	Reference     string                 `json:"reference"`
	Description   string                 `json:"description"`
	Status        string                 `json:"status"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
}

func (transaction *Transaction) ToJSON() ([]byte, error) {
	return json.Marshal(transaction)
}

type TransactionFilter struct {
	OwnerID   string    `json:"owner_id"`
	AccountID string    `json:"account_id"`
	Type      string    `json:"type"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Page      int       `json:"page"`
	Limit     int       `json:"limit"`
}

// TransactionList is the pagination envelope handed to the response layer.
type TransactionList struct {
	Transactions []Transaction `json:"transactions"`
	Total        int64         `json:"total"`
	Page         int           `json:"page"`
	Limit        int           `json:"limit"`
	PageCount    int           `json:"page_count"`
}
