package model

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// Request structs arrive from the authenticated boundary layer already
// carrying the caller's owner id. Validation here is the last gate before
// any write: a request that fails it never touches the store.

const (
	MaxPageLimit     = 100
	DefaultPageLimit = 20
)

func positiveAmount(value interface{}) error {
	amount, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("invalid amount type")
	}
	if !amount.IsPositive() {
		return errors.New("amount must be greater than zero")
	}
	return nil
}

type DepositRequest struct {
	OwnerID     string                 `json:"-"`
	AccountID   string                 `json:"account_id"`
	Amount      decimal.Decimal        `json:"amount"`
	Currency    string                 `json:"currency"`
	Reference   string                 `json:"reference,omitempty"`
	Description string                 `json:"description"`
	MetaData    map[string]interface{} `json:"meta_data,omitempty"`
}

func (r *DepositRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.OwnerID, validation.Required),
		validation.Field(&r.AccountID, validation.Required),
		validation.Field(&r.Amount, validation.By(positiveAmount)),
		validation.Field(&r.Currency, validation.Required, validation.Length(3, 3)),
	)
}

type WithdrawRequest struct {
	OwnerID     string                 `json:"-"`
	AccountID   string                 `json:"account_id"`
	Amount      decimal.Decimal        `json:"amount"`
	Currency    string                 `json:"currency"`
	Reference   string                 `json:"reference,omitempty"`
	Description string                 `json:"description"`
	MetaData    map[string]interface{} `json:"meta_data,omitempty"`
}

func (r *WithdrawRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.OwnerID, validation.Required),
		validation.Field(&r.AccountID, validation.Required),
		validation.Field(&r.Amount, validation.By(positiveAmount)),
		validation.Field(&r.Currency, validation.Required, validation.Length(3, 3)),
	)
}

type TransferRequest struct {
	OwnerID              string                 `json:"-"`
	SourceAccountID      string                 `json:"source_account_id"`
	DestinationAccountID string                 `json:"destination_account_id"`
	Amount               decimal.Decimal        `json:"amount"`
	Currency             string                 `json:"currency"`
	Reference            string                 `json:"reference,omitempty"`
	Description          string                 `json:"description"`
	MetaData             map[string]interface{} `json:"meta_data,omitempty"`
}

func (r *TransferRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.OwnerID, validation.Required),
		validation.Field(&r.SourceAccountID, validation.Required),
		validation.Field(&r.DestinationAccountID, validation.Required,
			validation.By(func(value interface{}) error {
				if r.DestinationAccountID == r.SourceAccountID {
					return errors.New("source and destination accounts must differ")
				}
				return nil
			})),
		validation.Field(&r.Amount, validation.By(positiveAmount)),
		validation.Field(&r.Currency, validation.Required, validation.Length(3, 3)),
	)
}

type CreateAccountRequest struct {
	OwnerID  string                 `json:"-"`
	Currency string                 `json:"currency"`
	MetaData map[string]interface{} `json:"meta_data,omitempty"`
}

func (r *CreateAccountRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.OwnerID, validation.Required),
		validation.Field(&r.Currency, validation.Required, validation.Length(3, 3)),
	)
}

// Normalize applies paging defaults; Validate enforces the bounds the
// boundary layer promises.
func (f *TransactionFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageLimit
	}
}

func (f *TransactionFilter) Validate() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.OwnerID, validation.Required),
		validation.Field(&f.Limit, validation.Max(MaxPageLimit)),
		validation.Field(&f.Type, validation.In("", TypeDeposit, TypeWithdrawal, TypeTransfer, TypeFee, TypeAdjustment)),
		validation.Field(&f.EndDate, validation.By(func(value interface{}) error {
			end, ok := value.(time.Time)
			if !ok {
				return errors.New("invalid end date type")
			}
			if !end.IsZero() && !f.StartDate.IsZero() && end.Before(f.StartDate) {
				return errors.New("end date must not precede start date")
			}
			return nil
		})),
	)
}
