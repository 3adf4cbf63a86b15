package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountReconciliation reports whether an account's balance matches the
// signed sum of its ledger entries. Drift is balance minus ledger sum; a
// non-zero drift under best-effort atomicity points at a partial write.
type AccountReconciliation struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	LedgerSum decimal.Decimal `json:"ledger_sum"`
	Drift     decimal.Decimal `json:"drift"`
	InSync    bool            `json:"in_sync"`
	CheckedAt time.Time       `json:"checked_at"`
}
