package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSignedAmount(t *testing.T) {
	debit := LedgerEntry{Kind: EntryDebit, Amount: decimal.NewFromInt(500)}
	assert.Equal(t, "500", debit.SignedAmount().String())

	credit := LedgerEntry{Kind: EntryCredit, Amount: decimal.NewFromInt(200)}
	assert.Equal(t, "-200", credit.SignedAmount().String())
}

func TestSumEntriesReproducesBalance(t *testing.T) {
	entries := []LedgerEntry{
		{Kind: EntryDebit, Amount: decimal.NewFromInt(1500)},
		{Kind: EntryCredit, Amount: decimal.NewFromInt(200)},
		{Kind: EntryCredit, Amount: decimal.RequireFromString("0.25")},
	}
	assert.Equal(t, "1299.75", SumEntries(entries).String())

	assert.True(t, SumEntries(nil).IsZero())
}
