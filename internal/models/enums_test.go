package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCreditDebitTypesAreDisjoint(t *testing.T) {
	for c := range creditTypes {
		assert.True(t, c.Valid())
		assert.True(t, c.EntryType().IsCredit())
		assert.False(t, c.EntryType().IsDebit())
		assert.False(t, c.EntryType().IsHold())
	}
	for d := range debitTypes {
		assert.True(t, d.Valid())
		assert.True(t, d.EntryType().IsDebit())
		assert.False(t, d.EntryType().IsCredit())
	}
}

func TestParseEntryTypeKinds(t *testing.T) {
	c, ok := ParseCreditType("CREDIT_ORDER_PAYMENT")
	assert.True(t, ok)
	assert.Equal(t, CreditOrderPayment, c)

	_, ok = ParseCreditType("DEBIT_PAYOUT")
	assert.False(t, ok)

	d, ok := ParseDebitType("DEBIT_PLATFORM_FEE")
	assert.True(t, ok)
	assert.Equal(t, DebitPlatformFee, d)

	_, ok = ParseDebitType("CREDIT_REFUND")
	assert.False(t, ok)

	_, ok = ParseCreditType("")
	assert.False(t, ok)
}

func TestHoldEntryTypes(t *testing.T) {
	for _, et := range []EntryType{EntryHoldCreated, EntryHoldReleased, EntryHoldCaptured} {
		assert.True(t, et.IsHold())
		assert.True(t, et.Valid())
		assert.False(t, et.IsCredit())
		assert.False(t, et.IsDebit())
	}
	assert.False(t, EntryType("HOLD_EXPIRED").Valid())
}

func TestWalletStatusTransitions(t *testing.T) {
	assert.True(t, WalletStatusActive.Valid())
	assert.False(t, WalletStatus("DELETED").Valid())

	assert.True(t, WalletStatusClosed.IsTerminal())
	assert.False(t, WalletStatusFrozen.IsTerminal())
	assert.False(t, WalletStatusSuspended.IsTerminal())
}

func TestAvailableBalance(t *testing.T) {
	w := &Wallet{
		Balance:        decimal.NewFromInt(100),
		PendingBalance: decimal.NewFromInt(30),
		Status:         WalletStatusActive,
	}
	assert.True(t, decimal.NewFromInt(70).Equal(w.AvailableBalance()))
	assert.True(t, w.HasSufficientBalance(decimal.NewFromInt(70)))
	assert.False(t, w.HasSufficientBalance(decimal.NewFromInt(71)))
	assert.True(t, w.IsActive())

	w.Status = WalletStatusFrozen
	assert.False(t, w.IsActive())
}
