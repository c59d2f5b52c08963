package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet represents a per-owner monetary account within a tenant.
// Balance and PendingBalance are caches derived from the wallet's
// ledger; the ledger is the source of truth.
type Wallet struct {
	ID             uuid.UUID       `json:"id"`
	TenantID       uuid.UUID       `json:"tenant_id"`
	WalletType     WalletType      `json:"wallet_type"`
	CustomerID     *uuid.UUID      `json:"customer_id,omitempty"`
	VendorID       *uuid.UUID      `json:"vendor_id,omitempty"`
	Currency       string          `json:"currency"`
	Balance        decimal.Decimal `json:"balance"`
	PendingBalance decimal.Decimal `json:"pending_balance"`
	Status         WalletStatus    `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IsActive returns true if the wallet accepts mutations.
func (w *Wallet) IsActive() bool {
	return w.Status == WalletStatusActive
}

// AvailableBalance returns balance minus funds under hold.
func (w *Wallet) AvailableBalance() decimal.Decimal {
	return w.Balance.Sub(w.PendingBalance)
}

// HasSufficientBalance checks if the wallet can cover amount from
// available (not gross) balance.
func (w *Wallet) HasSufficientBalance(amount decimal.Decimal) bool {
	return w.AvailableBalance().GreaterThanOrEqual(amount)
}

// GetOrCreateWalletParams identifies a wallet by its lookup key.
// Exactly one of CustomerID/VendorID is set for customer/vendor
// wallets; platform wallets carry neither.
type GetOrCreateWalletParams struct {
	TenantID   uuid.UUID
	WalletType WalletType
	CustomerID *uuid.UUID
	VendorID   *uuid.UUID
	Currency   string
}
