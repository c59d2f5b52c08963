package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerEntry is one immutable record of a balance-affecting event.
// Entries are append-only: never updated, never deleted. The three
// *After fields snapshot the wallet immediately after the entry was
// applied, making the ledger self-describing for point-in-time reads.
type LedgerEntry struct {
	ID                    uuid.UUID       `json:"id"`
	WalletID              uuid.UUID       `json:"wallet_id"`
	EntryType             EntryType       `json:"entry_type"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	IdempotencyKey        *string         `json:"idempotency_key,omitempty"`
	HoldID                *string         `json:"hold_id,omitempty"`
	BalanceAfter          decimal.Decimal `json:"balance_after"`
	PendingBalanceAfter   decimal.Decimal `json:"pending_balance_after"`
	AvailableBalanceAfter decimal.Decimal `json:"available_balance_after"`
	ReferenceType         *string         `json:"reference_type,omitempty"`
	ReferenceID           *string         `json:"reference_id,omitempty"`
	Description           *string         `json:"description,omitempty"`
	Metadata              json.RawMessage `json:"metadata,omitempty"`
	CreatedBy             *string         `json:"created_by,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
}

// EntryMeta carries the optional reference fields an operation may
// attach to the entry it writes.
type EntryMeta struct {
	ReferenceType *string
	ReferenceID   *string
	Description   *string
	Metadata      json.RawMessage
	CreatedBy     *string
}

// NewEntryParams contains everything needed to insert a ledger entry.
type NewEntryParams struct {
	WalletID              uuid.UUID
	EntryType             EntryType
	Amount                decimal.Decimal
	Currency              string
	IdempotencyKey        *string
	HoldID                *string
	BalanceAfter          decimal.Decimal
	PendingBalanceAfter   decimal.Decimal
	AvailableBalanceAfter decimal.Decimal
	Meta                  EntryMeta
}

// LedgerFilter contains filter parameters for querying ledger history.
// Cursor is the ID of the last entry of the previous page; results are
// newest first.
type LedgerFilter struct {
	EntryType *EntryType
	Limit     int
	Cursor    *uuid.UUID
}
