package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"walletd/internal/models"
)

// Store is the persistence surface the engine runs on. The production
// implementation lives in internal/repository on top of pgx; tests use
// the in-memory store in this package.
type Store interface {
	// GetOrCreateWallet looks a wallet up by its (tenant, type, owner)
	// key and creates it with zero balances when absent. Concurrent
	// creators must converge to one row.
	GetOrCreateWallet(ctx context.Context, params models.GetOrCreateWalletParams) (*models.Wallet, error)

	// GetWallet returns (nil, nil) when the wallet does not exist.
	GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error)

	// ListEntries reads the wallet's ledger newest first.
	ListEntries(ctx context.Context, walletID uuid.UUID, filter models.LedgerFilter) ([]*models.LedgerEntry, error)

	// Atomic runs fn as one transaction: every mutation fn performs is
	// applied entirely or not at all.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view handed to Atomic callbacks.
type Tx interface {
	// WalletForUpdate reads the wallet row with an exclusive row lock,
	// serializing all mutations on the same wallet. Returns (nil, nil)
	// when absent.
	WalletForUpdate(ctx context.Context, id uuid.UUID) (*models.Wallet, error)

	// InsertEntry appends a ledger entry. Returns ErrDuplicateEntry when
	// the (wallet_id, idempotency_key) pair already exists; the storage
	// layer enforces the uniqueness, not a check-then-insert.
	InsertEntry(ctx context.Context, params models.NewEntryParams) (*models.LedgerEntry, error)

	// EntryByIdempotencyKey returns (nil, nil) when no entry carries the
	// key on this wallet.
	EntryByIdempotencyKey(ctx context.Context, walletID uuid.UUID, key string) (*models.LedgerEntry, error)

	// AllEntries reads the wallet's full ledger in creation order, for
	// replay.
	AllEntries(ctx context.Context, walletID uuid.UUID) ([]*models.LedgerEntry, error)

	// HoldState aggregates the hold lifecycle entries sharing holdID.
	HoldState(ctx context.Context, walletID uuid.UUID, holdID string) (*HoldState, error)

	// UpdateWalletBalances rewrites the cached balance fields.
	UpdateWalletBalances(ctx context.Context, walletID uuid.UUID, balance, pending decimal.Decimal) error

	// UpdateWalletStatus rewrites the wallet status.
	UpdateWalletStatus(ctx context.Context, walletID uuid.UUID, status models.WalletStatus) error
}

// HoldState is the state of one hold, derived by aggregating the
// ledger entries that share its hold id. The ledger stays the sole
// source of truth; there is no separate hold table.
type HoldState struct {
	Held     decimal.Decimal
	Released decimal.Decimal
	Captured decimal.Decimal
}

// Exists reports whether a HOLD_CREATED entry was ever written.
func (h *HoldState) Exists() bool {
	return h != nil && h.Held.IsPositive()
}

// Remaining returns the still-reserved amount.
func (h *HoldState) Remaining() decimal.Decimal {
	if h == nil {
		return decimal.Zero
	}
	return h.Held.Sub(h.Released).Sub(h.Captured)
}

// Active reports whether the hold still reserves funds.
func (h *HoldState) Active() bool {
	return h.Exists() && h.Remaining().IsPositive()
}
