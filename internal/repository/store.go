package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"walletd/internal/db"
	"walletd/internal/ledger"
	"walletd/internal/models"
)

// Store implements ledger.Store on PostgreSQL. Atomic units map to
// database transactions; the wallet row lock comes from
// SELECT ... FOR UPDATE, so mutations on one wallet serialize while
// different wallets proceed in parallel.
type Store struct {
	db      *db.DB
	wallets *WalletRepository
	entries *EntryRepository
}

// NewStore creates the PostgreSQL-backed ledger store.
func NewStore(database *db.DB) *Store {
	return &Store{
		db:      database,
		wallets: NewWalletRepository(database.Pool()),
		entries: NewEntryRepository(database.Pool()),
	}
}

// Wallets exposes the wallet repository for non-transactional reads.
func (s *Store) Wallets() *WalletRepository {
	return s.wallets
}

// GetOrCreateWallet implements ledger.Store.
func (s *Store) GetOrCreateWallet(ctx context.Context, params models.GetOrCreateWalletParams) (*models.Wallet, error) {
	return s.wallets.GetOrCreate(ctx, params)
}

// GetWallet implements ledger.Store.
func (s *Store) GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return s.wallets.GetByID(ctx, id)
}

// ListEntries implements ledger.Store.
func (s *Store) ListEntries(ctx context.Context, walletID uuid.UUID, filter models.LedgerFilter) ([]*models.LedgerEntry, error) {
	return s.entries.ListByWallet(ctx, walletID, filter)
}

// Atomic implements ledger.Store.
func (s *Store) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&storeTx{store: s, tx: tx})
	})
}

type storeTx struct {
	store *Store
	tx    pgx.Tx
}

func (t *storeTx) WalletForUpdate(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return t.store.wallets.GetForUpdate(ctx, t.tx, id)
}

func (t *storeTx) InsertEntry(ctx context.Context, params models.NewEntryParams) (*models.LedgerEntry, error) {
	return t.store.entries.Insert(ctx, t.tx, params)
}

func (t *storeTx) EntryByIdempotencyKey(ctx context.Context, walletID uuid.UUID, key string) (*models.LedgerEntry, error) {
	return t.store.entries.GetByIdempotencyKey(ctx, t.tx, walletID, key)
}

func (t *storeTx) AllEntries(ctx context.Context, walletID uuid.UUID) ([]*models.LedgerEntry, error) {
	return t.store.entries.AllByWallet(ctx, t.tx, walletID)
}

func (t *storeTx) HoldState(ctx context.Context, walletID uuid.UUID, holdID string) (*ledger.HoldState, error) {
	return t.store.entries.HoldState(ctx, t.tx, walletID, holdID)
}

func (t *storeTx) UpdateWalletBalances(ctx context.Context, walletID uuid.UUID, balance, pending decimal.Decimal) error {
	return t.store.wallets.UpdateBalances(ctx, t.tx, walletID, balance, pending)
}

func (t *storeTx) UpdateWalletStatus(ctx context.Context, walletID uuid.UUID, status models.WalletStatus) error {
	return t.store.wallets.UpdateStatus(ctx, t.tx, walletID, status)
}
