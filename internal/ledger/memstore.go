package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"walletd/internal/models"
)

// MemoryStore is an in-memory Store with the same transactional
// semantics as the Postgres implementation: mutations inside Atomic
// are buffered and applied only when the callback succeeds, and
// transactions on the store serialize. Used by tests and local
// development; production runs on internal/repository.
type MemoryStore struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*models.Wallet
	entries map[uuid.UUID][]*models.LedgerEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets: make(map[uuid.UUID]*models.Wallet),
		entries: make(map[uuid.UUID][]*models.LedgerEntry),
	}
}

// GetOrCreateWallet implements Store.
func (s *MemoryStore) GetOrCreateWallet(ctx context.Context, params models.GetOrCreateWalletParams) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.wallets {
		if w.TenantID == params.TenantID && w.WalletType == params.WalletType &&
			uuidPtrEqual(w.CustomerID, params.CustomerID) && uuidPtrEqual(w.VendorID, params.VendorID) {
			return copyWallet(w), nil
		}
	}

	now := time.Now().UTC()
	w := &models.Wallet{
		ID:             uuid.New(),
		TenantID:       params.TenantID,
		WalletType:     params.WalletType,
		CustomerID:     params.CustomerID,
		VendorID:       params.VendorID,
		Currency:       params.Currency,
		Balance:        decimal.Zero,
		PendingBalance: decimal.Zero,
		Status:         models.WalletStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.wallets[w.ID] = w
	return copyWallet(w), nil
}

// GetWallet implements Store.
func (s *MemoryStore) GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return nil, nil
	}
	return copyWallet(w), nil
}

// ListEntries implements Store.
func (s *MemoryStore) ListEntries(ctx context.Context, walletID uuid.UUID, filter models.LedgerFilter) ([]*models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	all := s.entries[walletID]
	var out []*models.LedgerEntry
	started := filter.Cursor == nil
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		entry := all[i]
		if !started {
			if entry.ID == *filter.Cursor {
				started = true
			}
			continue
		}
		if filter.EntryType != nil && entry.EntryType != *filter.EntryType {
			continue
		}
		out = append(out, copyEntry(entry))
	}
	return out, nil
}

// Atomic implements Store. The store-wide mutex serializes
// transactions; buffered mutations commit only when fn succeeds.
func (s *MemoryStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:    s,
		balances: make(map[uuid.UUID][2]decimal.Decimal),
		statuses: make(map[uuid.UUID]models.WalletStatus),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memTx struct {
	store    *MemoryStore
	balances map[uuid.UUID][2]decimal.Decimal
	statuses map[uuid.UUID]models.WalletStatus
	inserted []*models.LedgerEntry
}

func (t *memTx) WalletForUpdate(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	w, ok := t.store.wallets[id]
	if !ok {
		return nil, nil
	}
	view := copyWallet(w)
	if b, ok := t.balances[id]; ok {
		view.Balance, view.PendingBalance = b[0], b[1]
	}
	if st, ok := t.statuses[id]; ok {
		view.Status = st
	}
	return view, nil
}

func (t *memTx) InsertEntry(ctx context.Context, params models.NewEntryParams) (*models.LedgerEntry, error) {
	if params.IdempotencyKey != nil {
		existing, err := t.EntryByIdempotencyKey(ctx, params.WalletID, *params.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, ErrDuplicateEntry
		}
	}

	entry := &models.LedgerEntry{
		ID:                    uuid.New(),
		WalletID:              params.WalletID,
		EntryType:             params.EntryType,
		Amount:                params.Amount,
		Currency:              params.Currency,
		IdempotencyKey:        params.IdempotencyKey,
		HoldID:                params.HoldID,
		BalanceAfter:          params.BalanceAfter,
		PendingBalanceAfter:   params.PendingBalanceAfter,
		AvailableBalanceAfter: params.AvailableBalanceAfter,
		ReferenceType:         params.Meta.ReferenceType,
		ReferenceID:           params.Meta.ReferenceID,
		Description:           params.Meta.Description,
		Metadata:              params.Meta.Metadata,
		CreatedBy:             params.Meta.CreatedBy,
		CreatedAt:             time.Now().UTC(),
	}
	t.inserted = append(t.inserted, entry)
	return copyEntry(entry), nil
}

func (t *memTx) EntryByIdempotencyKey(ctx context.Context, walletID uuid.UUID, key string) (*models.LedgerEntry, error) {
	for _, entry := range t.visibleEntries(walletID) {
		if entry.IdempotencyKey != nil && *entry.IdempotencyKey == key {
			return copyEntry(entry), nil
		}
	}
	return nil, nil
}

func (t *memTx) AllEntries(ctx context.Context, walletID uuid.UUID) ([]*models.LedgerEntry, error) {
	visible := t.visibleEntries(walletID)
	out := make([]*models.LedgerEntry, len(visible))
	for i, entry := range visible {
		out[i] = copyEntry(entry)
	}
	return out, nil
}

func (t *memTx) HoldState(ctx context.Context, walletID uuid.UUID, holdID string) (*HoldState, error) {
	state := &HoldState{Held: decimal.Zero, Released: decimal.Zero, Captured: decimal.Zero}
	for _, entry := range t.visibleEntries(walletID) {
		if entry.HoldID == nil || *entry.HoldID != holdID {
			continue
		}
		switch entry.EntryType {
		case models.EntryHoldCreated:
			state.Held = state.Held.Add(entry.Amount)
		case models.EntryHoldReleased:
			state.Released = state.Released.Add(entry.Amount)
		case models.EntryHoldCaptured:
			state.Captured = state.Captured.Add(entry.Amount)
		}
	}
	return state, nil
}

func (t *memTx) UpdateWalletBalances(ctx context.Context, walletID uuid.UUID, balance, pending decimal.Decimal) error {
	t.balances[walletID] = [2]decimal.Decimal{balance, pending}
	return nil
}

func (t *memTx) UpdateWalletStatus(ctx context.Context, walletID uuid.UUID, status models.WalletStatus) error {
	t.statuses[walletID] = status
	return nil
}

func (t *memTx) visibleEntries(walletID uuid.UUID) []*models.LedgerEntry {
	visible := make([]*models.LedgerEntry, 0, len(t.store.entries[walletID])+len(t.inserted))
	visible = append(visible, t.store.entries[walletID]...)
	for _, entry := range t.inserted {
		if entry.WalletID == walletID {
			visible = append(visible, entry)
		}
	}
	return visible
}

func (t *memTx) commit() {
	for _, entry := range t.inserted {
		t.store.entries[entry.WalletID] = append(t.store.entries[entry.WalletID], entry)
	}
	now := time.Now().UTC()
	for id, b := range t.balances {
		if w, ok := t.store.wallets[id]; ok {
			w.Balance, w.PendingBalance = b[0], b[1]
			w.UpdatedAt = now
		}
	}
	for id, st := range t.statuses {
		if w, ok := t.store.wallets[id]; ok {
			w.Status = st
			w.UpdatedAt = now
		}
	}
}

func copyWallet(w *models.Wallet) *models.Wallet {
	c := *w
	return &c
}

func copyEntry(e *models.LedgerEntry) *models.LedgerEntry {
	c := *e
	return &c
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
