package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"walletd/internal/metrics"
	"walletd/internal/models"
)

// Engine performs validated, atomic balance mutations. Every operation
// runs as a single transaction encompassing the idempotency check, the
// wallet row lock, invariant validation, the ledger insert, and the
// wallet update. A retried operation carrying the same idempotency key
// is a no-op that returns the original entry with IsDuplicate set.
type Engine struct {
	store   Store
	metrics *metrics.Metrics
}

// NewEngine creates an engine on top of a store. Metrics may be nil.
func NewEngine(store Store, m *metrics.Metrics) *Engine {
	return &Engine{store: store, metrics: m}
}

// OperationResult is returned by every single-wallet mutation.
type OperationResult struct {
	Wallet      *models.Wallet      `json:"wallet"`
	Entry       *models.LedgerEntry `json:"entry"`
	IsDuplicate bool                `json:"is_duplicate"`
}

// CreditParams describes a credit operation.
type CreditParams struct {
	TenantID       uuid.UUID
	WalletID       uuid.UUID
	Amount         decimal.Decimal
	EntryType      models.CreditType
	IdempotencyKey string
	Meta           models.EntryMeta
}

// DebitParams describes a debit operation.
type DebitParams struct {
	TenantID       uuid.UUID
	WalletID       uuid.UUID
	Amount         decimal.Decimal
	EntryType      models.DebitType
	IdempotencyKey string
	Meta           models.EntryMeta
}

// HoldParams describes a hold lifecycle operation. IdempotencyKey is
// optional for holds; the hold id itself guards against double
// creation.
type HoldParams struct {
	TenantID       uuid.UUID
	WalletID       uuid.UUID
	Amount         decimal.Decimal
	HoldID         string
	IdempotencyKey string
	Meta           models.EntryMeta
}

// Credit increases the wallet balance by amount.
func (e *Engine) Credit(ctx context.Context, params CreditParams) (*OperationResult, error) {
	if !params.Amount.IsPositive() {
		return nil, e.fail("credit", ErrInvalidAmount)
	}
	if !params.EntryType.Valid() {
		return nil, e.fail("credit", ErrInvalidEntryType)
	}
	if strings.TrimSpace(params.IdempotencyKey) == "" {
		return nil, e.fail("credit", ErrMissingKey)
	}

	result, err := e.mutate(ctx, "credit", params.WalletID, params.TenantID, &params.IdempotencyKey, func(ctx context.Context, tx Tx, w *models.Wallet) (*models.LedgerEntry, error) {
		newBalance := w.Balance.Add(params.Amount)
		return tx.InsertEntry(ctx, models.NewEntryParams{
			WalletID:              w.ID,
			EntryType:             params.EntryType.EntryType(),
			Amount:                params.Amount,
			Currency:              w.Currency,
			IdempotencyKey:        &params.IdempotencyKey,
			BalanceAfter:          newBalance,
			PendingBalanceAfter:   w.PendingBalance,
			AvailableBalanceAfter: newBalance.Sub(w.PendingBalance),
			Meta:                  params.Meta,
		})
	})
	return result, err
}

// Debit decreases the wallet balance by amount. Debits draw from the
// available balance: funds under hold cannot be debited.
func (e *Engine) Debit(ctx context.Context, params DebitParams) (*OperationResult, error) {
	if !params.Amount.IsPositive() {
		return nil, e.fail("debit", ErrInvalidAmount)
	}
	if !params.EntryType.Valid() {
		return nil, e.fail("debit", ErrInvalidEntryType)
	}
	if strings.TrimSpace(params.IdempotencyKey) == "" {
		return nil, e.fail("debit", ErrMissingKey)
	}

	result, err := e.mutate(ctx, "debit", params.WalletID, params.TenantID, &params.IdempotencyKey, func(ctx context.Context, tx Tx, w *models.Wallet) (*models.LedgerEntry, error) {
		if !w.HasSufficientBalance(params.Amount) {
			return nil, ErrInsufficientBalance
		}
		newBalance := w.Balance.Sub(params.Amount)
		return tx.InsertEntry(ctx, models.NewEntryParams{
			WalletID:              w.ID,
			EntryType:             params.EntryType.EntryType(),
			Amount:                params.Amount,
			Currency:              w.Currency,
			IdempotencyKey:        &params.IdempotencyKey,
			BalanceAfter:          newBalance,
			PendingBalanceAfter:   w.PendingBalance,
			AvailableBalanceAfter: newBalance.Sub(w.PendingBalance),
			Meta:                  params.Meta,
		})
	})
	return result, err
}

// CreateHold reserves amount without removing it from the wallet:
// pending balance grows, balance is unchanged, available shrinks. A
// hold id can be used at most once per wallet, even after the hold has
// been fully released or captured.
func (e *Engine) CreateHold(ctx context.Context, params HoldParams) (*OperationResult, error) {
	if !params.Amount.IsPositive() {
		return nil, e.fail("hold", ErrInvalidAmount)
	}
	if strings.TrimSpace(params.HoldID) == "" {
		return nil, e.fail("hold", fmt.Errorf("%w: hold id is required", ErrHoldNotFound))
	}

	result, err := e.mutate(ctx, "hold", params.WalletID, params.TenantID, optionalKey(params.IdempotencyKey), func(ctx context.Context, tx Tx, w *models.Wallet) (*models.LedgerEntry, error) {
		hold, err := tx.HoldState(ctx, w.ID, params.HoldID)
		if err != nil {
			return nil, err
		}
		if hold.Exists() {
			return nil, ErrDuplicateHold
		}
		if !w.HasSufficientBalance(params.Amount) {
			return nil, ErrInsufficientBalance
		}
		newPending := w.PendingBalance.Add(params.Amount)
		return tx.InsertEntry(ctx, models.NewEntryParams{
			WalletID:              w.ID,
			EntryType:             models.EntryHoldCreated,
			Amount:                params.Amount,
			Currency:              w.Currency,
			IdempotencyKey:        optionalKey(params.IdempotencyKey),
			HoldID:                &params.HoldID,
			BalanceAfter:          w.Balance,
			PendingBalanceAfter:   newPending,
			AvailableBalanceAfter: w.Balance.Sub(newPending),
			Meta:                  params.Meta,
		})
	})
	return result, err
}

// ReleaseHold returns held funds to the available balance: pending
// shrinks, balance is unchanged.
func (e *Engine) ReleaseHold(ctx context.Context, params HoldParams) (*OperationResult, error) {
	if !params.Amount.IsPositive() {
		return nil, e.fail("release", ErrInvalidAmount)
	}

	result, err := e.mutate(ctx, "release", params.WalletID, params.TenantID, optionalKey(params.IdempotencyKey), func(ctx context.Context, tx Tx, w *models.Wallet) (*models.LedgerEntry, error) {
		if err := checkHold(ctx, tx, w.ID, params.HoldID, params.Amount); err != nil {
			return nil, err
		}
		newPending := w.PendingBalance.Sub(params.Amount)
		return tx.InsertEntry(ctx, models.NewEntryParams{
			WalletID:              w.ID,
			EntryType:             models.EntryHoldReleased,
			Amount:                params.Amount,
			Currency:              w.Currency,
			IdempotencyKey:        optionalKey(params.IdempotencyKey),
			HoldID:                &params.HoldID,
			BalanceAfter:          w.Balance,
			PendingBalanceAfter:   newPending,
			AvailableBalanceAfter: w.Balance.Sub(newPending),
			Meta:                  params.Meta,
		})
	})
	return result, err
}

// CaptureHold consumes held funds: pending shrinks and the funds
// actually leave the wallet.
func (e *Engine) CaptureHold(ctx context.Context, params HoldParams) (*OperationResult, error) {
	if !params.Amount.IsPositive() {
		return nil, e.fail("capture", ErrInvalidAmount)
	}

	result, err := e.mutate(ctx, "capture", params.WalletID, params.TenantID, optionalKey(params.IdempotencyKey), func(ctx context.Context, tx Tx, w *models.Wallet) (*models.LedgerEntry, error) {
		if err := checkHold(ctx, tx, w.ID, params.HoldID, params.Amount); err != nil {
			return nil, err
		}
		newBalance := w.Balance.Sub(params.Amount)
		newPending := w.PendingBalance.Sub(params.Amount)
		return tx.InsertEntry(ctx, models.NewEntryParams{
			WalletID:              w.ID,
			EntryType:             models.EntryHoldCaptured,
			Amount:                params.Amount,
			Currency:              w.Currency,
			IdempotencyKey:        optionalKey(params.IdempotencyKey),
			HoldID:                &params.HoldID,
			BalanceAfter:          newBalance,
			PendingBalanceAfter:   newPending,
			AvailableBalanceAfter: newBalance.Sub(newPending),
			Meta:                  params.Meta,
		})
	})
	return result, err
}

// TransferParams describes an atomic wallet-to-wallet move.
type TransferParams struct {
	TenantID       uuid.UUID
	FromWalletID   uuid.UUID
	ToWalletID     uuid.UUID
	Amount         decimal.Decimal
	IdempotencyKey string
	Description    *string
	CreatedBy      *string
}

// TransferResult is returned by Transfer.
type TransferResult struct {
	FromWallet  *models.Wallet      `json:"from_wallet"`
	ToWallet    *models.Wallet      `json:"to_wallet"`
	DebitEntry  *models.LedgerEntry `json:"debit_entry"`
	CreditEntry *models.LedgerEntry `json:"credit_entry"`
	IsDuplicate bool                `json:"is_duplicate"`
}

// Transfer debits the source wallet and credits the destination wallet
// in one transaction: either both legs apply or neither does. Both leg
// entries carry the transfer's idempotency key, each scoped to its own
// wallet, and the key is checked before either leg executes.
func (e *Engine) Transfer(ctx context.Context, params TransferParams) (*TransferResult, error) {
	if !params.Amount.IsPositive() {
		return nil, e.fail("transfer", ErrInvalidAmount)
	}
	if strings.TrimSpace(params.IdempotencyKey) == "" {
		return nil, e.fail("transfer", ErrMissingKey)
	}
	if params.FromWalletID == params.ToWalletID {
		return nil, e.fail("transfer", fmt.Errorf("%w: source and destination are the same wallet", ErrWalletNotFound))
	}

	timer := e.startTimer("transfer")
	defer timer()

	var result *TransferResult
	err := e.store.Atomic(ctx, func(tx Tx) error {
		// Lock both rows in a deterministic order so two opposing
		// transfers cannot deadlock.
		firstID, secondID := params.FromWalletID, params.ToWalletID
		if secondID.String() < firstID.String() {
			firstID, secondID = secondID, firstID
		}
		first, err := tx.WalletForUpdate(ctx, firstID)
		if err != nil {
			return err
		}
		second, err := tx.WalletForUpdate(ctx, secondID)
		if err != nil {
			return err
		}

		from, to := first, second
		if firstID != params.FromWalletID {
			from, to = second, first
		}
		if from == nil || to == nil {
			return ErrWalletNotFound
		}
		for _, w := range []*models.Wallet{from, to} {
			if params.TenantID != uuid.Nil && w.TenantID != params.TenantID {
				return ErrTenantMismatch
			}
			if !w.IsActive() {
				return ErrWalletNotActive
			}
		}
		if from.Currency != to.Currency {
			return ErrCurrencyMismatch
		}

		// Idempotency is keyed to the transfer via the source wallet.
		existing, err := tx.EntryByIdempotencyKey(ctx, from.ID, params.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			counterpart, err := tx.EntryByIdempotencyKey(ctx, to.ID, params.IdempotencyKey)
			if err != nil {
				return err
			}
			result = &TransferResult{
				FromWallet:  from,
				ToWallet:    to,
				DebitEntry:  existing,
				CreditEntry: counterpart,
				IsDuplicate: true,
			}
			return nil
		}

		if !from.HasSufficientBalance(params.Amount) {
			return ErrInsufficientBalance
		}

		transferID := uuid.New().String()
		refType := "TRANSFER"

		fromBalance := from.Balance.Sub(params.Amount)
		debitEntry, err := tx.InsertEntry(ctx, models.NewEntryParams{
			WalletID:              from.ID,
			EntryType:             models.DebitTransferOut.EntryType(),
			Amount:                params.Amount,
			Currency:              from.Currency,
			IdempotencyKey:        &params.IdempotencyKey,
			BalanceAfter:          fromBalance,
			PendingBalanceAfter:   from.PendingBalance,
			AvailableBalanceAfter: fromBalance.Sub(from.PendingBalance),
			Meta: models.EntryMeta{
				ReferenceType: &refType,
				ReferenceID:   &transferID,
				Description:   params.Description,
				Metadata:      transferMetadata(transferID, to.ID),
				CreatedBy:     params.CreatedBy,
			},
		})
		if errors.Is(err, ErrDuplicateEntry) {
			return fmt.Errorf("transfer idempotency race on wallet %s: %w", from.ID, err)
		}
		if err != nil {
			return err
		}

		toBalance := to.Balance.Add(params.Amount)
		creditEntry, err := tx.InsertEntry(ctx, models.NewEntryParams{
			WalletID:              to.ID,
			EntryType:             models.CreditTransferIn.EntryType(),
			Amount:                params.Amount,
			Currency:              to.Currency,
			IdempotencyKey:        &params.IdempotencyKey,
			BalanceAfter:          toBalance,
			PendingBalanceAfter:   to.PendingBalance,
			AvailableBalanceAfter: toBalance.Sub(to.PendingBalance),
			Meta: models.EntryMeta{
				ReferenceType: &refType,
				ReferenceID:   &transferID,
				Description:   params.Description,
				Metadata:      transferMetadata(transferID, from.ID),
				CreatedBy:     params.CreatedBy,
			},
		})
		if err != nil {
			return err
		}

		if err := tx.UpdateWalletBalances(ctx, from.ID, fromBalance, from.PendingBalance); err != nil {
			return err
		}
		if err := tx.UpdateWalletBalances(ctx, to.ID, toBalance, to.PendingBalance); err != nil {
			return err
		}

		from.Balance = fromBalance
		to.Balance = toBalance
		result = &TransferResult{
			FromWallet:  from,
			ToWallet:    to,
			DebitEntry:  debitEntry,
			CreditEntry: creditEntry,
		}
		return nil
	})
	if err != nil {
		return nil, e.fail("transfer", err)
	}
	e.observe("transfer", result.IsDuplicate)
	return result, nil
}

// GetOrCreateWallet returns the wallet identified by (tenant, type,
// owner), creating it with zero balances when absent. Safe under
// concurrent calls: the caller gets whichever wallet now exists.
func (e *Engine) GetOrCreateWallet(ctx context.Context, params models.GetOrCreateWalletParams) (*models.Wallet, error) {
	if !params.WalletType.Valid() {
		return nil, fmt.Errorf("%w: unknown wallet type %q", ErrWalletNotFound, params.WalletType)
	}
	switch params.WalletType {
	case models.WalletTypeCustomer:
		if params.CustomerID == nil || params.VendorID != nil {
			return nil, fmt.Errorf("customer wallet requires exactly a customer owner")
		}
	case models.WalletTypeVendor:
		if params.VendorID == nil || params.CustomerID != nil {
			return nil, fmt.Errorf("vendor wallet requires exactly a vendor owner")
		}
	case models.WalletTypePlatform:
		if params.CustomerID != nil || params.VendorID != nil {
			return nil, fmt.Errorf("platform wallet cannot have an owner")
		}
	}
	if len(params.Currency) != 3 {
		return nil, fmt.Errorf("currency must be a 3-letter ISO code")
	}
	return e.store.GetOrCreateWallet(ctx, params)
}

// GetWallet returns the wallet after verifying tenant ownership.
func (e *Engine) GetWallet(ctx context.Context, tenantID, walletID uuid.UUID) (*models.Wallet, error) {
	w, err := e.store.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrWalletNotFound
	}
	if tenantID != uuid.Nil && w.TenantID != tenantID {
		return nil, ErrTenantMismatch
	}
	return w, nil
}

// GetWalletWithLedger returns the wallet plus its most recent entries,
// newest first.
func (e *Engine) GetWalletWithLedger(ctx context.Context, tenantID, walletID uuid.UUID, limit int) (*models.Wallet, []*models.LedgerEntry, error) {
	w, err := e.GetWallet(ctx, tenantID, walletID)
	if err != nil {
		return nil, nil, err
	}
	entries, err := e.store.ListEntries(ctx, walletID, models.LedgerFilter{Limit: limit})
	if err != nil {
		return nil, nil, err
	}
	return w, entries, nil
}

// ListEntries reads the wallet's ledger with optional type filter and
// keyset cursor. Never mutates.
func (e *Engine) ListEntries(ctx context.Context, tenantID, walletID uuid.UUID, filter models.LedgerFilter) ([]*models.LedgerEntry, error) {
	if _, err := e.GetWallet(ctx, tenantID, walletID); err != nil {
		return nil, err
	}
	return e.store.ListEntries(ctx, walletID, filter)
}

// SetStatus transitions the wallet status. CLOSED is terminal.
func (e *Engine) SetStatus(ctx context.Context, tenantID, walletID uuid.UUID, status models.WalletStatus) (*models.Wallet, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown wallet status %q", status)
	}
	var updated *models.Wallet
	err := e.store.Atomic(ctx, func(tx Tx) error {
		w, err := tx.WalletForUpdate(ctx, walletID)
		if err != nil {
			return err
		}
		if w == nil {
			return ErrWalletNotFound
		}
		if tenantID != uuid.Nil && w.TenantID != tenantID {
			return ErrTenantMismatch
		}
		if w.Status.IsTerminal() && status != w.Status {
			return ErrWalletNotActive
		}
		if err := tx.UpdateWalletStatus(ctx, walletID, status); err != nil {
			return err
		}
		w.Status = status
		updated = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// applyFn computes and inserts the entry for one operation, returning
// ErrDuplicateEntry when the idempotency key already won.
type applyFn func(ctx context.Context, tx Tx, w *models.Wallet) (*models.LedgerEntry, error)

// mutate is the shared single-wallet transaction skeleton: lock, check
// tenant and status, apply, persist the new cached balances. When the
// insert loses to an existing idempotency key the original entry and
// the current wallet state are returned with IsDuplicate set; the
// balance mutation is not re-executed.
func (e *Engine) mutate(ctx context.Context, op string, walletID, tenantID uuid.UUID, key *string, apply applyFn) (*OperationResult, error) {
	timer := e.startTimer(op)
	defer timer()

	var result *OperationResult
	err := e.store.Atomic(ctx, func(tx Tx) error {
		w, err := tx.WalletForUpdate(ctx, walletID)
		if err != nil {
			return err
		}
		if w == nil {
			return ErrWalletNotFound
		}
		if tenantID != uuid.Nil && w.TenantID != tenantID {
			return ErrTenantMismatch
		}
		if !w.IsActive() {
			return ErrWalletNotActive
		}

		// Holding the wallet row lock makes this read authoritative;
		// the unique index below is the backstop for anything that
		// slips past it.
		if key != nil {
			existing, err := tx.EntryByIdempotencyKey(ctx, w.ID, *key)
			if err != nil {
				return err
			}
			if existing != nil {
				result = &OperationResult{Wallet: w, Entry: existing, IsDuplicate: true}
				return nil
			}
		}

		entry, err := apply(ctx, tx, w)
		if errors.Is(err, ErrDuplicateEntry) && key != nil {
			existing, lookupErr := tx.EntryByIdempotencyKey(ctx, w.ID, *key)
			if lookupErr != nil {
				return lookupErr
			}
			if existing == nil {
				return err
			}
			result = &OperationResult{Wallet: w, Entry: existing, IsDuplicate: true}
			return nil
		}
		if err != nil {
			return err
		}

		if err := tx.UpdateWalletBalances(ctx, w.ID, entry.BalanceAfter, entry.PendingBalanceAfter); err != nil {
			return err
		}
		w.Balance = entry.BalanceAfter
		w.PendingBalance = entry.PendingBalanceAfter
		result = &OperationResult{Wallet: w, Entry: entry}
		return nil
	})
	if err != nil {
		return nil, e.fail(op, err)
	}
	e.observe(op, result.IsDuplicate)
	return result, nil
}

func checkHold(ctx context.Context, tx Tx, walletID uuid.UUID, holdID string, amount decimal.Decimal) error {
	if strings.TrimSpace(holdID) == "" {
		return ErrHoldNotFound
	}
	hold, err := tx.HoldState(ctx, walletID, holdID)
	if err != nil {
		return err
	}
	if !hold.Active() {
		return ErrHoldNotFound
	}
	if amount.GreaterThan(hold.Remaining()) {
		return ErrAmountExceedsHold
	}
	return nil
}

func optionalKey(key string) *string {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	return &key
}

func transferMetadata(transferID string, counterparty uuid.UUID) json.RawMessage {
	meta, _ := json.Marshal(map[string]string{
		"transfer_id":            transferID,
		"counterparty_wallet_id": counterparty.String(),
	})
	return meta
}

func (e *Engine) fail(op string, err error) error {
	if e.metrics != nil {
		e.metrics.OperationsTotal.WithLabelValues(op, "error").Inc()
	}
	return err
}

func (e *Engine) observe(op string, duplicate bool) {
	if e.metrics == nil {
		return
	}
	result := "ok"
	if duplicate {
		result = "duplicate"
	}
	e.metrics.OperationsTotal.WithLabelValues(op, result).Inc()
}

func (e *Engine) startTimer(op string) func() {
	if e.metrics == nil {
		return func() {}
	}
	t := e.metrics.OperationDuration.WithLabelValues(op)
	return metrics.Time(t)
}
