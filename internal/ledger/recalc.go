package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"walletd/internal/models"
)

// RecalculationResult holds the figures derived by replaying the
// ledger, plus whether the cached wallet row had drifted from them.
type RecalculationResult struct {
	WalletID         uuid.UUID       `json:"wallet_id"`
	Balance          decimal.Decimal `json:"balance"`
	PendingBalance   decimal.Decimal `json:"pending_balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	EntryCount       int             `json:"entry_count"`
	Drifted          bool            `json:"drifted"`
}

// Recalculate replays every ledger entry for the wallet in creation
// order, re-derives the balances, and rewrites the wallet row when the
// cached values differ. The wallet row is a cache; the ledger is the
// source of truth.
func (e *Engine) Recalculate(ctx context.Context, tenantID, walletID uuid.UUID) (*RecalculationResult, error) {
	timer := e.startTimer("recalculate")
	defer timer()

	var result *RecalculationResult
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

		entries, err := tx.AllEntries(ctx, walletID)
		if err != nil {
			return err
		}

		balance, pending := decimal.Zero, decimal.Zero
		for _, entry := range entries {
			balance, pending, err = ApplyEntry(balance, pending, entry)
			if err != nil {
				return err
			}
		}

		drifted := !balance.Equal(w.Balance) || !pending.Equal(w.PendingBalance)
		if drifted {
			if err := tx.UpdateWalletBalances(ctx, walletID, balance, pending); err != nil {
				return err
			}
		}

		result = &RecalculationResult{
			WalletID:         walletID,
			Balance:          balance,
			PendingBalance:   pending,
			AvailableBalance: balance.Sub(pending),
			EntryCount:       len(entries),
			Drifted:          drifted,
		}
		return nil
	})
	if err != nil {
		return nil, e.fail("recalculate", err)
	}
	if e.metrics != nil {
		e.metrics.OperationsTotal.WithLabelValues("recalculate", "ok").Inc()
		if result.Drifted {
			e.metrics.ReconciliationDriftTotal.Inc()
		}
	}
	return result, nil
}

// ApplyEntry applies one entry's effect to a running balance pair.
// Credits and debits move the balance; the hold lifecycle moves the
// pending balance, with capture also removing funds from the balance.
func ApplyEntry(balance, pending decimal.Decimal, entry *models.LedgerEntry) (decimal.Decimal, decimal.Decimal, error) {
	switch {
	case entry.EntryType.IsCredit():
		return balance.Add(entry.Amount), pending, nil
	case entry.EntryType.IsDebit():
		return balance.Sub(entry.Amount), pending, nil
	case entry.EntryType == models.EntryHoldCreated:
		return balance, pending.Add(entry.Amount), nil
	case entry.EntryType == models.EntryHoldReleased:
		return balance, pending.Sub(entry.Amount), nil
	case entry.EntryType == models.EntryHoldCaptured:
		return balance.Sub(entry.Amount), pending.Sub(entry.Amount), nil
	default:
		return balance, pending, fmt.Errorf("unknown entry type %q on entry %s", entry.EntryType, entry.ID)
	}
}
