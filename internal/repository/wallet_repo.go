package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"walletd/internal/models"
)

// scanner is satisfied by pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const walletColumns = `id, tenant_id, wallet_type, customer_id, vendor_id, currency, balance, pending_balance, status, created_at, updated_at`

// WalletRepository handles wallet data access.
type WalletRepository struct {
	pool *pgxpool.Pool
}

// NewWalletRepository creates a new wallet repository.
func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

// GetOrCreate looks a wallet up by (tenant, type, owner) and creates it
// with zero balances when absent. The partial unique indexes on the
// lookup key make concurrent creators converge: the insert races are
// settled by ON CONFLICT DO NOTHING and the final lookup returns
// whichever row now exists.
func (r *WalletRepository) GetOrCreate(ctx context.Context, params models.GetOrCreateWalletParams) (*models.Wallet, error) {
	if w, err := r.getByKey(ctx, params); err != nil || w != nil {
		return w, err
	}

	insert := fmt.Sprintf(`
		INSERT INTO wallets (tenant_id, wallet_type, customer_id, vendor_id, currency)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
		RETURNING %s`, walletColumns)

	row := r.pool.QueryRow(ctx, insert,
		params.TenantID,
		params.WalletType,
		params.CustomerID,
		params.VendorID,
		params.Currency,
	)
	w, err := r.scan(row)
	if err == pgx.ErrNoRows {
		// Lost the race; the winner's row is there now.
		return r.getByKey(ctx, params)
	}
	return w, err
}

func (r *WalletRepository) getByKey(ctx context.Context, params models.GetOrCreateWalletParams) (*models.Wallet, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM wallets
		WHERE tenant_id = $1
		  AND wallet_type = $2
		  AND customer_id IS NOT DISTINCT FROM $3
		  AND vendor_id IS NOT DISTINCT FROM $4`, walletColumns)

	row := r.pool.QueryRow(ctx, query, params.TenantID, params.WalletType, params.CustomerID, params.VendorID)
	w, err := r.scan(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return w, err
}

// GetByID retrieves a wallet by ID. Returns nil when not found.
func (r *WalletRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return r.get(ctx, r.pool, id, "")
}

// GetForUpdate reads the wallet row with an exclusive row lock,
// serializing concurrent mutations on the same wallet.
func (r *WalletRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Wallet, error) {
	return r.get(ctx, tx, id, " FOR UPDATE")
}

func (r *WalletRepository) get(ctx context.Context, q querier, id uuid.UUID, suffix string) (*models.Wallet, error) {
	query := fmt.Sprintf(`SELECT %s FROM wallets WHERE id = $1%s`, walletColumns, suffix)
	row := q.QueryRow(ctx, query, id)
	w, err := r.scan(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return w, err
}

// UpdateBalances rewrites the cached balance fields inside the
// transaction that justifies the change.
func (r *WalletRepository) UpdateBalances(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance, pending decimal.Decimal) error {
	query := `
		UPDATE wallets
		SET balance = $2, pending_balance = $3, updated_at = NOW()
		WHERE id = $1`

	_, err := tx.Exec(ctx, query, id, balance, pending)
	return err
}

// UpdateStatus updates the wallet status.
func (r *WalletRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.WalletStatus) error {
	query := `
		UPDATE wallets
		SET status = $2, updated_at = NOW()
		WHERE id = $1`

	_, err := tx.Exec(ctx, query, id, status)
	return err
}

func (r *WalletRepository) scan(s scanner) (*models.Wallet, error) {
	var w models.Wallet
	err := s.Scan(
		&w.ID,
		&w.TenantID,
		&w.WalletType,
		&w.CustomerID,
		&w.VendorID,
		&w.Currency,
		&w.Balance,
		&w.PendingBalance,
		&w.Status,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
