package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"walletd/internal/ledger"
	"walletd/internal/models"
)

const entryColumns = `id, wallet_id, entry_type, amount, currency, idempotency_key, hold_id,
	balance_after, pending_balance_after, available_balance_after,
	reference_type, reference_id, description, metadata, created_by, created_at`

// EntryRepository handles ledger entry data access. The table is
// append-only: this repository issues no UPDATE or DELETE.
type EntryRepository struct {
	pool *pgxpool.Pool
}

// NewEntryRepository creates a new ledger entry repository.
func NewEntryRepository(pool *pgxpool.Pool) *EntryRepository {
	return &EntryRepository{pool: pool}
}

// Insert appends a ledger entry. The unique index on
// (wallet_id, idempotency_key) settles idempotency races at the
// storage layer: losing the insert returns ledger.ErrDuplicateEntry
// without poisoning the enclosing transaction.
func (r *EntryRepository) Insert(ctx context.Context, tx pgx.Tx, params models.NewEntryParams) (*models.LedgerEntry, error) {
	metadata := params.Meta.Metadata
	if metadata == nil {
		metadata = []byte("{}")
	}

	query := fmt.Sprintf(`
		INSERT INTO wallet_ledger_entries (
			wallet_id, entry_type, amount, currency, idempotency_key, hold_id,
			balance_after, pending_balance_after, available_balance_after,
			reference_type, reference_id, description, metadata, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (wallet_id, idempotency_key) DO NOTHING
		RETURNING %s`, entryColumns)

	row := tx.QueryRow(ctx, query,
		params.WalletID,
		params.EntryType,
		params.Amount,
		params.Currency,
		params.IdempotencyKey,
		params.HoldID,
		params.BalanceAfter,
		params.PendingBalanceAfter,
		params.AvailableBalanceAfter,
		params.Meta.ReferenceType,
		params.Meta.ReferenceID,
		params.Meta.Description,
		metadata,
		params.Meta.CreatedBy,
	)
	entry, err := r.scan(row)
	if err == pgx.ErrNoRows {
		return nil, ledger.ErrDuplicateEntry
	}
	return entry, err
}

// GetByIdempotencyKey retrieves the entry carrying the key on this
// wallet. Returns nil when no such entry exists.
func (r *EntryRepository) GetByIdempotencyKey(ctx context.Context, q querier, walletID uuid.UUID, key string) (*models.LedgerEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM wallet_ledger_entries
		WHERE wallet_id = $1 AND idempotency_key = $2`, entryColumns)

	row := q.QueryRow(ctx, query, walletID, key)
	entry, err := r.scan(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return entry, err
}

// ListByWallet reads the wallet's ledger newest first with an optional
// type filter and keyset cursor.
func (r *EntryRepository) ListByWallet(ctx context.Context, walletID uuid.UUID, filter models.LedgerFilter) ([]*models.LedgerEntry, error) {
	var conditions []string
	var args []any
	argNum := 1

	conditions = append(conditions, fmt.Sprintf("wallet_id = $%d", argNum))
	args = append(args, walletID)
	argNum++

	if filter.EntryType != nil {
		conditions = append(conditions, fmt.Sprintf("entry_type = $%d", argNum))
		args = append(args, *filter.EntryType)
		argNum++
	}

	if filter.Cursor != nil {
		conditions = append(conditions, fmt.Sprintf(
			"(created_at, id) < (SELECT created_at, id FROM wallet_ledger_entries WHERE id = $%d)", argNum))
		args = append(args, *filter.Cursor)
		argNum++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM wallet_ledger_entries
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d`,
		entryColumns,
		strings.Join(conditions, " AND "),
		argNum,
	)
	args = append(args, limit)

	return r.scanMany(ctx, query, args...)
}

// AllByWallet reads the full ledger in creation order, for replay.
func (r *EntryRepository) AllByWallet(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) ([]*models.LedgerEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM wallet_ledger_entries
		WHERE wallet_id = $1
		ORDER BY created_at ASC, id ASC`, entryColumns)

	rows, err := tx.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

// HoldState aggregates the hold lifecycle entries sharing holdID.
func (r *EntryRepository) HoldState(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, holdID string) (*ledger.HoldState, error) {
	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'HOLD_CREATED'), 0),
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'HOLD_RELEASED'), 0),
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'HOLD_CAPTURED'), 0)
		FROM wallet_ledger_entries
		WHERE wallet_id = $1 AND hold_id = $2`

	var held, released, captured decimal.Decimal
	if err := tx.QueryRow(ctx, query, walletID, holdID).Scan(&held, &released, &captured); err != nil {
		return nil, fmt.Errorf("aggregate hold state: %w", err)
	}
	return &ledger.HoldState{Held: held, Released: released, Captured: captured}, nil
}

func (r *EntryRepository) scanMany(ctx context.Context, query string, args ...any) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *EntryRepository) collect(rows pgx.Rows) ([]*models.LedgerEntry, error) {
	var entries []*models.LedgerEntry
	for rows.Next() {
		entry, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *EntryRepository) scan(s scanner) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := s.Scan(
		&e.ID,
		&e.WalletID,
		&e.EntryType,
		&e.Amount,
		&e.Currency,
		&e.IdempotencyKey,
		&e.HoldID,
		&e.BalanceAfter,
		&e.PendingBalanceAfter,
		&e.AvailableBalanceAfter,
		&e.ReferenceType,
		&e.ReferenceID,
		&e.Description,
		&e.Metadata,
		&e.CreatedBy,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
