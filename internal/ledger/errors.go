package ledger

import "errors"

// Request-level failures surfaced to callers. None of these crash the
// process; any of them rolls back the whole transaction.
var (
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInvalidEntryType    = errors.New("entry type does not match operation direction")
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletNotActive     = errors.New("wallet is not active")
	ErrHoldNotFound        = errors.New("no active hold for this hold id")
	ErrDuplicateHold       = errors.New("hold id already used on this wallet")
	ErrAmountExceedsHold   = errors.New("amount exceeds remaining held amount")
	ErrTenantMismatch      = errors.New("wallet belongs to a different tenant")
	ErrCurrencyMismatch    = errors.New("wallet currencies do not match")
	ErrMissingKey          = errors.New("idempotency key is required")
)

// ErrDuplicateEntry is returned by Tx.InsertEntry when the
// (wallet_id, idempotency_key) pair already exists. It is an internal
// signal, not a caller-visible failure: the engine resolves it to a
// successful response with IsDuplicate set.
var ErrDuplicateEntry = errors.New("duplicate idempotency key")
