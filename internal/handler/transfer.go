package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"walletd/internal/cache"
	"walletd/internal/ledger"
)

// TransferHandler handles fund transfer endpoints.
type TransferHandler struct {
	engine      *ledger.Engine
	cacheClient *cache.Client
}

// NewTransferHandler creates a new transfer handler. cacheClient may be nil.
func NewTransferHandler(engine *ledger.Engine, cacheClient *cache.Client) *TransferHandler {
	return &TransferHandler{engine: engine, cacheClient: cacheClient}
}

// CreateTransferRequest represents a transfer creation request.
type CreateTransferRequest struct {
	TenantID       uuid.UUID `json:"tenant_id"`
	FromWalletID   uuid.UUID `json:"from_wallet_id"`
	ToWalletID     uuid.UUID `json:"to_wallet_id"`
	Amount         string    `json:"amount"`
	IdempotencyKey string    `json:"idempotency_key"`
	Description    *string   `json:"description,omitempty"`
	CreatedBy      *string   `json:"created_by,omitempty"`
}

// Create moves funds between two wallets atomically.
// POST /api/v1/transfers
func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.TenantID == uuid.Nil {
		BadRequest(w, "tenant_id is required")
		return
	}
	if req.FromWalletID == uuid.Nil || req.ToWalletID == uuid.Nil {
		BadRequest(w, "from_wallet_id and to_wallet_id are required")
		return
	}
	if req.FromWalletID == req.ToWalletID {
		BadRequest(w, "from_wallet_id and to_wallet_id must differ")
		return
	}
	if req.IdempotencyKey == "" {
		BadRequest(w, "idempotency_key is required")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		BadRequest(w, "invalid amount")
		return
	}

	result, err := h.engine.Transfer(r.Context(), ledger.TransferParams{
		TenantID:       req.TenantID,
		FromWalletID:   req.FromWalletID,
		ToWalletID:     req.ToWalletID,
		Amount:         amount,
		IdempotencyKey: req.IdempotencyKey,
		Description:    req.Description,
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		DomainError(w, err)
		return
	}

	_ = h.cacheClient.InvalidateWallet(r.Context(), req.FromWalletID.String())
	_ = h.cacheClient.InvalidateWallet(r.Context(), req.ToWalletID.String())

	JSON(w, http.StatusOK, result)
}
