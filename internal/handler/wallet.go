package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"walletd/internal/cache"
	"walletd/internal/ledger"
	"walletd/internal/models"
)

// WalletHandler handles wallet endpoints.
type WalletHandler struct {
	engine      *ledger.Engine
	cacheClient *cache.Client
	snapshotTTL time.Duration
}

// NewWalletHandler creates a new wallet handler. cacheClient may be nil.
func NewWalletHandler(engine *ledger.Engine, cacheClient *cache.Client, snapshotTTL time.Duration) *WalletHandler {
	return &WalletHandler{
		engine:      engine,
		cacheClient: cacheClient,
		snapshotTTL: snapshotTTL,
	}
}

// CreateWalletRequest represents a get-or-create wallet request.
type CreateWalletRequest struct {
	TenantID   uuid.UUID  `json:"tenant_id"`
	WalletType string     `json:"wallet_type"`
	CustomerID *uuid.UUID `json:"customer_id,omitempty"`
	VendorID   *uuid.UUID `json:"vendor_id,omitempty"`
	Currency   string     `json:"currency"`
}

// Create returns the wallet identified by (tenant, type, owner),
// creating it on first use.
// POST /api/v1/wallets
func (h *WalletHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.TenantID == uuid.Nil {
		BadRequest(w, "tenant_id is required")
		return
	}
	if !models.WalletType(req.WalletType).Valid() {
		BadRequest(w, "wallet_type must be CUSTOMER, VENDOR or PLATFORM")
		return
	}
	if len(req.Currency) != 3 {
		BadRequest(w, "currency must be a 3-letter ISO code")
		return
	}

	wallet, err := h.engine.GetOrCreateWallet(r.Context(), models.GetOrCreateWalletParams{
		TenantID:   req.TenantID,
		WalletType: models.WalletType(req.WalletType),
		CustomerID: req.CustomerID,
		VendorID:   req.VendorID,
		Currency:   req.Currency,
	})
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	JSON(w, http.StatusOK, wallet)
}

// WalletWithLedgerResponse is a wallet plus recent ledger history.
type WalletWithLedgerResponse struct {
	Wallet  *models.Wallet        `json:"wallet"`
	Entries []*models.LedgerEntry `json:"entries"`
}

// Get returns a wallet snapshot, optionally with recent ledger entries.
// GET /api/v1/wallets/{id}?tenant_id=&include_ledger=&ledger_limit=
func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, tenantID, ok := h.walletAndTenant(w, r)
	if !ok {
		return
	}

	includeLedger := r.URL.Query().Get("include_ledger") == "true"

	if !includeLedger {
		if body, err := h.cacheClient.GetWalletSnapshot(r.Context(), id.String()); err == nil && body != nil {
			var wallet models.Wallet
			if json.Unmarshal(body, &wallet) == nil && wallet.TenantID == tenantID {
				JSON(w, http.StatusOK, &wallet)
				return
			}
		}
	}

	wallet, err := h.engine.GetWallet(r.Context(), tenantID, id)
	if err != nil {
		DomainError(w, err)
		return
	}

	if !includeLedger {
		if body, err := json.Marshal(wallet); err == nil {
			_ = h.cacheClient.SetWalletSnapshot(r.Context(), id.String(), body, h.snapshotTTL)
		}
		JSON(w, http.StatusOK, wallet)
		return
	}

	limit := 20
	if s := r.URL.Query().Get("ledger_limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	wallet, entries, err := h.engine.GetWalletWithLedger(r.Context(), tenantID, id, limit)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, WalletWithLedgerResponse{Wallet: wallet, Entries: entries})
}

// UpdateWalletRequest either transitions the wallet status or triggers
// reconciliation.
type UpdateWalletRequest struct {
	TenantID    uuid.UUID `json:"tenant_id"`
	Status      *string   `json:"status,omitempty"`
	Recalculate bool      `json:"recalculate,omitempty"`
}

// Update transitions the wallet status or replays the ledger.
// PUT /api/v1/wallets/{id}
func (h *WalletHandler) Update(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		BadRequest(w, "invalid wallet ID")
		return
	}

	var req UpdateWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.TenantID == uuid.Nil {
		BadRequest(w, "tenant_id is required")
		return
	}

	switch {
	case req.Recalculate:
		result, err := h.engine.Recalculate(r.Context(), req.TenantID, id)
		if err != nil {
			DomainError(w, err)
			return
		}
		h.invalidate(r, id)
		JSON(w, http.StatusOK, result)

	case req.Status != nil:
		status := models.WalletStatus(*req.Status)
		if !status.Valid() {
			BadRequest(w, "status must be ACTIVE, FROZEN, SUSPENDED or CLOSED")
			return
		}
		wallet, err := h.engine.SetStatus(r.Context(), req.TenantID, id, status)
		if err != nil {
			DomainError(w, err)
			return
		}
		h.invalidate(r, id)
		JSON(w, http.StatusOK, wallet)

	default:
		BadRequest(w, "either status or recalculate is required")
	}
}

// WalletActionRequest dispatches to a balance operation.
type WalletActionRequest struct {
	TenantID       uuid.UUID       `json:"tenant_id"`
	Action         string          `json:"action"`
	Amount         string          `json:"amount"`
	EntryType      string          `json:"entry_type,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	HoldID         string          `json:"hold_id,omitempty"`
	Description    *string         `json:"description,omitempty"`
	ReferenceType  *string         `json:"reference_type,omitempty"`
	ReferenceID    *string         `json:"reference_id,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedBy      *string         `json:"created_by,omitempty"`
}

// Operate dispatches credit/debit/hold/release/capture.
// POST /api/v1/wallets/{id}
func (h *WalletHandler) Operate(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		BadRequest(w, "invalid wallet ID")
		return
	}

	var req WalletActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.TenantID == uuid.Nil {
		BadRequest(w, "tenant_id is required")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		BadRequest(w, "invalid amount")
		return
	}

	meta := models.EntryMeta{
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Description:   req.Description,
		Metadata:      req.Metadata,
		CreatedBy:     req.CreatedBy,
	}

	var result *ledger.OperationResult
	switch req.Action {
	case "credit":
		if req.IdempotencyKey == "" {
			BadRequest(w, "idempotency_key is required for credit")
			return
		}
		entryType := models.CreditAdjustment
		if req.EntryType != "" {
			parsed, ok := models.ParseCreditType(req.EntryType)
			if !ok {
				DomainError(w, ledger.ErrInvalidEntryType)
				return
			}
			entryType = parsed
		}
		result, err = h.engine.Credit(r.Context(), ledger.CreditParams{
			TenantID:       req.TenantID,
			WalletID:       id,
			Amount:         amount,
			EntryType:      entryType,
			IdempotencyKey: req.IdempotencyKey,
			Meta:           meta,
		})

	case "debit":
		if req.IdempotencyKey == "" {
			BadRequest(w, "idempotency_key is required for debit")
			return
		}
		entryType := models.DebitAdjustment
		if req.EntryType != "" {
			parsed, ok := models.ParseDebitType(req.EntryType)
			if !ok {
				DomainError(w, ledger.ErrInvalidEntryType)
				return
			}
			entryType = parsed
		}
		result, err = h.engine.Debit(r.Context(), ledger.DebitParams{
			TenantID:       req.TenantID,
			WalletID:       id,
			Amount:         amount,
			EntryType:      entryType,
			IdempotencyKey: req.IdempotencyKey,
			Meta:           meta,
		})

	case "hold", "release", "capture":
		if req.HoldID == "" {
			BadRequest(w, "hold_id is required for "+req.Action)
			return
		}
		params := ledger.HoldParams{
			TenantID:       req.TenantID,
			WalletID:       id,
			Amount:         amount,
			HoldID:         req.HoldID,
			IdempotencyKey: req.IdempotencyKey,
			Meta:           meta,
		}
		switch req.Action {
		case "hold":
			result, err = h.engine.CreateHold(r.Context(), params)
		case "release":
			result, err = h.engine.ReleaseHold(r.Context(), params)
		case "capture":
			result, err = h.engine.CaptureHold(r.Context(), params)
		}

	default:
		BadRequest(w, "unknown action: "+req.Action)
		return
	}

	if err != nil {
		DomainError(w, err)
		return
	}

	h.invalidate(r, id)
	JSON(w, http.StatusOK, result)
}

// Ledger returns the wallet's paginated ledger history.
// GET /api/v1/wallets/{id}/ledger?tenant_id=&entry_type=&limit=&cursor=
func (h *WalletHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	id, tenantID, ok := h.walletAndTenant(w, r)
	if !ok {
		return
	}

	filter := models.LedgerFilter{Limit: 50}
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			filter.Limit = n
		}
	}
	if s := r.URL.Query().Get("entry_type"); s != "" {
		entryType := models.EntryType(s)
		if !entryType.Valid() {
			BadRequest(w, "unknown entry_type")
			return
		}
		filter.EntryType = &entryType
	}
	if s := r.URL.Query().Get("cursor"); s != "" {
		cursor, err := uuid.Parse(s)
		if err != nil {
			BadRequest(w, "invalid cursor")
			return
		}
		filter.Cursor = &cursor
	}

	entries, err := h.engine.ListEntries(r.Context(), tenantID, id, filter)
	if err != nil {
		DomainError(w, err)
		return
	}

	var nextCursor *uuid.UUID
	if len(entries) == filter.Limit {
		nextCursor = &entries[len(entries)-1].ID
	}
	JSON(w, http.StatusOK, map[string]any{
		"entries":     entries,
		"next_cursor": nextCursor,
	})
}

func (h *WalletHandler) walletAndTenant(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		BadRequest(w, "invalid wallet ID")
		return uuid.Nil, uuid.Nil, false
	}

	tenantStr := r.URL.Query().Get("tenant_id")
	if tenantStr == "" {
		BadRequest(w, "tenant_id is required")
		return uuid.Nil, uuid.Nil, false
	}
	tenantID, err := uuid.Parse(tenantStr)
	if err != nil {
		BadRequest(w, "invalid tenant_id")
		return uuid.Nil, uuid.Nil, false
	}
	return id, tenantID, true
}

func (h *WalletHandler) invalidate(r *http.Request, id uuid.UUID) {
	_ = h.cacheClient.InvalidateWallet(r.Context(), id.String())
}
