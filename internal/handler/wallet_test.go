package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletd/internal/ledger"
	"walletd/internal/models"
)

func newTestRouter(t *testing.T) (chi.Router, *ledger.Engine) {
	t.Helper()
	engine := ledger.NewEngine(ledger.NewMemoryStore(), nil)
	walletHandler := NewWalletHandler(engine, nil, 0)
	transferHandler := NewTransferHandler(engine, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/wallets", walletHandler.Create)
		r.Get("/wallets/{id}", walletHandler.Get)
		r.Put("/wallets/{id}", walletHandler.Update)
		r.Post("/wallets/{id}", walletHandler.Operate)
		r.Get("/wallets/{id}/ledger", walletHandler.Ledger)
		r.Post("/transfers", transferHandler.Create)
	})
	return r, engine
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, data any) *ErrorInfo {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *ErrorInfo      `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	if data != nil && resp.Data != nil {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return resp.Error
}

func createWallet(t *testing.T, r chi.Router, tenantID uuid.UUID) *models.Wallet {
	t.Helper()
	customerID := uuid.New()
	rec := doJSON(t, r, http.MethodPost, "/api/v1/wallets", map[string]any{
		"tenant_id":   tenantID,
		"wallet_type": "CUSTOMER",
		"customer_id": customerID,
		"currency":    "USD",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var wallet models.Wallet
	decodeResponse(t, rec, &wallet)
	return &wallet
}

func creditWallet(t *testing.T, r chi.Router, w *models.Wallet, amount, key string) {
	t.Helper()
	rec := doJSON(t, r, http.MethodPost, "/api/v1/wallets/"+w.ID.String(), map[string]any{
		"tenant_id":       w.TenantID,
		"action":          "credit",
		"amount":          amount,
		"entry_type":      "CREDIT_ORDER_PAYMENT",
		"idempotency_key": key,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCreateWalletEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	tenantID := uuid.New()

	w := createWallet(t, r, tenantID)
	assert.NotEqual(t, uuid.Nil, w.ID)
	assert.Equal(t, tenantID, w.TenantID)
	assert.Equal(t, models.WalletStatusActive, w.Status)
	assert.True(t, w.Balance.IsZero())
}

func TestCreateWalletValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/wallets", map[string]any{
		"tenant_id":   uuid.New(),
		"wallet_type": "SAVINGS",
		"currency":    "USD",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/wallets", map[string]any{
		"tenant_id":   uuid.New(),
		"wallet_type": "PLATFORM",
		"currency":    "DOLLARS",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOperateCreditAndIdempotentReplay(t *testing.T) {
	r, _ := newTestRouter(t)
	w := createWallet(t, r, uuid.New())

	body := map[string]any{
		"tenant_id":       w.TenantID,
		"action":          "credit",
		"amount":          "100.50",
		"idempotency_key": "order-1",
	}

	rec := doJSON(t, r, http.MethodPost, "/api/v1/wallets/"+w.ID.String(), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result ledger.OperationResult
	decodeResponse(t, rec, &result)
	assert.False(t, result.IsDuplicate)
	// entry_type defaults to the adjustment kind when omitted
	assert.Equal(t, models.EntryType("CREDIT_ADJUSTMENT"), result.Entry.EntryType)
	assert.Equal(t, "100.5", result.Wallet.Balance.String())

	rec = doJSON(t, r, http.MethodPost, "/api/v1/wallets/"+w.ID.String(), body)
	require.Equal(t, http.StatusOK, rec.Code)
	var replay ledger.OperationResult
	decodeResponse(t, rec, &replay)
	assert.True(t, replay.IsDuplicate)
	assert.Equal(t, result.Entry.ID, replay.Entry.ID)
}

func TestOperateValidation(t *testing.T) {
	r, _ := newTestRouter(t)
	w := createWallet(t, r, uuid.New())

	cases := []struct {
		name string
		body map[string]any
		code string
	}{
		{
			name: "credit without key",
			body: map[string]any{"tenant_id": w.TenantID, "action": "credit", "amount": "10"},
			code: "BAD_REQUEST",
		},
		{
			name: "unparseable amount",
			body: map[string]any{"tenant_id": w.TenantID, "action": "credit", "amount": "ten", "idempotency_key": "k"},
			code: "BAD_REQUEST",
		},
		{
			name: "debit entry type on credit",
			body: map[string]any{"tenant_id": w.TenantID, "action": "credit", "amount": "10", "entry_type": "DEBIT_PAYOUT", "idempotency_key": "k"},
			code: "INVALID_ENTRY_TYPE",
		},
		{
			name: "negative amount",
			body: map[string]any{"tenant_id": w.TenantID, "action": "credit", "amount": "-10", "idempotency_key": "k"},
			code: "INVALID_AMOUNT",
		},
		{
			name: "unknown action",
			body: map[string]any{"tenant_id": w.TenantID, "action": "void", "amount": "10"},
			code: "BAD_REQUEST",
		},
		{
			name: "hold without hold id",
			body: map[string]any{"tenant_id": w.TenantID, "action": "hold", "amount": "10"},
			code: "BAD_REQUEST",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, r, http.MethodPost, "/api/v1/wallets/"+w.ID.String(), tc.body)
			require.GreaterOrEqual(t, rec.Code, 400, rec.Body.String())
			errInfo := decodeResponse(t, rec, nil)
			require.NotNil(t, errInfo)
			assert.Equal(t, tc.code, errInfo.Code)
		})
	}
}

func TestDebitInsufficientBalanceEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	w := createWallet(t, r, uuid.New())

	rec := doJSON(t, r, http.MethodPost, "/api/v1/wallets/"+w.ID.String(), map[string]any{
		"tenant_id":       w.TenantID,
		"action":          "debit",
		"amount":          "10",
		"idempotency_key": "k1",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errInfo := decodeResponse(t, rec, nil)
	require.NotNil(t, errInfo)
	assert.Equal(t, "INSUFFICIENT_BALANCE", errInfo.Code)
}

func TestHoldLifecycleEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	w := createWallet(t, r, uuid.New())
	creditWallet(t, r, w, "100", "fund-1")

	hold := func(action, amount string) *httptest.ResponseRecorder {
		return doJSON(t, r, http.MethodPost, "/api/v1/wallets/"+w.ID.String(), map[string]any{
			"tenant_id": w.TenantID,
			"action":    action,
			"amount":    amount,
			"hold_id":   "escrow-1",
		})
	}

	rec := hold("hold", "60")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result ledger.OperationResult
	decodeResponse(t, rec, &result)
	assert.Equal(t, "60", result.Wallet.PendingBalance.String())

	rec = hold("hold", "10")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errInfo := decodeResponse(t, rec, nil)
	assert.Equal(t, "DUPLICATE_HOLD", errInfo.Code)

	rec = hold("capture", "70")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errInfo = decodeResponse(t, rec, nil)
	assert.Equal(t, "AMOUNT_EXCEEDS_HOLD", errInfo.Code)

	rec = hold("release", "20")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = hold("capture", "40")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeResponse(t, rec, &result)
	assert.Equal(t, "60", result.Wallet.Balance.String())
	assert.Equal(t, "0", result.Wallet.PendingBalance.String())
}

func TestGetWalletEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	w := createWallet(t, r, uuid.New())
	creditWallet(t, r, w, "25", "fund-1")

	path := fmt.Sprintf("/api/v1/wallets/%s?tenant_id=%s", w.ID, w.TenantID)
	rec := doJSON(t, r, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Wallet
	decodeResponse(t, rec, &got)
	assert.Equal(t, w.ID, got.ID)
	assert.Equal(t, "25", got.Balance.String())

	// wrong tenant is forbidden, not merely missing
	path = fmt.Sprintf("/api/v1/wallets/%s?tenant_id=%s", w.ID, uuid.New())
	rec = doJSON(t, r, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	path = fmt.Sprintf("/api/v1/wallets/%s?tenant_id=%s", uuid.New(), w.TenantID)
	rec = doJSON(t, r, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/v1/wallets/not-a-uuid?tenant_id="+w.TenantID.String(), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetWalletWithLedger(t *testing.T) {
	r, _ := newTestRouter(t)
	w := createWallet(t, r, uuid.New())
	creditWallet(t, r, w, "10", "fund-1")
	creditWallet(t, r, w, "20", "fund-2")

	path := fmt.Sprintf("/api/v1/wallets/%s?tenant_id=%s&include_ledger=true", w.ID, w.TenantID)
	rec := doJSON(t, r, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp WalletWithLedgerResponse
	decodeResponse(t, rec, &resp)
	require.NotNil(t, resp.Wallet)
	require.Len(t, resp.Entries, 2)
	// newest first
	assert.Equal(t, "20", resp.Entries[0].Amount.String())
}

func TestLedgerEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	w := createWallet(t, r, uuid.New())
	for i := 0; i < 3; i++ {
		creditWallet(t, r, w, "10", fmt.Sprintf("fund-%d", i))
	}

	path := fmt.Sprintf("/api/v1/wallets/%s/ledger?tenant_id=%s&limit=2", w.ID, w.TenantID)
	rec := doJSON(t, r, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Entries    []*models.LedgerEntry `json:"entries"`
		NextCursor *uuid.UUID            `json:"next_cursor"`
	}
	decodeResponse(t, rec, &page)
	require.Len(t, page.Entries, 2)
	require.NotNil(t, page.NextCursor)

	path = fmt.Sprintf("/api/v1/wallets/%s/ledger?tenant_id=%s&limit=2&cursor=%s", w.ID, w.TenantID, page.NextCursor)
	rec = doJSON(t, r, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeResponse(t, rec, &page)
	require.Len(t, page.Entries, 1)

	path = fmt.Sprintf("/api/v1/wallets/%s/ledger?tenant_id=%s&entry_type=NOT_A_TYPE", w.ID, w.TenantID)
	rec = doJSON(t, r, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateWalletStatus(t *testing.T) {
	r, _ := newTestRouter(t)
	w := createWallet(t, r, uuid.New())

	frozen := "FROZEN"
	rec := doJSON(t, r, http.MethodPut, "/api/v1/wallets/"+w.ID.String(), map[string]any{
		"tenant_id": w.TenantID,
		"status":    frozen,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got models.Wallet
	decodeResponse(t, rec, &got)
	assert.Equal(t, models.WalletStatusFrozen, got.Status)

	// frozen wallets refuse mutations
	rec = doJSON(t, r, http.MethodPost, "/api/v1/wallets/"+w.ID.String(), map[string]any{
		"tenant_id":       w.TenantID,
		"action":          "credit",
		"amount":          "10",
		"idempotency_key": "k1",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, r, http.MethodPut, "/api/v1/wallets/"+w.ID.String(), map[string]any{
		"tenant_id": w.TenantID,
		"status":    "MELTED",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateWalletRecalculate(t *testing.T) {
	r, _ := newTestRouter(t)
	w := createWallet(t, r, uuid.New())
	creditWallet(t, r, w, "50", "fund-1")

	rec := doJSON(t, r, http.MethodPut, "/api/v1/wallets/"+w.ID.String(), map[string]any{
		"tenant_id":   w.TenantID,
		"recalculate": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result ledger.RecalculationResult
	decodeResponse(t, rec, &result)
	assert.False(t, result.Drifted)
	assert.Equal(t, 1, result.EntryCount)
	assert.Equal(t, "50", result.Balance.String())
}

func TestTransferEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	tenantID := uuid.New()
	a := createWallet(t, r, tenantID)
	b := createWallet(t, r, tenantID)
	creditWallet(t, r, a, "100", "fund-a")

	body := map[string]any{
		"tenant_id":       tenantID,
		"from_wallet_id":  a.ID,
		"to_wallet_id":    b.ID,
		"amount":          "30",
		"idempotency_key": "xfer-1",
	}
	rec := doJSON(t, r, http.MethodPost, "/api/v1/transfers", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result ledger.TransferResult
	decodeResponse(t, rec, &result)
	assert.Equal(t, "70", result.FromWallet.Balance.String())
	assert.Equal(t, "30", result.ToWallet.Balance.String())
	assert.False(t, result.IsDuplicate)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/transfers", body)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeResponse(t, rec, &result)
	assert.True(t, result.IsDuplicate)
}

func TestTransferEndpointValidation(t *testing.T) {
	r, _ := newTestRouter(t)
	tenantID := uuid.New()
	a := createWallet(t, r, tenantID)
	b := createWallet(t, r, tenantID)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/transfers", map[string]any{
		"tenant_id":      tenantID,
		"from_wallet_id": a.ID,
		"to_wallet_id":   b.ID,
		"amount":         "30",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/transfers", map[string]any{
		"tenant_id":       tenantID,
		"from_wallet_id":  a.ID,
		"to_wallet_id":    a.ID,
		"amount":          "30",
		"idempotency_key": "k",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// insufficient funds surfaces as a domain error, not a 400
	rec = doJSON(t, r, http.MethodPost, "/api/v1/transfers", map[string]any{
		"tenant_id":       tenantID,
		"from_wallet_id":  a.ID,
		"to_wallet_id":    b.ID,
		"amount":          "30",
		"idempotency_key": "k",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errInfo := decodeResponse(t, rec, nil)
	assert.Equal(t, "INSUFFICIENT_BALANCE", errInfo.Code)
}
