package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"walletd/internal/ledger"
)

// Response represents a standard API response.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo represents error details.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON writes a JSON response.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	json.NewEncoder(w).Encode(resp)
}

// Error writes an error response.
func Error(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}

	json.NewEncoder(w).Encode(resp)
}

// Common error responses
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, "NOT_FOUND", message)
}

func Forbidden(w http.ResponseWriter, message string) {
	Error(w, http.StatusForbidden, "FORBIDDEN", message)
}

func Conflict(w http.ResponseWriter, message string) {
	Error(w, http.StatusConflict, "CONFLICT", message)
}

func InternalError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

func TooManyRequests(w http.ResponseWriter, message string) {
	Error(w, http.StatusTooManyRequests, "RATE_LIMITED", message)
}

// domainStatus maps a ledger failure to its HTTP status and code.
var domainStatus = []struct {
	err    error
	status int
	code   string
}{
	{ledger.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
	{ledger.ErrInvalidEntryType, http.StatusBadRequest, "INVALID_ENTRY_TYPE"},
	{ledger.ErrMissingKey, http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY"},
	{ledger.ErrWalletNotFound, http.StatusNotFound, "WALLET_NOT_FOUND"},
	{ledger.ErrHoldNotFound, http.StatusNotFound, "HOLD_NOT_FOUND"},
	{ledger.ErrTenantMismatch, http.StatusForbidden, "TENANT_MISMATCH"},
	{ledger.ErrWalletNotActive, http.StatusConflict, "WALLET_NOT_ACTIVE"},
	{ledger.ErrInsufficientBalance, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE"},
	{ledger.ErrDuplicateHold, http.StatusUnprocessableEntity, "DUPLICATE_HOLD"},
	{ledger.ErrAmountExceedsHold, http.StatusUnprocessableEntity, "AMOUNT_EXCEEDS_HOLD"},
	{ledger.ErrCurrencyMismatch, http.StatusUnprocessableEntity, "CURRENCY_MISMATCH"},
}

// DomainError writes the structured error for a ledger failure.
func DomainError(w http.ResponseWriter, err error) {
	for _, m := range domainStatus {
		if errors.Is(err, m.err) {
			Error(w, m.status, m.code, err.Error())
			return
		}
	}
	InternalError(w, "operation failed")
}
