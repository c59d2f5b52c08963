package models

// WalletType represents who owns a wallet.
type WalletType string

const (
	WalletTypeCustomer WalletType = "CUSTOMER"
	WalletTypeVendor   WalletType = "VENDOR"
	WalletTypePlatform WalletType = "PLATFORM"
)

// Valid reports whether the wallet type is a known value.
func (t WalletType) Valid() bool {
	switch t {
	case WalletTypeCustomer, WalletTypeVendor, WalletTypePlatform:
		return true
	default:
		return false
	}
}

// WalletStatus represents the lifecycle status of a wallet.
type WalletStatus string

const (
	WalletStatusActive    WalletStatus = "ACTIVE"
	WalletStatusFrozen    WalletStatus = "FROZEN"
	WalletStatusSuspended WalletStatus = "SUSPENDED"
	WalletStatusClosed    WalletStatus = "CLOSED"
)

// Valid reports whether the status is a known value.
func (s WalletStatus) Valid() bool {
	switch s {
	case WalletStatusActive, WalletStatusFrozen, WalletStatusSuspended, WalletStatusClosed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further status transitions are allowed.
func (s WalletStatus) IsTerminal() bool {
	return s == WalletStatusClosed
}

// EntryType is the stored classification of a ledger entry. Engine
// operations never take a bare EntryType: credits take a CreditType,
// debits a DebitType, and the hold lifecycle uses the fixed hold entry
// values, so a credit carrying a debit classification is unrepresentable.
type EntryType string

// CreditType is an entry type that increases the wallet balance.
type CreditType string

const (
	CreditOrderPayment     CreditType = "CREDIT_ORDER_PAYMENT"
	CreditSaleProceeds     CreditType = "CREDIT_SALE_PROCEEDS"
	CreditRefund           CreditType = "CREDIT_REFUND"
	CreditTransferIn       CreditType = "CREDIT_TRANSFER_IN"
	CreditPayoutReversal   CreditType = "CREDIT_PAYOUT_REVERSAL"
	CreditVendorCommission CreditType = "CREDIT_VENDOR_COMMISSION"
	CreditAdjustment       CreditType = "CREDIT_ADJUSTMENT"
)

// DebitType is an entry type that decreases the wallet balance.
type DebitType string

const (
	DebitOrderRefund DebitType = "DEBIT_ORDER_REFUND"
	DebitPlatformFee DebitType = "DEBIT_PLATFORM_FEE"
	DebitPayout      DebitType = "DEBIT_PAYOUT"
	DebitChargeback  DebitType = "DEBIT_CHARGEBACK"
	DebitTransferOut DebitType = "DEBIT_TRANSFER_OUT"
	DebitAdjustment  DebitType = "DEBIT_ADJUSTMENT"
)

// Hold lifecycle entry types. Holds move funds between balance and
// pending balance rather than straight in or out of the wallet.
const (
	EntryHoldCreated  EntryType = "HOLD_CREATED"
	EntryHoldReleased EntryType = "HOLD_RELEASED"
	EntryHoldCaptured EntryType = "HOLD_CAPTURED"
)

var creditTypes = map[CreditType]struct{}{
	CreditOrderPayment:     {},
	CreditSaleProceeds:     {},
	CreditRefund:           {},
	CreditTransferIn:       {},
	CreditPayoutReversal:   {},
	CreditVendorCommission: {},
	CreditAdjustment:       {},
}

var debitTypes = map[DebitType]struct{}{
	DebitOrderRefund: {},
	DebitPlatformFee: {},
	DebitPayout:      {},
	DebitChargeback:  {},
	DebitTransferOut: {},
	DebitAdjustment:  {},
}

// Valid reports whether the credit type is a known value.
func (c CreditType) Valid() bool {
	_, ok := creditTypes[c]
	return ok
}

// EntryType returns the stored entry type for the credit kind.
func (c CreditType) EntryType() EntryType {
	return EntryType(c)
}

// Valid reports whether the debit type is a known value.
func (d DebitType) Valid() bool {
	_, ok := debitTypes[d]
	return ok
}

// EntryType returns the stored entry type for the debit kind.
func (d DebitType) EntryType() EntryType {
	return EntryType(d)
}

// ParseCreditType parses an entry type string as a credit kind.
func ParseCreditType(s string) (CreditType, bool) {
	c := CreditType(s)
	return c, c.Valid()
}

// ParseDebitType parses an entry type string as a debit kind.
func ParseDebitType(s string) (DebitType, bool) {
	d := DebitType(s)
	return d, d.Valid()
}

// IsCredit reports whether the entry increases the balance.
func (t EntryType) IsCredit() bool {
	return CreditType(t).Valid()
}

// IsDebit reports whether the entry decreases the balance.
func (t EntryType) IsDebit() bool {
	return DebitType(t).Valid()
}

// IsHold reports whether the entry belongs to the hold lifecycle.
func (t EntryType) IsHold() bool {
	return t == EntryHoldCreated || t == EntryHoldReleased || t == EntryHoldCaptured
}

// Valid reports whether the entry type belongs to the closed set.
func (t EntryType) Valid() bool {
	return t.IsCredit() || t.IsDebit() || t.IsHold()
}
