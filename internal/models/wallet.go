package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultCurrency is the platform currency code. Amounts are stored as
// integer piasters (1/100 EGP) to keep ledger arithmetic exact.
const DefaultCurrency = "EGP"

// Wallet transaction types. Admin adjustments are recorded as deposit or
// debit rows with ReferenceType set to ReferenceAdminAdjustment.
const (
	TxTypeDeposit = "deposit"
	TxTypeDebit   = "debit"
	TxTypeRefund  = "refund"
)

// Wallet transaction reference types.
const (
	ReferenceLeadUnlock      = "lead_unlock"
	ReferenceAdminAdjustment = "admin_adjustment"
)

// Wallet is a provider's stored balance. Mutated only through the ledger
// service; every mutation appends a WalletTransaction row.
type Wallet struct {
	ID           uuid.UUID `json:"id"`
	ProviderID   uuid.UUID `json:"provider_id"`
	BalanceCents int64     `json:"balance_cents"`
	Currency     string    `json:"currency"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// WalletTransaction is an immutable ledger entry. AmountCents is the
// unsigned magnitude; the sign of the balance change follows TxType.
type WalletTransaction struct {
	ID                 uuid.UUID  `json:"id"`
	WalletID           uuid.UUID  `json:"wallet_id"`
	TxType             string     `json:"tx_type"`
	AmountCents        int64      `json:"amount_cents"`
	BalanceBeforeCents int64      `json:"balance_before_cents"`
	BalanceAfterCents  int64      `json:"balance_after_cents"`
	Description        string     `json:"description,omitempty"`
	ReferenceType      *string    `json:"reference_type,omitempty"`
	ReferenceID        *uuid.UUID `json:"reference_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// SignedDelta returns the balance change this entry applied.
func (t *WalletTransaction) SignedDelta() int64 {
	if t.TxType == TxTypeDebit {
		return -t.AmountCents
	}
	return t.AmountCents
}
