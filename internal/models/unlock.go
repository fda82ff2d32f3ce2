package models

import (
	"time"

	"github.com/google/uuid"
)

// Lead unlock statuses. A partial unique index on
// (request_id, provider_id) WHERE status = 'completed' is the storage
// backstop against double-charging the same provider for one request.
const (
	UnlockStatusCompleted = "completed"
	UnlockStatusRefunded  = "refunded"
)

// LeadUnlock records a provider's paid access to one request's contact
// details, linked to the debit transaction that paid for it.
type LeadUnlock struct {
	ID                  uuid.UUID  `json:"id"`
	RequestID           uuid.UUID  `json:"request_id"`
	ProviderID          uuid.UUID  `json:"provider_id"`
	UnlockFeeCents      int64      `json:"unlock_fee_cents"`
	Status              string     `json:"status"`
	WalletTransactionID uuid.UUID  `json:"wallet_transaction_id"`
	RefundTransactionID *uuid.UUID `json:"refund_transaction_id,omitempty"`
	UnlockedAt          time.Time  `json:"unlocked_at"`
	RefundedAt          *time.Time `json:"refunded_at,omitempty"`
}
