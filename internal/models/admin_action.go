package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Admin audit action types.
const (
	AdminActionWalletAdjust = "wallet_adjust"
	AdminActionUnlockRefund = "unlock_refund"
)

// AdminAction is the audit-log row the admin surface writes alongside a
// ledger mutation. Detail carries the transaction id and before/after
// balances returned by the ledger.
type AdminAction struct {
	ID         uuid.UUID       `json:"id"`
	AdminID    uuid.UUID       `json:"admin_id"`
	ActionType string          `json:"action_type"`
	TargetType string          `json:"target_type"`
	TargetID   uuid.UUID       `json:"target_id"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
