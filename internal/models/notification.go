package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification event kinds written by the notify worker.
const (
	NotifyDepositCompleted = "deposit_completed"
	NotifyRefundIssued     = "refund_issued"
)

type Notification struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	Event     string    `json:"event"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
