// Package notify holds the background jobs that run after a wallet
// mutation commits: writing notification rows and recomputing the
// denormalized unlock counter. Jobs are enqueued transactionally with the
// money movement but their outcome never affects it.
package notify

import (
	"github.com/google/uuid"
)

// WalletEventArgs notifies an account about a completed deposit or refund.
type WalletEventArgs struct {
	AccountID   uuid.UUID `json:"account_id"`
	Event       string    `json:"event"`
	AmountCents int64     `json:"amount_cents"`
	Body        string    `json:"body"`
}

func (WalletEventArgs) Kind() string { return "wallet_event" }

// RecountUnlocksArgs recomputes requests.total_unlocks after an unlock or
// refund changed the lead_unlocks table.
type RecountUnlocksArgs struct {
	RequestID uuid.UUID `json:"request_id"`
}

func (RecountUnlocksArgs) Kind() string { return "recount_unlocks" }
