package models

import (
	"time"

	"github.com/google/uuid"
)

// Service request statuses.
const (
	RequestStatusOpen   = "open"
	RequestStatusClosed = "closed"
)

// ServiceRequest is a client's posted job. The ledger core reads
// UnlockFeeCents and writes LeadUnlock rows against it; TotalUnlocks is
// recomputed by a background job, never by the unlock transaction itself.
type ServiceRequest struct {
	ID             uuid.UUID `json:"id"`
	ClientID       uuid.UUID `json:"client_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	City           string    `json:"city,omitempty"`
	ContactName    string    `json:"contact_name,omitempty"`
	ContactPhone   string    `json:"contact_phone,omitempty"`
	ContactEmail   string    `json:"contact_email,omitempty"`
	UnlockFeeCents int64     `json:"unlock_fee_cents"`
	Status         string    `json:"status"`
	TotalUnlocks   int       `json:"total_unlocks"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
