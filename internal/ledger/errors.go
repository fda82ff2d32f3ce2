package ledger

import "errors"

// Ledger errors are recoverable, caller-visible conditions. Handlers map
// them to HTTP statuses; none should be swallowed, each represents a
// financial-integrity condition.
var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrReasonRequired      = errors.New("adjustment reason is required")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrUnlockNotFound      = errors.New("unlock not found or already refunded")
	ErrConflict            = errors.New("concurrent wallet mutation detected")
)
