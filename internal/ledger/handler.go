package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/khidma/backend/internal/middleware"
	"github.com/khidma/backend/internal/models"
	"github.com/khidma/backend/internal/money"
)

// WalletDirectory resolves (and lazily creates) a provider's wallet.
type WalletDirectory interface {
	GetOrCreateByProvider(ctx context.Context, providerID uuid.UUID) (*models.Wallet, error)
}

// TransactionLister reads a wallet's ledger history.
type TransactionLister interface {
	ListByWalletID(ctx context.Context, walletID uuid.UUID, limit int) ([]*models.WalletTransaction, error)
}

// Handler serves the provider wallet dashboard: balance, deposits and
// transaction history.
type Handler struct {
	svc          Service
	wallets      WalletDirectory
	transactions TransactionLister
	log          *slog.Logger
}

func NewHandler(svc Service, wallets WalletDirectory, transactions TransactionLister, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, wallets: wallets, transactions: transactions, log: log}
}

type walletResponse struct {
	ID       string `json:"id"`
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
}

type transactionResponse struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	Amount        string  `json:"amount"`
	BalanceBefore string  `json:"balance_before"`
	BalanceAfter  string  `json:"balance_after"`
	Description   string  `json:"description,omitempty"`
	ReferenceType *string `json:"reference_type,omitempty"`
	ReferenceID   *string `json:"reference_id,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// GetWallet handles GET /api/v1/wallet.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.providerWallet(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, walletToResponse(wallet))
}

type depositRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// Deposit handles POST /api/v1/wallet/deposit. Amount is a major-unit
// decimal string ("50.00").
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.providerWallet(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	cents, err := money.ParseCents(req.Amount)
	if err != nil || cents <= 0 {
		http.Error(w, "amount must be a positive decimal like \"50.00\"", http.StatusBadRequest)
		return
	}
	desc := req.Description
	if desc == "" {
		desc = "wallet top-up"
	}
	txn, err := h.svc.Deposit(r.Context(), wallet.ID, cents, desc)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			http.Error(w, "amount must be positive", http.StatusBadRequest)
		case errors.Is(err, ErrWalletNotFound):
			http.Error(w, "wallet not found", http.StatusNotFound)
		default:
			h.log.Error("deposit failed", "wallet_id", wallet.ID, "error", err)
			http.Error(w, "deposit failed", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, txnToResponse(txn))
}

// ListTransactions handles GET /api/v1/wallet/transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.providerWallet(w, r)
	if !ok {
		return
	}
	list, err := h.transactions.ListByWalletID(r.Context(), wallet.ID, 50)
	if err != nil {
		h.log.Error("list transactions failed", "wallet_id", wallet.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	resp := make([]transactionResponse, 0, len(list))
	for _, t := range list {
		resp = append(resp, txnToResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// providerWallet authenticates the caller as a provider and resolves
// their wallet, writing the error response itself on failure.
func (h *Handler) providerWallet(w http.ResponseWriter, r *http.Request) (*models.Wallet, bool) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	if user.Role != models.RoleProvider {
		http.Error(w, "only providers have wallets", http.StatusForbidden)
		return nil, false
	}
	wallet, err := h.wallets.GetOrCreateByProvider(r.Context(), user.ID)
	if err != nil {
		h.log.Error("resolve wallet failed", "provider_id", user.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	return wallet, true
}

func walletToResponse(w *models.Wallet) walletResponse {
	return walletResponse{
		ID:       w.ID.String(),
		Balance:  money.FormatCents(w.BalanceCents),
		Currency: w.Currency,
	}
}

func txnToResponse(t *models.WalletTransaction) transactionResponse {
	resp := transactionResponse{
		ID:            t.ID.String(),
		Type:          t.TxType,
		Amount:        money.FormatCents(t.AmountCents),
		BalanceBefore: money.FormatCents(t.BalanceBeforeCents),
		BalanceAfter:  money.FormatCents(t.BalanceAfterCents),
		Description:   t.Description,
		ReferenceType: t.ReferenceType,
		CreatedAt:     t.CreatedAt.UTC().Format(time.RFC3339),
	}
	if t.ReferenceID != nil {
		id := t.ReferenceID.String()
		resp.ReferenceID = &id
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
