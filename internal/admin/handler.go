package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/khidma/backend/internal/ledger"
	"github.com/khidma/backend/internal/middleware"
	"github.com/khidma/backend/internal/models"
	"github.com/khidma/backend/internal/money"
)

type WalletLister interface {
	List(ctx context.Context) ([]*models.Wallet, error)
}

type TransactionLister interface {
	ListByWalletID(ctx context.Context, walletID uuid.UUID, limit int) ([]*models.WalletTransaction, error)
}

type AuditStore interface {
	Create(ctx context.Context, a *models.AdminAction) error
	List(ctx context.Context, limit int) ([]*models.AdminAction, error)
}

type Handler struct {
	ledger       ledger.Service
	wallets      WalletLister
	transactions TransactionLister
	audit        AuditStore
	log          *slog.Logger
}

func NewHandler(ledgerSvc ledger.Service, wallets WalletLister, transactions TransactionLister, audit AuditStore, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		ledger:       ledgerSvc,
		wallets:      wallets,
		transactions: transactions,
		audit:        audit,
		log:          log,
	}
}

type AdjustRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

type RefundRequest struct {
	Reason string `json:"reason"`
}

type walletResponse struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`
	Balance    string `json:"balance"`
	Currency   string `json:"currency"`
	CreatedAt  string `json:"created_at"`
}

type transactionResponse struct {
	ID            string  `json:"id"`
	WalletID      string  `json:"wallet_id"`
	TxType        string  `json:"tx_type"`
	Amount        string  `json:"amount"`
	BalanceBefore string  `json:"balance_before"`
	BalanceAfter  string  `json:"balance_after"`
	Description   string  `json:"description"`
	ReferenceType *string `json:"reference_type,omitempty"`
	ReferenceID   *string `json:"reference_id,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// GET /api/v1/admin/wallets
func (h *Handler) ListWallets(w http.ResponseWriter, r *http.Request) {
	list, err := h.wallets.List(r.Context())
	if err != nil {
		h.log.Error("list wallets failed", "error", err)
		http.Error(w, "list wallets failed", http.StatusInternalServerError)
		return
	}
	resp := make([]walletResponse, 0, len(list))
	for _, wal := range list {
		resp = append(resp, walletResponse{
			ID:         wal.ID.String(),
			ProviderID: wal.ProviderID.String(),
			Balance:    money.FormatCents(wal.BalanceCents),
			Currency:   wal.Currency,
			CreatedAt:  wal.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/v1/admin/wallets/{id}/transactions
func (h *Handler) ListWalletTransactions(w http.ResponseWriter, r *http.Request) {
	walletID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid wallet id", http.StatusBadRequest)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	list, err := h.transactions.ListByWalletID(r.Context(), walletID, limit)
	if err != nil {
		h.log.Error("list transactions failed", "error", err, "wallet_id", walletID)
		http.Error(w, "list transactions failed", http.StatusInternalServerError)
		return
	}
	resp := make([]transactionResponse, 0, len(list))
	for _, t := range list {
		resp = append(resp, transactionToResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/v1/admin/wallets/{id}/adjust
//
// Amount is a signed decimal string: positive credits, negative debits.
func (h *Handler) AdjustWallet(w http.ResponseWriter, r *http.Request) {
	admin := middleware.UserFromCtx(r.Context())
	if admin == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	walletID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid wallet id", http.StatusBadRequest)
		return
	}
	var req AdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	signedCents, err := money.ParseCents(req.Amount)
	if err != nil {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}
	txn, err := h.ledger.Adjust(r.Context(), walletID, signedCents, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidAmount):
			http.Error(w, "amount must be non-zero", http.StatusBadRequest)
		case errors.Is(err, ledger.ErrReasonRequired):
			http.Error(w, "reason is required", http.StatusBadRequest)
		case errors.Is(err, ledger.ErrWalletNotFound):
			http.Error(w, "wallet not found", http.StatusNotFound)
		case errors.Is(err, ledger.ErrInsufficientBalance):
			http.Error(w, "insufficient balance", http.StatusPaymentRequired)
		default:
			h.log.Error("adjust wallet failed", "error", err, "wallet_id", walletID)
			http.Error(w, "adjust wallet failed", http.StatusInternalServerError)
		}
		return
	}
	h.recordAction(r.Context(), admin.ID, models.AdminActionWalletAdjust, "wallet", walletID, txn, req.Reason)
	writeJSON(w, http.StatusOK, transactionToResponse(txn))
}

// POST /api/v1/admin/unlocks/{id}/refund
func (h *Handler) RefundUnlock(w http.ResponseWriter, r *http.Request) {
	admin := middleware.UserFromCtx(r.Context())
	if admin == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	unlockID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid unlock id", http.StatusBadRequest)
		return
	}
	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	txn, err := h.ledger.Refund(r.Context(), unlockID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrUnlockNotFound):
			http.Error(w, "unlock not found or already refunded", http.StatusNotFound)
		case errors.Is(err, ledger.ErrConflict):
			http.Error(w, "unlock already refunded", http.StatusConflict)
		default:
			h.log.Error("refund unlock failed", "error", err, "unlock_id", unlockID)
			http.Error(w, "refund unlock failed", http.StatusInternalServerError)
		}
		return
	}
	h.recordAction(r.Context(), admin.ID, models.AdminActionUnlockRefund, "lead_unlock", unlockID, txn, req.Reason)
	writeJSON(w, http.StatusOK, transactionToResponse(txn))
}

// GET /api/v1/admin/actions
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	list, err := h.audit.List(r.Context(), limit)
	if err != nil {
		h.log.Error("list admin actions failed", "error", err)
		http.Error(w, "list actions failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// recordAction writes the audit row after the ledger mutation commits.
// Audit failures are logged, not surfaced; the money already moved.
func (h *Handler) recordAction(ctx context.Context, adminID uuid.UUID, actionType, targetType string, targetID uuid.UUID, txn *models.WalletTransaction, reason string) {
	detail, err := json.Marshal(map[string]any{
		"transaction_id": txn.ID,
		"tx_type":        txn.TxType,
		"amount":         money.FormatCents(txn.AmountCents),
		"balance_before": money.FormatCents(txn.BalanceBeforeCents),
		"balance_after":  money.FormatCents(txn.BalanceAfterCents),
		"reason":         reason,
	})
	if err != nil {
		h.log.Error("marshal audit detail failed", "error", err)
		return
	}
	action := &models.AdminAction{
		AdminID:    adminID,
		ActionType: actionType,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     detail,
	}
	if err := h.audit.Create(ctx, action); err != nil {
		h.log.Error("write audit row failed", "error", err, "action_type", actionType, "target_id", targetID)
	}
}

func transactionToResponse(t *models.WalletTransaction) transactionResponse {
	resp := transactionResponse{
		ID:            t.ID.String(),
		WalletID:      t.WalletID.String(),
		TxType:        t.TxType,
		Amount:        money.FormatCents(t.AmountCents),
		BalanceBefore: money.FormatCents(t.BalanceBeforeCents),
		BalanceAfter:  money.FormatCents(t.BalanceAfterCents),
		Description:   t.Description,
		ReferenceType: t.ReferenceType,
		CreatedAt:     t.CreatedAt.Format(time.RFC3339),
	}
	if t.ReferenceID != nil {
		s := t.ReferenceID.String()
		resp.ReferenceID = &s
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
