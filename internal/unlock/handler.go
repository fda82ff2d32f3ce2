package unlock

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/khidma/backend/internal/ledger"
	"github.com/khidma/backend/internal/middleware"
	"github.com/khidma/backend/internal/models"
	"github.com/khidma/backend/internal/money"
)

type Handler struct {
	svc      Service
	requests RequestStore
	log      *slog.Logger
}

func NewHandler(svc Service, requests RequestStore, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, requests: requests, log: log}
}

type unlockResponse struct {
	ID         string          `json:"id"`
	RequestID  string          `json:"request_id"`
	Fee        string          `json:"fee"`
	Status     string          `json:"status"`
	UnlockedAt string          `json:"unlocked_at"`
	Contact    *contactPayload `json:"contact,omitempty"`
}

type contactPayload struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// Unlock handles POST /api/v1/requests/{id}/unlock.
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := h.providerAndRequestID(w, r)
	if !ok {
		return
	}
	u, err := h.svc.UnlockRequest(r.Context(), user.ID, requestID)
	if err != nil {
		switch {
		case errors.Is(err, ErrRequestNotFound):
			http.Error(w, "request not found", http.StatusNotFound)
		case errors.Is(err, ErrAlreadyUnlocked):
			http.Error(w, "you already have access to this lead", http.StatusConflict)
		case errors.Is(err, ledger.ErrInsufficientBalance):
			http.Error(w, "insufficient balance, top up your wallet to unlock this lead", http.StatusPaymentRequired)
		case errors.Is(err, ledger.ErrConflict):
			http.Error(w, "wallet busy, please retry", http.StatusConflict)
		default:
			h.log.Error("unlock failed", "provider_id", user.ID, "request_id", requestID, "error", err)
			http.Error(w, "unlock failed", http.StatusInternalServerError)
		}
		return
	}

	resp := unlockToResponse(u)
	if req, err := h.requests.GetByID(r.Context(), requestID); err == nil {
		resp.Contact = &contactPayload{Name: req.ContactName, Phone: req.ContactPhone, Email: req.ContactEmail}
	}
	writeJSON(w, http.StatusCreated, resp)
}

// RevealContact handles GET /api/v1/requests/{id}/contact. 403 until the
// provider has paid for the lead.
func (h *Handler) RevealContact(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := h.providerAndRequestID(w, r)
	if !ok {
		return
	}
	allowed, err := h.svc.HasAccess(r.Context(), user.ID, requestID)
	if err != nil {
		h.log.Error("access check failed", "provider_id", user.ID, "request_id", requestID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !allowed {
		http.Error(w, "unlock this request to view contact details", http.StatusForbidden)
		return
	}
	req, err := h.requests.GetByID(r.Context(), requestID)
	if err != nil {
		http.Error(w, "request not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, contactPayload{Name: req.ContactName, Phone: req.ContactPhone, Email: req.ContactEmail})
}

// ListMine handles GET /api/v1/unlocks.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if user.Role != models.RoleProvider {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	list, err := h.svc.ListByProvider(r.Context(), user.ID)
	if err != nil {
		h.log.Error("list unlocks failed", "provider_id", user.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	resp := make([]unlockResponse, 0, len(list))
	for _, u := range list {
		resp = append(resp, unlockToResponse(u))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) providerAndRequestID(w http.ResponseWriter, r *http.Request) (*middleware.AuthUser, uuid.UUID, bool) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, uuid.Nil, false
	}
	if user.Role != models.RoleProvider {
		http.Error(w, "only providers can unlock leads", http.StatusForbidden)
		return nil, uuid.Nil, false
	}
	requestID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return nil, uuid.Nil, false
	}
	return user, requestID, true
}

func unlockToResponse(u *models.LeadUnlock) unlockResponse {
	return unlockResponse{
		ID:         u.ID.String(),
		RequestID:  u.RequestID.String(),
		Fee:        money.FormatCents(u.UnlockFeeCents),
		Status:     u.Status,
		UnlockedAt: u.UnlockedAt.UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
