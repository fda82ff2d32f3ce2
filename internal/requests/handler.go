package requests

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/khidma/backend/internal/middleware"
	"github.com/khidma/backend/internal/models"
	"github.com/khidma/backend/internal/money"
)

// Request/response structs use snake_case JSON. Money fields travel as
// decimal strings, e.g. "50.00".

type CreateRequestRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	City         string `json:"city"`
	ContactName  string `json:"contact_name"`
	ContactPhone string `json:"contact_phone"`
	ContactEmail string `json:"contact_email"`
	UnlockFee    string `json:"unlock_fee"`
}

// RequestResponse omits contact details. They are only exposed through
// the unlock endpoints after a provider has paid the unlock fee.
type RequestResponse struct {
	ID           string `json:"id"`
	ClientID     string `json:"client_id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	City         string `json:"city,omitempty"`
	UnlockFee    string `json:"unlock_fee"`
	Status       string `json:"status"`
	TotalUnlocks int    `json:"total_unlocks"`
	CreatedAt    string `json:"created_at"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil || user.Role != models.RoleClient {
		http.Error(w, "only clients can post requests", http.StatusForbidden)
		return
	}
	var req CreateRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Title == "" || req.Description == "" || req.Category == "" || req.ContactPhone == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	feeCents, err := money.ParseCents(req.UnlockFee)
	if err != nil || feeCents <= 0 {
		http.Error(w, "unlock_fee must be a positive amount", http.StatusBadRequest)
		return
	}
	created, err := h.svc.Create(r.Context(), CreateParams{
		ClientID:       user.ID,
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		City:           req.City,
		ContactName:    req.ContactName,
		ContactPhone:   req.ContactPhone,
		ContactEmail:   req.ContactEmail,
		UnlockFeeCents: feeCents,
	})
	if err != nil {
		h.log.Error("create request failed", "error", err)
		http.Error(w, "create request failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(requestToResponse(created))
}

func (h *Handler) ListOpen(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	list, err := h.svc.ListOpen(r.Context(), limit)
	if err != nil {
		h.log.Error("list requests failed", "error", err)
		http.Error(w, "list requests failed", http.StatusInternalServerError)
		return
	}
	writeRequestList(w, list)
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.svc.ListByClient(r.Context(), user.ID)
	if err != nil {
		h.log.Error("list own requests failed", "error", err)
		http.Error(w, "list requests failed", http.StatusInternalServerError)
		return
	}
	writeRequestList(w, list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}
	req, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "request not found", http.StatusNotFound)
			return
		}
		h.log.Error("get request failed", "error", err)
		http.Error(w, "get request failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(requestToResponse(req))
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}
	if err := h.svc.Close(r.Context(), user.ID, id); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			http.Error(w, "request not found", http.StatusNotFound)
		case errors.Is(err, ErrForbidden):
			http.Error(w, "not the owner of this request", http.StatusForbidden)
		default:
			h.log.Error("close request failed", "error", err)
			http.Error(w, "close request failed", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeRequestList(w http.ResponseWriter, list []*models.ServiceRequest) {
	resp := make([]RequestResponse, 0, len(list))
	for _, req := range list {
		resp = append(resp, requestToResponse(req))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func requestToResponse(req *models.ServiceRequest) RequestResponse {
	return RequestResponse{
		ID:           req.ID.String(),
		ClientID:     req.ClientID.String(),
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		City:         req.City,
		UnlockFee:    money.FormatCents(req.UnlockFeeCents),
		Status:       req.Status,
		TotalUnlocks: req.TotalUnlocks,
		CreatedAt:    req.CreatedAt.Format(time.RFC3339),
	}
}
