package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/khidma/backend/internal/middleware"
	"github.com/khidma/backend/internal/models"
)

// NotificationReader is the repository slice behind the HTTP surface.
type NotificationReader interface {
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id, accountID uuid.UUID) error
}

type Handler struct {
	store NotificationReader
	log   *slog.Logger
}

func NewHandler(store NotificationReader, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{store: store, log: log}
}

// GET /api/v1/notifications
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	list, err := h.store.ListByAccount(r.Context(), user.ID, limit)
	if err != nil {
		h.log.Error("list notifications failed", "error", err)
		http.Error(w, "list notifications failed", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Notification{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

// POST /api/v1/notifications/{id}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid notification id", http.StatusBadRequest)
		return
	}
	if err := h.store.MarkRead(r.Context(), id, user.ID); err != nil {
		h.log.Error("mark notification read failed", "error", err)
		http.Error(w, "mark read failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
