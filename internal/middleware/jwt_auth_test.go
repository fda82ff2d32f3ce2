package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/khidma/backend/internal/models"
)

type stubValidator struct {
	id   uuid.UUID
	role string
	err  error
}

func (s stubValidator) ValidateToken(_ context.Context, token string) (uuid.UUID, string, error) {
	if s.err != nil {
		return uuid.Nil, "", s.err
	}
	return s.id, s.role, nil
}

func TestJWTAuth(t *testing.T) {
	userID := uuid.New()
	mw := JWTAuth(stubValidator{id: userID, role: models.RoleProvider})

	var seen *AuthUser
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserFromCtx(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// Valid token.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	req.Header.Set("Authorization", "Bearer token123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if seen == nil || seen.ID != userID || seen.Role != models.RoleProvider {
		t.Errorf("context user: got %+v, want id=%s role=provider", seen, userID)
	}

	// Missing header.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing header: got %d, want 401", rec.Code)
	}

	// Invalid token.
	badMW := JWTAuth(stubValidator{err: errors.New("expired")})
	badHandler := badMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run with invalid token")
	}))
	req = httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rec = httptest.NewRecorder()
	badHandler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("invalid token: got %d, want 401", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	admin := &AuthUser{ID: uuid.New(), Role: models.RoleAdmin}
	provider := &AuthUser{ID: uuid.New(), Role: models.RoleProvider}

	guard := RequireRole(models.RoleAdmin)
	handler := guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	run := func(u *AuthUser) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/wallets", nil)
		if u != nil {
			req = req.WithContext(WithUser(req.Context(), u))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := run(admin); code != http.StatusOK {
		t.Errorf("admin: got %d, want 200", code)
	}
	if code := run(provider); code != http.StatusForbidden {
		t.Errorf("provider: got %d, want 403", code)
	}
	if code := run(nil); code != http.StatusUnauthorized {
		t.Errorf("anonymous: got %d, want 401", code)
	}
}
