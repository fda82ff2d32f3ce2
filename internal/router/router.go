package router

import (
	"net/http"

	"github.com/khidma/backend/internal/admin"
	"github.com/khidma/backend/internal/auth"
	"github.com/khidma/backend/internal/ledger"
	"github.com/khidma/backend/internal/middleware"
	"github.com/khidma/backend/internal/models"
	"github.com/khidma/backend/internal/notify"
	"github.com/khidma/backend/internal/requests"
	"github.com/khidma/backend/internal/unlock"
)

// New returns an http.Handler serving the API under /api/v1. Routes use
// method-qualified patterns, so an unmatched verb gets 405 from the mux.
func New(
	authHandler *auth.Handler,
	requestHandler *requests.Handler,
	walletHandler *ledger.Handler,
	unlockHandler *unlock.Handler,
	notifyHandler *notify.Handler,
	adminHandler *admin.Handler,
	validator middleware.TokenValidator,
) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	authed := middleware.JWTAuth(validator)
	providerOnly := func(h http.HandlerFunc) http.Handler {
		return authed(middleware.RequireRole(models.RoleProvider)(h))
	}
	adminOnly := func(h http.HandlerFunc) http.Handler {
		return authed(middleware.RequireRole(models.RoleAdmin)(h))
	}

	mux.HandleFunc("POST "+base+"/auth/register", authHandler.Register)
	mux.HandleFunc("POST "+base+"/auth/login", authHandler.Login)
	mux.Handle("GET "+base+"/auth/me", authed(http.HandlerFunc(authHandler.Me)))

	mux.Handle("POST "+base+"/requests", authed(http.HandlerFunc(requestHandler.Create)))
	mux.Handle("GET "+base+"/requests", authed(http.HandlerFunc(requestHandler.ListOpen)))
	mux.Handle("GET "+base+"/requests/mine", authed(http.HandlerFunc(requestHandler.ListMine)))
	mux.Handle("GET "+base+"/requests/{id}", authed(http.HandlerFunc(requestHandler.Get)))
	mux.Handle("POST "+base+"/requests/{id}/close", authed(http.HandlerFunc(requestHandler.Close)))

	mux.Handle("POST "+base+"/requests/{id}/unlock", providerOnly(unlockHandler.Unlock))
	mux.Handle("GET "+base+"/requests/{id}/contact", providerOnly(unlockHandler.RevealContact))
	mux.Handle("GET "+base+"/unlocks", providerOnly(unlockHandler.ListMine))

	mux.Handle("GET "+base+"/wallet", providerOnly(walletHandler.GetWallet))
	mux.Handle("POST "+base+"/wallet/deposit", providerOnly(walletHandler.Deposit))
	mux.Handle("GET "+base+"/wallet/transactions", providerOnly(walletHandler.ListTransactions))

	mux.Handle("GET "+base+"/notifications", authed(http.HandlerFunc(notifyHandler.List)))
	mux.Handle("POST "+base+"/notifications/{id}/read", authed(http.HandlerFunc(notifyHandler.MarkRead)))

	mux.Handle("GET "+base+"/admin/wallets", adminOnly(adminHandler.ListWallets))
	mux.Handle("GET "+base+"/admin/wallets/{id}/transactions", adminOnly(adminHandler.ListWalletTransactions))
	mux.Handle("POST "+base+"/admin/wallets/{id}/adjust", adminOnly(adminHandler.AdjustWallet))
	mux.Handle("POST "+base+"/admin/unlocks/{id}/refund", adminOnly(adminHandler.RefundUnlock))
	mux.Handle("GET "+base+"/admin/actions", adminOnly(adminHandler.ListActions))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}
