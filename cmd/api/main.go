package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/khidma/backend/internal/access"
	"github.com/khidma/backend/internal/admin"
	"github.com/khidma/backend/internal/auth"
	"github.com/khidma/backend/internal/config"
	"github.com/khidma/backend/internal/ledger"
	"github.com/khidma/backend/internal/notify"
	"github.com/khidma/backend/internal/repository"
	"github.com/khidma/backend/internal/requests"
	"github.com/khidma/backend/internal/router"
	"github.com/khidma/backend/internal/unlock"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.New()
	if err != nil {
		slog.Error("Config load failed", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL")

	if err := repository.RunMigrations(ctx, cfg.DatabaseURL, "up"); err != nil {
		slog.Error("Schema migrations failed", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Migrations applied")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("Redis unreachable, contact-access cache will fall back to the database", "error", err)
	}
	accessCache := access.NewCache(rdb)

	// Repositories
	walletRepo := repository.NewWalletRepo(pool)
	txRepo := repository.NewTransactionRepo(pool)
	unlockRepo := repository.NewUnlockRepo(pool)
	requestRepo := repository.NewRequestRepo(pool)
	notificationRepo := repository.NewNotificationRepo(pool)
	auditRepo := repository.NewAdminActionRepo(pool)

	// River insert funcs are set after the client is created (breaks the
	// init cycle between services and workers).
	var insertMu sync.Mutex
	var insertEventFn ledger.EnqueueWalletEventFunc
	var insertRecountFn unlock.EnqueueRecountFunc
	enqueueEvent := func(ctx context.Context, tx pgx.Tx, args notify.WalletEventArgs) error {
		insertMu.Lock()
		fn := insertEventFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, args)
	}
	enqueueRecount := func(ctx context.Context, tx pgx.Tx, args notify.RecountUnlocksArgs) error {
		insertMu.Lock()
		fn := insertRecountFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, args)
	}

	// Services
	ledgerSvc := ledger.NewService(walletRepo, walletRepo, txRepo, unlockRepo, enqueueEvent, accessCache, logger)
	unlockSvc := unlock.NewService(walletRepo, requestRepo, unlockRepo, walletRepo, ledgerSvc, accessCache, enqueueRecount, logger)
	requestSvc := requests.NewService(requestRepo)

	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(authRepo, cfg.JWTSecret)

	// Background workers
	workers := river.NewWorkers()
	river.AddWorker(workers, notify.NewWalletEventWorker(notificationRepo, logger))
	river.AddWorker(workers, notify.NewRecountUnlocksWorker(requestRepo, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertEventFn = func(ctx context.Context, tx pgx.Tx, args notify.WalletEventArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertRecountFn = func(ctx context.Context, tx pgx.Tx, args notify.RecountUnlocksArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()

	// Handlers
	authHandler := auth.NewHandler(authSvc, logger)
	requestHandler := requests.NewHandler(requestSvc, logger)
	walletHandler := ledger.NewHandler(ledgerSvc, walletRepo, txRepo, logger)
	unlockHandler := unlock.NewHandler(unlockSvc, requestRepo, logger)
	notifyHandler := notify.NewHandler(notificationRepo, logger)
	adminHandler := admin.NewHandler(ledgerSvc, walletRepo, txRepo, auditRepo, logger)

	apiRouter := router.New(authHandler, requestHandler, walletHandler, unlockHandler, notifyHandler, adminHandler, authSvc)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	// Start River client (processes jobs)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	addr := cfg.ListenAddr()
	slog.Info("Starting HTTP server", "addr", addr)
	if err := http.ListenAndServe(addr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
