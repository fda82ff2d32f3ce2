package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khidma/backend/internal/models"
)

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

func (r *WalletRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := r.pool.QueryRow(ctx, `
		SELECT id, provider_id, balance_cents, currency, created_at, updated_at
		FROM wallets WHERE id = $1
	`, id).Scan(&w.ID, &w.ProviderID, &w.BalanceCents, &w.Currency, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetOrCreateByProvider returns the provider's wallet, creating an empty
// one if it does not exist yet. Safe under concurrent first access: the
// unique constraint on provider_id plus ON CONFLICT resolves the race.
func (r *WalletRepo) GetOrCreateByProvider(ctx context.Context, providerID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := r.pool.QueryRow(ctx, `
		INSERT INTO wallets (provider_id, currency)
		VALUES ($1, $2)
		ON CONFLICT (provider_id) DO UPDATE SET provider_id = EXCLUDED.provider_id
		RETURNING id, provider_id, balance_cents, currency, created_at, updated_at
	`, providerID, models.DefaultCurrency).Scan(&w.ID, &w.ProviderID, &w.BalanceCents, &w.Currency, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetByIDForUpdate locks the wallet row for update. Call within a transaction.
func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.QueryRow(ctx, `
		SELECT id, provider_id, balance_cents, currency, created_at, updated_at
		FROM wallets WHERE id = $1 FOR UPDATE
	`, id).Scan(&w.ID, &w.ProviderID, &w.BalanceCents, &w.Currency, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetByProviderForUpdate locks the wallet row by provider id. Call within
// a transaction.
func (r *WalletRepo) GetByProviderForUpdate(ctx context.Context, tx pgx.Tx, providerID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.QueryRow(ctx, `
		SELECT id, provider_id, balance_cents, currency, created_at, updated_at
		FROM wallets WHERE provider_id = $1 FOR UPDATE
	`, providerID).Scan(&w.ID, &w.ProviderID, &w.BalanceCents, &w.Currency, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Credit adds amount to the wallet and returns the new balance.
func (r *WalletRepo) Credit(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE wallets SET balance_cents = balance_cents + $1, updated_at = now()
		WHERE id = $2
		RETURNING balance_cents
	`, amountCents, id).Scan(&newBalance)
	return newBalance, err
}

// Debit atomically deducts amount if the balance covers it. The WHERE
// clause is the final guard against a stale read; callers should already
// hold the row lock via GetByIDForUpdate.
func (r *WalletRepo) Debit(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE wallets SET balance_cents = balance_cents - $1, updated_at = now()
		WHERE id = $2 AND balance_cents >= $1
		RETURNING balance_cents
	`, amountCents, id).Scan(&newBalance)
	return newBalance, err
}

// List returns all wallets, newest first. Admin surface only.
func (r *WalletRepo) List(ctx context.Context) ([]*models.Wallet, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, provider_id, balance_cents, currency, created_at, updated_at
		FROM wallets ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Wallet
	for rows.Next() {
		var w models.Wallet
		if err := rows.Scan(&w.ID, &w.ProviderID, &w.BalanceCents, &w.Currency, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &w)
	}
	return list, rows.Err()
}
