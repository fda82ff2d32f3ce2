package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khidma/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new account. Providers get a zero-balance wallet in
// the same transaction so first unlock attempts never race wallet
// creation.
func (r *Repository) Create(ctx context.Context, email, passwordHash, name, phone, role string) (*models.Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	a := &models.Account{Email: email, Name: name, Phone: phone, Role: role}
	err = tx.QueryRow(ctx, `
		INSERT INTO accounts (email, name, phone, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, email, name, phone, passwordHash, role).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if role == models.RoleProvider {
		_, err = tx.Exec(ctx, `
			INSERT INTO wallets (provider_id, currency) VALUES ($1, $2)
		`, a.ID, models.DefaultCurrency)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// GetByEmail returns the account and password hash for login. Returns
// nil, "", nil if no account matches.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Account, string, error) {
	var a models.Account
	var passwordHash string
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, name, phone, role, password_hash, created_at, updated_at
		FROM accounts WHERE email = $1
	`, email).Scan(&a.ID, &a.Email, &a.Name, &a.Phone, &a.Role, &passwordHash, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", err
	}
	return &a, passwordHash, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, name, phone, role, created_at, updated_at
		FROM accounts WHERE id = $1
	`, id).Scan(&a.ID, &a.Email, &a.Name, &a.Phone, &a.Role, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
