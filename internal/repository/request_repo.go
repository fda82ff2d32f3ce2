package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khidma/backend/internal/models"
)

type RequestRepo struct {
	pool *pgxpool.Pool
}

func NewRequestRepo(pool *pgxpool.Pool) *RequestRepo {
	return &RequestRepo{pool: pool}
}

const requestColumns = `id, client_id, title, description, category, city, contact_name, contact_phone, contact_email, unlock_fee_cents, status, total_unlocks, created_at, updated_at`

func (r *RequestRepo) Create(ctx context.Context, req *models.ServiceRequest) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO requests (client_id, title, description, category, city, contact_name, contact_phone, contact_email, unlock_fee_cents, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'open')
		RETURNING id, status, total_unlocks, created_at, updated_at
	`, req.ClientID, req.Title, req.Description, req.Category, req.City, req.ContactName, req.ContactPhone, req.ContactEmail, req.UnlockFeeCents).
		Scan(&req.ID, &req.Status, &req.TotalUnlocks, &req.CreatedAt, &req.UpdatedAt)
}

func (r *RequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	var req models.ServiceRequest
	err := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id).
		Scan(&req.ID, &req.ClientID, &req.Title, &req.Description, &req.Category, &req.City,
			&req.ContactName, &req.ContactPhone, &req.ContactEmail, &req.UnlockFeeCents,
			&req.Status, &req.TotalUnlocks, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *RequestRepo) ListOpen(ctx context.Context, limit int) ([]*models.ServiceRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return r.list(ctx, `SELECT `+requestColumns+` FROM requests WHERE status = 'open' ORDER BY created_at DESC LIMIT $1`, limit)
}

func (r *RequestRepo) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.ServiceRequest, error) {
	return r.list(ctx, `SELECT `+requestColumns+` FROM requests WHERE client_id = $1 ORDER BY created_at DESC`, clientID)
}

// RecountUnlocks recomputes the denormalized total_unlocks counter from
// the lead_unlocks table. Called by the background worker after an unlock
// or refund, never inside the money-moving transaction.
func (r *RequestRepo) RecountUnlocks(ctx context.Context, requestID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE requests SET total_unlocks = (
			SELECT count(*) FROM lead_unlocks WHERE request_id = $1 AND status = 'completed'
		), updated_at = now()
		WHERE id = $1
	`, requestID)
	return err
}

func (r *RequestRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `UPDATE requests SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

func (r *RequestRepo) list(ctx context.Context, query string, args ...any) ([]*models.ServiceRequest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ServiceRequest
	for rows.Next() {
		var req models.ServiceRequest
		if err := rows.Scan(&req.ID, &req.ClientID, &req.Title, &req.Description, &req.Category, &req.City,
			&req.ContactName, &req.ContactPhone, &req.ContactEmail, &req.UnlockFeeCents,
			&req.Status, &req.TotalUnlocks, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &req)
	}
	return list, rows.Err()
}
