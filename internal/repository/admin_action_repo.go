package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khidma/backend/internal/models"
)

type AdminActionRepo struct {
	pool *pgxpool.Pool
}

func NewAdminActionRepo(pool *pgxpool.Pool) *AdminActionRepo {
	return &AdminActionRepo{pool: pool}
}

func (r *AdminActionRepo) Create(ctx context.Context, a *models.AdminAction) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO admin_actions (admin_id, action_type, target_type, target_id, detail)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, a.AdminID, a.ActionType, a.TargetType, a.TargetID, a.Detail).Scan(&a.ID, &a.CreatedAt)
}

func (r *AdminActionRepo) List(ctx context.Context, limit int) ([]*models.AdminAction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, admin_id, action_type, target_type, target_id, detail, created_at
		FROM admin_actions ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.AdminAction
	for rows.Next() {
		var a models.AdminAction
		if err := rows.Scan(&a.ID, &a.AdminID, &a.ActionType, &a.TargetType, &a.TargetID, &a.Detail, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}
