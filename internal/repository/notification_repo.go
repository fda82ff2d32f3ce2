package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khidma/backend/internal/models"
)

type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

func (r *NotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO notifications (account_id, event, body)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, n.AccountID, n.Event, n.Body).Scan(&n.ID, &n.CreatedAt)
}

func (r *NotificationRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, event, body, read, created_at
		FROM notifications WHERE account_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.AccountID, &n.Event, &n.Body, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &n)
	}
	return list, rows.Err()
}

func (r *NotificationRepo) MarkRead(ctx context.Context, id, accountID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications SET read = TRUE WHERE id = $1 AND account_id = $2
	`, id, accountID)
	return err
}
