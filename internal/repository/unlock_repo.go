package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khidma/backend/internal/models"
)

type UnlockRepo struct {
	pool *pgxpool.Pool
}

func NewUnlockRepo(pool *pgxpool.Pool) *UnlockRepo {
	return &UnlockRepo{pool: pool}
}

// CreateTx inserts an unlock row inside the given transaction. The
// partial unique index uq_lead_unlocks_active rejects a second completed
// unlock for the same (request, provider); callers map that 23505 to a
// domain error.
func (r *UnlockRepo) CreateTx(ctx context.Context, tx pgx.Tx, u *models.LeadUnlock) error {
	return tx.QueryRow(ctx, `
		INSERT INTO lead_unlocks (id, request_id, provider_id, unlock_fee_cents, status, wallet_transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING unlocked_at
	`, u.ID, u.RequestID, u.ProviderID, u.UnlockFeeCents, u.Status, u.WalletTransactionID).Scan(&u.UnlockedAt)
}

func (r *UnlockRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.LeadUnlock, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, request_id, provider_id, unlock_fee_cents, status, wallet_transaction_id, refund_transaction_id, unlocked_at, refunded_at
		FROM lead_unlocks WHERE id = $1
	`, id))
}

// GetByIDForUpdate locks the unlock row for update. Call within a
// transaction; serializes concurrent refund attempts on the same unlock.
func (r *UnlockRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.LeadUnlock, error) {
	return r.scanOne(tx.QueryRow(ctx, `
		SELECT id, request_id, provider_id, unlock_fee_cents, status, wallet_transaction_id, refund_transaction_id, unlocked_at, refunded_at
		FROM lead_unlocks WHERE id = $1 FOR UPDATE
	`, id))
}

// FindCompleted returns the active unlock for (request, provider), or
// pgx.ErrNoRows if the provider has not paid for this request.
func (r *UnlockRepo) FindCompleted(ctx context.Context, requestID, providerID uuid.UUID) (*models.LeadUnlock, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, request_id, provider_id, unlock_fee_cents, status, wallet_transaction_id, refund_transaction_id, unlocked_at, refunded_at
		FROM lead_unlocks WHERE request_id = $1 AND provider_id = $2 AND status = 'completed'
	`, requestID, providerID))
}

// MarkRefunded flips a completed unlock to refunded, recording the
// reversing transaction. Returns the number of rows changed: 0 means the
// unlock was already refunded by a concurrent actor.
func (r *UnlockRepo) MarkRefunded(ctx context.Context, tx pgx.Tx, id, refundTxID uuid.UUID) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE lead_unlocks SET status = 'refunded', refund_transaction_id = $2, refunded_at = now()
		WHERE id = $1 AND status = 'completed'
	`, id, refundTxID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *UnlockRepo) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.LeadUnlock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, request_id, provider_id, unlock_fee_cents, status, wallet_transaction_id, refund_transaction_id, unlocked_at, refunded_at
		FROM lead_unlocks WHERE provider_id = $1 ORDER BY unlocked_at DESC
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LeadUnlock
	for rows.Next() {
		var u models.LeadUnlock
		if err := rows.Scan(&u.ID, &u.RequestID, &u.ProviderID, &u.UnlockFeeCents, &u.Status, &u.WalletTransactionID, &u.RefundTransactionID, &u.UnlockedAt, &u.RefundedAt); err != nil {
			return nil, err
		}
		list = append(list, &u)
	}
	return list, rows.Err()
}

func (r *UnlockRepo) scanOne(row pgx.Row) (*models.LeadUnlock, error) {
	var u models.LeadUnlock
	err := row.Scan(&u.ID, &u.RequestID, &u.ProviderID, &u.UnlockFeeCents, &u.Status, &u.WalletTransactionID, &u.RefundTransactionID, &u.UnlockedAt, &u.RefundedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
