package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khidma/backend/internal/models"
)

// TransactionRepo persists the append-only wallet ledger. There is no
// Update or Delete on purpose: rows are immutable once written.
type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// CreateTx inserts a ledger entry inside the given transaction.
func (r *TransactionRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.WalletTransaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO wallet_transactions
			(id, wallet_id, tx_type, amount_cents, balance_before_cents, balance_after_cents, description, reference_type, reference_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, t.ID, t.WalletID, t.TxType, t.AmountCents, t.BalanceBeforeCents, t.BalanceAfterCents, t.Description, t.ReferenceType, t.ReferenceID).Scan(&t.CreatedAt)
}

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.WalletTransaction, error) {
	var t models.WalletTransaction
	err := r.pool.QueryRow(ctx, `
		SELECT id, wallet_id, tx_type, amount_cents, balance_before_cents, balance_after_cents, description, reference_type, reference_id, created_at
		FROM wallet_transactions WHERE id = $1
	`, id).Scan(&t.ID, &t.WalletID, &t.TxType, &t.AmountCents, &t.BalanceBeforeCents, &t.BalanceAfterCents, &t.Description, &t.ReferenceType, &t.ReferenceID, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepo) ListByWalletID(ctx context.Context, walletID uuid.UUID, limit int) ([]*models.WalletTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, wallet_id, tx_type, amount_cents, balance_before_cents, balance_after_cents, description, reference_type, reference_id, created_at
		FROM wallet_transactions WHERE wallet_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, walletID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WalletTransaction
	for rows.Next() {
		var t models.WalletTransaction
		if err := rows.Scan(&t.ID, &t.WalletID, &t.TxType, &t.AmountCents, &t.BalanceBeforeCents, &t.BalanceAfterCents, &t.Description, &t.ReferenceType, &t.ReferenceID, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}
