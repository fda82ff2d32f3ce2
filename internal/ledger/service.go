package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/khidma/backend/internal/models"
	"github.com/khidma/backend/internal/notify"
)

// WalletStore is the minimal wallet repository interface for the ledger.
// Every balance mutation happens under the row lock taken by the
// ForUpdate reads; Debit's conditional WHERE is the last-resort guard.
type WalletStore interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Wallet, error)
	GetByProviderForUpdate(ctx context.Context, tx pgx.Tx, providerID uuid.UUID) (*models.Wallet, error)
	Credit(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) (newBalance int64, err error)
	Debit(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) (newBalance int64, err error)
}

// TransactionStore appends immutable ledger rows.
type TransactionStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.WalletTransaction) error
}

// UnlockStore is the slice of the unlock repository refunds need.
type UnlockStore interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.LeadUnlock, error)
	MarkRefunded(ctx context.Context, tx pgx.Tx, id, refundTxID uuid.UUID) (int64, error)
}

// TxBeginner abstracts transaction creation so tests don't need a pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// EnqueueWalletEventFunc enqueues a notification job within the given
// transaction; typically a closure over river.Client.InsertTx.
type EnqueueWalletEventFunc func(ctx context.Context, tx pgx.Tx, args notify.WalletEventArgs) error

// AccessRevoker drops a provider's cached contact access after a refund.
type AccessRevoker interface {
	Revoke(ctx context.Context, providerID, requestID uuid.UUID) error
}

// Service is the sole authority for mutating wallet balances. Every
// mutation pairs with exactly one WalletTransaction row written in the
// same database transaction.
type Service interface {
	Deposit(ctx context.Context, walletID uuid.UUID, amountCents int64, description string) (*models.WalletTransaction, error)
	DebitTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amountCents int64, description, referenceType string, referenceID uuid.UUID) (*models.WalletTransaction, error)
	Adjust(ctx context.Context, walletID uuid.UUID, signedCents int64, reason string) (*models.WalletTransaction, error)
	Refund(ctx context.Context, unlockID uuid.UUID, reason string) (*models.WalletTransaction, error)
}

type service struct {
	db           TxBeginner
	wallets      WalletStore
	transactions TransactionStore
	unlocks      UnlockStore
	enqueueEvent EnqueueWalletEventFunc
	accessRev    AccessRevoker
	log          *slog.Logger
}

// NewService wires the ledger. enqueueEvent and accessRev may be nil
// (notifications and cache invalidation are then skipped; money movement
// never depends on either).
func NewService(db TxBeginner, wallets WalletStore, transactions TransactionStore, unlocks UnlockStore, enqueueEvent EnqueueWalletEventFunc, accessRev AccessRevoker, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{
		db:           db,
		wallets:      wallets,
		transactions: transactions,
		unlocks:      unlocks,
		enqueueEvent: enqueueEvent,
		accessRev:    accessRev,
		log:          log,
	}
}

var _ Service = (*service)(nil)

func (s *service) Deposit(ctx context.Context, walletID uuid.UUID, amountCents int64, description string) (*models.WalletTransaction, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	w, err := s.wallets.GetByIDForUpdate(ctx, tx, walletID)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	txn, err := s.creditLocked(ctx, tx, w, amountCents, models.TxTypeDeposit, description, nil, nil)
	if err != nil {
		return nil, err
	}
	if s.enqueueEvent != nil {
		if err := s.enqueueEvent(ctx, tx, notify.WalletEventArgs{
			AccountID:   w.ProviderID,
			Event:       models.NotifyDepositCompleted,
			AmountCents: amountCents,
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return txn, nil
}

// DebitTx debits a wallet inside the caller's transaction. The unlock
// workflow uses this so the debit and the unlock row commit or roll back
// together.
func (s *service) DebitTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amountCents int64, description, referenceType string, referenceID uuid.UUID) (*models.WalletTransaction, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	w, err := s.wallets.GetByIDForUpdate(ctx, tx, walletID)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	if w.BalanceCents < amountCents {
		return nil, ErrInsufficientBalance
	}
	newBalance, err := s.wallets.Debit(ctx, tx, walletID, amountCents)
	if err != nil {
		if isNoRows(err) {
			// Conditional UPDATE matched nothing despite the row lock
			// saying the balance covers it. Something mutated the wallet
			// outside the ledger; refuse rather than guess.
			return nil, ErrConflict
		}
		return nil, err
	}
	txn := &models.WalletTransaction{
		ID:                 uuid.New(),
		WalletID:           walletID,
		TxType:             models.TxTypeDebit,
		AmountCents:        amountCents,
		BalanceBeforeCents: w.BalanceCents,
		BalanceAfterCents:  newBalance,
		Description:        description,
	}
	if referenceType != "" {
		txn.ReferenceType = &referenceType
		if referenceID != uuid.Nil {
			refID := referenceID
			txn.ReferenceID = &refID
		}
	}
	if err := s.transactions.CreateTx(ctx, tx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *service) Adjust(ctx context.Context, walletID uuid.UUID, signedCents int64, reason string) (*models.WalletTransaction, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	if signedCents == 0 {
		return nil, ErrInvalidAmount
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	refType := models.ReferenceAdminAdjustment
	var txn *models.WalletTransaction
	if signedCents > 0 {
		var w *models.Wallet
		w, err = s.wallets.GetByIDForUpdate(ctx, tx, walletID)
		if err != nil {
			if isNoRows(err) {
				return nil, ErrWalletNotFound
			}
			return nil, err
		}
		txn, err = s.creditLocked(ctx, tx, w, signedCents, models.TxTypeDeposit, reason, &refType, nil)
	} else {
		txn, err = s.DebitTx(ctx, tx, walletID, -signedCents, reason, refType, uuid.Nil)
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *service) Refund(ctx context.Context, unlockID uuid.UUID, reason string) (*models.WalletTransaction, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	u, err := s.unlocks.GetByIDForUpdate(ctx, tx, unlockID)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrUnlockNotFound
		}
		return nil, err
	}
	// Re-check under the row lock: refunding an already-refunded unlock
	// must fail loudly, never silently credit twice.
	if u.Status != models.UnlockStatusCompleted {
		return nil, ErrUnlockNotFound
	}

	w, err := s.wallets.GetByProviderForUpdate(ctx, tx, u.ProviderID)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}

	refType := models.ReferenceLeadUnlock
	refID := u.ID
	txn, err := s.creditLocked(ctx, tx, w, u.UnlockFeeCents, models.TxTypeRefund, reason, &refType, &refID)
	if err != nil {
		return nil, err
	}

	changed, err := s.unlocks.MarkRefunded(ctx, tx, u.ID, txn.ID)
	if err != nil {
		return nil, err
	}
	if changed == 0 {
		return nil, ErrConflict
	}

	if s.enqueueEvent != nil {
		if err := s.enqueueEvent(ctx, tx, notify.WalletEventArgs{
			AccountID:   u.ProviderID,
			Event:       models.NotifyRefundIssued,
			AmountCents: u.UnlockFeeCents,
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	// Drop the cached contact access. Best effort: the DB row already says
	// refunded, so a lost delete only means the TTL cleans it up later.
	if s.accessRev != nil {
		if err := s.accessRev.Revoke(ctx, u.ProviderID, u.RequestID); err != nil {
			s.log.Warn("access revoke failed after refund", "unlock_id", u.ID, "error", err)
		}
	}
	return txn, nil
}

// creditLocked applies a positive balance change to an already-locked
// wallet and writes the paired ledger row.
func (s *service) creditLocked(ctx context.Context, tx pgx.Tx, w *models.Wallet, amountCents int64, txType, description string, referenceType *string, referenceID *uuid.UUID) (*models.WalletTransaction, error) {
	newBalance, err := s.wallets.Credit(ctx, tx, w.ID, amountCents)
	if err != nil {
		return nil, err
	}
	txn := &models.WalletTransaction{
		ID:                 uuid.New(),
		WalletID:           w.ID,
		TxType:             txType,
		AmountCents:        amountCents,
		BalanceBeforeCents: w.BalanceCents,
		BalanceAfterCents:  newBalance,
		Description:        description,
		ReferenceType:      referenceType,
		ReferenceID:        referenceID,
	}
	if err := s.transactions.CreateTx(ctx, tx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
