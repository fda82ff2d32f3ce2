// Package unlock coordinates the paid reveal of a request's client
// contact details: one debit against the provider's wallet and one
// lead_unlocks row, committed as a single unit.
package unlock

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/khidma/backend/internal/models"
	"github.com/khidma/backend/internal/notify"
)

// ErrAlreadyUnlocked is returned when the provider already holds an
// active unlock for the request. No charge is made.
var ErrAlreadyUnlocked = errors.New("request already unlocked")

// ErrRequestNotFound is returned for an unknown request id.
var ErrRequestNotFound = errors.New("request not found")

// RequestStore reads the collaborator-owned requests table. The unlock
// core never mutates request fields.
type RequestStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error)
}

// UnlockStore is the unlock repository slice the workflow needs.
type UnlockStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, u *models.LeadUnlock) error
	FindCompleted(ctx context.Context, requestID, providerID uuid.UUID) (*models.LeadUnlock, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.LeadUnlock, error)
}

// WalletDirectory resolves (and lazily creates) the provider's wallet.
type WalletDirectory interface {
	GetOrCreateByProvider(ctx context.Context, providerID uuid.UUID) (*models.Wallet, error)
}

// LedgerDebiter is the single ledger operation the workflow uses. The
// debit runs inside the workflow's transaction so wallet and unlock row
// stay consistent.
type LedgerDebiter interface {
	DebitTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amountCents int64, description, referenceType string, referenceID uuid.UUID) (*models.WalletTransaction, error)
}

// AccessCache is the read-through grant cache for contact reveals.
type AccessCache interface {
	Grant(ctx context.Context, providerID, requestID uuid.UUID) error
	Has(ctx context.Context, providerID, requestID uuid.UUID) (bool, error)
}

// TxBeginner abstracts transaction creation so tests don't need a pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// EnqueueRecountFunc enqueues the unlock-counter recompute job within
// the given transaction; typically a closure over river.Client.InsertTx.
type EnqueueRecountFunc func(ctx context.Context, tx pgx.Tx, args notify.RecountUnlocksArgs) error

type Service interface {
	UnlockRequest(ctx context.Context, providerID, requestID uuid.UUID) (*models.LeadUnlock, error)
	HasAccess(ctx context.Context, providerID, requestID uuid.UUID) (bool, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.LeadUnlock, error)
}

type service struct {
	db             TxBeginner
	requests       RequestStore
	unlocks        UnlockStore
	wallets        WalletDirectory
	ledger         LedgerDebiter
	access         AccessCache
	enqueueRecount EnqueueRecountFunc
	log            *slog.Logger
}

// NewService wires the unlock workflow. access and enqueueRecount may be
// nil; the workflow then skips cache warming and counter recompute.
func NewService(db TxBeginner, requests RequestStore, unlocks UnlockStore, wallets WalletDirectory, ledger LedgerDebiter, access AccessCache, enqueueRecount EnqueueRecountFunc, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{
		db:             db,
		requests:       requests,
		unlocks:        unlocks,
		wallets:        wallets,
		ledger:         ledger,
		access:         access,
		enqueueRecount: enqueueRecount,
		log:            log,
	}
}

var _ Service = (*service)(nil)

// UnlockRequest charges the provider the request's unlock fee and grants
// contact access. The duplicate check here is a fast path; the partial
// unique index on lead_unlocks is the backstop that closes the race
// between two concurrent attempts.
func (s *service) UnlockRequest(ctx context.Context, providerID, requestID uuid.UUID) (*models.LeadUnlock, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}

	existing, err := s.unlocks.FindCompleted(ctx, requestID, providerID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyUnlocked
	}

	wallet, err := s.wallets.GetOrCreateByProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	unlockID := uuid.New()
	txn, err := s.ledger.DebitTx(ctx, tx, wallet.ID, req.UnlockFeeCents, "lead unlock: "+req.Title, models.ReferenceLeadUnlock, unlockID)
	if err != nil {
		return nil, err
	}

	u := &models.LeadUnlock{
		ID:                  unlockID,
		RequestID:           requestID,
		ProviderID:          providerID,
		UnlockFeeCents:      req.UnlockFeeCents,
		Status:              models.UnlockStatusCompleted,
		WalletTransactionID: txn.ID,
	}
	if err := s.unlocks.CreateTx(ctx, tx, u); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Lost the race: another attempt committed between the fast
			// path and here. The rollback also undoes our debit.
			return nil, ErrAlreadyUnlocked
		}
		return nil, err
	}

	if s.enqueueRecount != nil {
		if err := s.enqueueRecount(ctx, tx, notify.RecountUnlocksArgs{RequestID: requestID}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if s.access != nil {
		if err := s.access.Grant(ctx, providerID, requestID); err != nil {
			s.log.Warn("access cache grant failed", "provider_id", providerID, "request_id", requestID, "error", err)
		}
	}
	return u, nil
}

// HasAccess reports whether the provider holds an active unlock for the
// request. Served from the cache when possible; a miss falls back to the
// database and warms the cache.
func (s *service) HasAccess(ctx context.Context, providerID, requestID uuid.UUID) (bool, error) {
	if s.access != nil {
		hit, err := s.access.Has(ctx, providerID, requestID)
		if err != nil {
			s.log.Warn("access cache read failed", "provider_id", providerID, "error", err)
		} else if hit {
			return true, nil
		}
	}

	existing, err := s.unlocks.FindCompleted(ctx, requestID, providerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if s.access != nil {
		if err := s.access.Grant(ctx, providerID, requestID); err != nil {
			s.log.Warn("access cache warm failed", "provider_id", providerID, "error", err)
		}
	}
	return true, nil
}

func (s *service) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.LeadUnlock, error) {
	return s.unlocks.ListByProvider(ctx, providerID)
}
