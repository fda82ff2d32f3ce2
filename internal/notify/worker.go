package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/khidma/backend/internal/models"
	"github.com/khidma/backend/internal/money"
)

// NotificationStore is the subset of the notification repository the
// worker needs.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
}

// RequestRecounter recomputes a request's unlock counter.
type RequestRecounter interface {
	RecountUnlocks(ctx context.Context, requestID uuid.UUID) error
}

type WalletEventWorker struct {
	river.WorkerDefaults[WalletEventArgs]
	store NotificationStore
	log   *slog.Logger
}

func NewWalletEventWorker(store NotificationStore, log *slog.Logger) *WalletEventWorker {
	if log == nil {
		log = slog.Default()
	}
	return &WalletEventWorker{store: store, log: log}
}

func (w *WalletEventWorker) Work(ctx context.Context, job *river.Job[WalletEventArgs]) error {
	args := job.Args
	body := args.Body
	if body == "" {
		switch args.Event {
		case models.NotifyDepositCompleted:
			body = "Your wallet was topped up with " + money.FormatCents(args.AmountCents) + " " + models.DefaultCurrency + "."
		case models.NotifyRefundIssued:
			body = "A refund of " + money.FormatCents(args.AmountCents) + " " + models.DefaultCurrency + " was credited to your wallet."
		}
	}
	n := &models.Notification{
		AccountID: args.AccountID,
		Event:     args.Event,
		Body:      body,
	}
	if err := w.store.Create(ctx, n); err != nil {
		return err
	}
	w.log.Info("notification written", "account_id", args.AccountID, "event", args.Event)
	return nil
}

type RecountUnlocksWorker struct {
	river.WorkerDefaults[RecountUnlocksArgs]
	requests RequestRecounter
	log      *slog.Logger
}

func NewRecountUnlocksWorker(requests RequestRecounter, log *slog.Logger) *RecountUnlocksWorker {
	if log == nil {
		log = slog.Default()
	}
	return &RecountUnlocksWorker{requests: requests, log: log}
}

func (w *RecountUnlocksWorker) Work(ctx context.Context, job *river.Job[RecountUnlocksArgs]) error {
	if err := w.requests.RecountUnlocks(ctx, job.Args.RequestID); err != nil {
		return err
	}
	w.log.Info("unlock count recomputed", "request_id", job.Args.RequestID)
	return nil
}
