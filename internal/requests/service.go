package requests

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/khidma/backend/internal/models"
)

var (
	ErrNotFound  = errors.New("request not found")
	ErrForbidden = errors.New("not the owner of this request")
)

type Store interface {
	Create(ctx context.Context, req *models.ServiceRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error)
	ListOpen(ctx context.Context, limit int) ([]*models.ServiceRequest, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.ServiceRequest, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

type CreateParams struct {
	ClientID       uuid.UUID
	Title          string
	Description    string
	Category       string
	City           string
	ContactName    string
	ContactPhone   string
	ContactEmail   string
	UnlockFeeCents int64
}

type Service interface {
	Create(ctx context.Context, p CreateParams) (*models.ServiceRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error)
	ListOpen(ctx context.Context, limit int) ([]*models.ServiceRequest, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.ServiceRequest, error)
	Close(ctx context.Context, clientID, requestID uuid.UUID) error
}

type service struct {
	repo Store
}

var _ Service = (*service)(nil)

func NewService(repo Store) *service {
	return &service{repo: repo}
}

func (s *service) Create(ctx context.Context, p CreateParams) (*models.ServiceRequest, error) {
	req := &models.ServiceRequest{
		ClientID:       p.ClientID,
		Title:          strings.TrimSpace(p.Title),
		Description:    strings.TrimSpace(p.Description),
		Category:       strings.ToLower(strings.TrimSpace(p.Category)),
		City:           strings.TrimSpace(p.City),
		ContactName:    strings.TrimSpace(p.ContactName),
		ContactPhone:   strings.TrimSpace(p.ContactPhone),
		ContactEmail:   strings.TrimSpace(p.ContactEmail),
		UnlockFeeCents: p.UnlockFeeCents,
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

func (s *service) ListOpen(ctx context.Context, limit int) ([]*models.ServiceRequest, error) {
	return s.repo.ListOpen(ctx, limit)
}

func (s *service) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.ServiceRequest, error) {
	return s.repo.ListByClient(ctx, clientID)
}

func (s *service) Close(ctx context.Context, clientID, requestID uuid.UUID) error {
	req, err := s.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if req.ClientID != clientID {
		return ErrForbidden
	}
	return s.repo.UpdateStatus(ctx, requestID, models.RequestStatusClosed)
}
