package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/wearly/wearly/internal/clock"
	"github.com/wearly/wearly/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("transaction.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) RecordAttempt(ctx context.Context, req domain.RecordAttemptRequest) (domain.Transaction, error) {
	provider := strings.TrimSpace(req.Provider)
	if provider == "" {
		return domain.Transaction{}, domain.ErrInvalidProvider
	}
	providerTxID := strings.TrimSpace(req.ProviderTransactionID)
	if providerTxID == "" {
		return domain.Transaction{}, domain.ErrInvalidTransactionID
	}
	if req.UserID == 0 {
		return domain.Transaction{}, domain.ErrInvalidUser
	}
	switch req.Status {
	case domain.TransactionStatusPending, domain.TransactionStatusApproved, domain.TransactionStatusCancelled:
	default:
		return domain.Transaction{}, domain.ErrInvalidStatus
	}

	now := s.clock.Now()
	record := &domain.Transaction{
		ID:                    s.genID.Generate(),
		UserID:                req.UserID,
		Provider:              provider,
		ProviderTransactionID: providerTxID,
		Amount:                req.Amount,
		Currency:              strings.ToUpper(strings.TrimSpace(req.Currency)),
		Status:                req.Status,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if req.Metadata != nil {
		record.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.repo.Upsert(ctx, s.db, record); err != nil {
		return domain.Transaction{}, err
	}

	// The upsert may have hit the conflict path; read back the stored row so
	// callers see the canonical id and timestamps.
	stored, err := s.repo.FindByProviderTransactionID(ctx, s.db, provider, providerTxID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if stored == nil {
		return domain.Transaction{}, domain.ErrTransactionNotFound
	}
	return *stored, nil
}

func (s *Service) IsApproved(ctx context.Context, provider, providerTransactionID string) (bool, error) {
	record, err := s.repo.FindByProviderTransactionID(ctx, s.db, strings.TrimSpace(provider), strings.TrimSpace(providerTransactionID))
	if err != nil {
		return false, err
	}
	return record != nil && record.Status == domain.TransactionStatusApproved, nil
}

func (s *Service) MarkStatus(ctx context.Context, tx *gorm.DB, provider, providerTransactionID string, status domain.TransactionStatus) error {
	switch status {
	case domain.TransactionStatusPending, domain.TransactionStatusApproved, domain.TransactionStatusCancelled:
	default:
		return domain.ErrInvalidStatus
	}
	db := tx
	if db == nil {
		db = s.db
	}
	return s.repo.UpdateStatus(ctx, db, strings.TrimSpace(provider), strings.TrimSpace(providerTransactionID), status)
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Transaction, error) {
	if id == 0 {
		return domain.Transaction{}, domain.ErrInvalidTransactionID
	}
	record, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	if record == nil {
		return domain.Transaction{}, domain.ErrTransactionNotFound
	}
	return *record, nil
}
