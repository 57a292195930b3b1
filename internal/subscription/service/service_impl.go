package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/wearly/wearly/internal/clock"
	"github.com/wearly/wearly/internal/config"
	preapprovaldomain "github.com/wearly/wearly/internal/preapproval/domain"
	"github.com/wearly/wearly/internal/subscription/domain"
	transactiondomain "github.com/wearly/wearly/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
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
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) ApplyVerification(ctx context.Context, tx *gorm.DB, userID snowflake.ID, verification preapprovaldomain.Verification) (domain.ApplyOutcome, *domain.Subscription, error) {
	if userID == 0 {
		return domain.OutcomeNoChange, nil, domain.ErrInvalidUser
	}
	if tx == nil {
		tx = s.db
	}

	switch verification.Status {
	case preapprovaldomain.PreapprovalStatusAuthorized:
		return s.activate(ctx, tx, userID, verification)

	case preapprovaldomain.PreapprovalStatusCancelled:
		return s.scheduleCancel(ctx, tx, userID)

	case preapprovaldomain.PreapprovalStatusPaused:
		// A paused agreement keeps whatever access the user already has; the
		// processor stops charging, we stop changing state.
		s.log.Info("preapproval paused, leaving subscription untouched",
			zap.Int64("user_id", int64(userID)))
		return domain.OutcomeNoChange, nil, nil

	default:
		s.log.Info("unhandled preapproval status",
			zap.Int64("user_id", int64(userID)),
			zap.String("status", string(verification.Status)))
		return domain.OutcomeNoChange, nil, nil
	}
}

func (s *Service) activate(ctx context.Context, tx *gorm.DB, userID snowflake.ID, verification preapprovaldomain.Verification) (domain.ApplyOutcome, *domain.Subscription, error) {
	now := s.clock.Now()

	periodEnd := now.AddDate(0, 1, 0)
	if verification.NextPaymentDate != nil && verification.NextPaymentDate.After(now) {
		periodEnd = *verification.NextPaymentDate
	}

	record := &domain.Subscription{
		ID:                     s.genID.Generate(),
		UserID:                 userID,
		Tier:                   verification.Tier,
		Status:                 domain.SubscriptionStatusActive,
		PaymentMethod:          transactiondomain.ProviderMercadoPago,
		ProviderSubscriptionID: verification.PreapprovalID,
		CurrentPeriodStart:     now,
		CurrentPeriodEnd:       periodEnd,
		CancelAtPeriodEnd:      false,
		CanceledAt:             nil,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := s.repo.Upsert(ctx, tx, record); err != nil {
		s.log.Error("failed to upsert subscription",
			zap.Int64("user_id", int64(userID)),
			zap.Error(err))
		return domain.OutcomeNoChange, nil, err
	}

	// Read back the canonical row; on conflict the stored id is the one from
	// the original insert, not the one generated above.
	stored, err := s.repo.FindByUserID(ctx, tx, userID)
	if err != nil {
		return domain.OutcomeNoChange, nil, err
	}
	if stored == nil {
		stored = record
	}

	s.log.Info("subscription activated",
		zap.Int64("user_id", int64(userID)),
		zap.String("tier", string(verification.Tier)),
		zap.Time("period_end", periodEnd))
	return domain.OutcomeActivated, stored, nil
}

func (s *Service) scheduleCancel(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (domain.ApplyOutcome, *domain.Subscription, error) {
	existing, err := s.repo.FindByUserID(ctx, tx, userID)
	if err != nil {
		return domain.OutcomeNoChange, nil, err
	}
	if existing == nil {
		// Nothing to cancel. The processor may notify about agreements the
		// engine never activated.
		return domain.OutcomeNoChange, nil, nil
	}
	if existing.CancelAtPeriodEnd || existing.Status == domain.SubscriptionStatusCanceled {
		return domain.OutcomeNoChange, existing, nil
	}

	now := s.clock.Now()
	if err := s.repo.ScheduleCancel(ctx, tx, userID, now); err != nil {
		s.log.Error("failed to schedule cancel",
			zap.Int64("user_id", int64(userID)),
			zap.Error(err))
		return domain.OutcomeNoChange, nil, err
	}

	existing.Status = domain.SubscriptionStatusCanceled
	existing.CancelAtPeriodEnd = true
	existing.CanceledAt = &now
	existing.UpdatedAt = now

	s.log.Info("subscription cancel scheduled",
		zap.Int64("user_id", int64(userID)),
		zap.Time("period_end", existing.CurrentPeriodEnd))
	return domain.OutcomeCancelScheduled, existing, nil
}

func (s *Service) GetByUserID(ctx context.Context, userID snowflake.ID) (*domain.Subscription, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	return s.repo.FindByUserID(ctx, s.db, userID)
}

func (s *Service) EffectiveTier(ctx context.Context, userID snowflake.ID, at time.Time) (config.Tier, error) {
	subscription, err := s.GetByUserID(ctx, userID)
	if err != nil {
		return config.TierFree, err
	}
	return subscription.EffectiveTier(at), nil
}
