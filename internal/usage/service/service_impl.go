package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/wearly/wearly/internal/clock"
	"github.com/wearly/wearly/internal/config"
	subscriptiondomain "github.com/wearly/wearly/internal/subscription/domain"
	"github.com/wearly/wearly/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Catalog *config.PlanCatalog
	SubSvc  subscriptiondomain.Service
	Repo    domain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	catalog *config.PlanCatalog
	subSvc  subscriptiondomain.Service
	repo    domain.Repository
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("usage.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		catalog: p.Catalog,
		subSvc:  p.SubSvc,
		repo:    p.Repo,
	}
}

func (s *Service) CanGenerate(ctx context.Context, userID snowflake.ID) (domain.Decision, error) {
	metrics, err := s.GetCurrent(ctx, userID)
	if err != nil {
		return domain.Decision{}, err
	}

	allowed := metrics.GenerationsLimit == config.UnlimitedGenerations ||
		metrics.GenerationsUsed < metrics.GenerationsLimit

	return domain.Decision{
		Allowed:   allowed,
		Tier:      metrics.Tier,
		Used:      metrics.GenerationsUsed,
		Limit:     metrics.GenerationsLimit,
		Remaining: metrics.Remaining(),
		PeriodEnd: metrics.PeriodEnd,
	}, nil
}

func (s *Service) IncrementUsage(ctx context.Context, userID snowflake.ID) error {
	if userID == 0 {
		return domain.ErrInvalidUser
	}

	now := s.clock.Now()
	periodStart, _ := domain.PeriodBounds(now)

	// Make sure the period row exists before the conditional update; the
	// first request after a month rollover lands here.
	if _, err := s.ensurePeriodRow(ctx, userID, now); err != nil {
		return err
	}

	consumed, err := s.repo.IncrementIfUnderLimit(ctx, s.db, userID, periodStart, now)
	if err != nil {
		s.log.Error("failed to increment usage",
			zap.Int64("user_id", int64(userID)),
			zap.Error(err))
		return err
	}
	if !consumed {
		return domain.ErrQuotaExceeded
	}
	return nil
}

func (s *Service) ResetForPeriod(ctx context.Context, tx *gorm.DB, userID snowflake.ID, tier config.Tier, periodStart time.Time) error {
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	if tx == nil {
		tx = s.db
	}
	// An upgrade overwrites any row already created this month, including a
	// lazily seeded free row, with the new tier's limit and zero usage.
	// Replays of the same billing event never reach this write; the ledger
	// fast path screens them out upstream.
	return s.repo.UpsertPlan(ctx, tx, s.periodRow(userID, tier, periodStart))
}

func (s *Service) GetCurrent(ctx context.Context, userID snowflake.ID) (*domain.UsageMetrics, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	return s.ensurePeriodRow(ctx, userID, s.clock.Now())
}

func (s *Service) ensurePeriodRow(ctx context.Context, userID snowflake.ID, now time.Time) (*domain.UsageMetrics, error) {
	periodStart, _ := domain.PeriodBounds(now)

	metrics, err := s.repo.FindByUserPeriod(ctx, s.db, userID, periodStart)
	if err != nil {
		return nil, err
	}
	if metrics != nil {
		return metrics, nil
	}

	tier, err := s.subSvc.EffectiveTier(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	// Lazy creation must lose any race against a concurrent writer; only the
	// activation path is allowed to overwrite an existing row.
	if err := s.repo.InsertIfAbsent(ctx, s.db, s.periodRow(userID, tier, periodStart)); err != nil {
		return nil, err
	}

	metrics, err = s.repo.FindByUserPeriod(ctx, s.db, userID, periodStart)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return metrics, nil
}

// periodRow builds a fresh credit row for the tier's plan. Unknown tiers
// fall back to the free plan.
func (s *Service) periodRow(userID snowflake.ID, tier config.Tier, periodStart time.Time) *domain.UsageMetrics {
	plan, ok := s.catalog.Plan(tier)
	if !ok {
		plan, _ = s.catalog.Plan(config.TierFree)
	}

	now := s.clock.Now()
	start, end := domain.PeriodBounds(periodStart)

	return &domain.UsageMetrics{
		ID:               s.genID.Generate(),
		UserID:           userID,
		Tier:             tier,
		GenerationsUsed:  0,
		GenerationsLimit: plan.GenerationsLimit,
		PeriodStart:      start,
		PeriodEnd:        end,
		LastResetAt:      now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
