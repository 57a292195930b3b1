package service

import (
	"context"
	"errors"
	"strings"

	"github.com/wearly/wearly/internal/generation/domain"
	"github.com/wearly/wearly/internal/observability/metrics"
	"github.com/wearly/wearly/internal/ratelimit"
	usagedomain "github.com/wearly/wearly/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log       *zap.Logger
	Metrics   *metrics.Metrics `optional:"true"`
	Limiter   *ratelimit.GenerationLimiter
	UsageSvc  usagedomain.Service
	Generator domain.Generator
}

type Service struct {
	log       *zap.Logger
	metrics   *metrics.Metrics
	limiter   *ratelimit.GenerationLimiter
	usageSvc  usagedomain.Service
	generator domain.Generator
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		log:       p.Log.Named("generation.service"),
		metrics:   p.Metrics,
		limiter:   p.Limiter,
		usageSvc:  p.UsageSvc,
		generator: p.Generator,
	}
}

func (s *Service) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResult, error) {
	if req.UserID == 0 {
		return domain.GenerateResult{}, usagedomain.ErrInvalidUser
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return domain.GenerateResult{}, domain.ErrInvalidPrompt
	}

	if !s.limiter.AllowUser(ctx, req.UserID) {
		s.recordRateLimitDenied(ctx)
		return domain.GenerateResult{}, domain.ErrTooManyRequests
	}

	decision, err := s.usageSvc.CanGenerate(ctx, req.UserID)
	if err != nil {
		return domain.GenerateResult{}, err
	}
	if !decision.Allowed {
		s.recordQuotaDenied(ctx, string(decision.Tier))
		return domain.GenerateResult{}, domain.ErrLimitReached
	}

	look, err := s.generator.Generate(ctx, req)
	if err != nil {
		// Engine failures are never charged.
		s.log.Warn("generation engine failed",
			zap.Int64("user_id", int64(req.UserID)),
			zap.Error(err))
		s.recordGeneration(ctx, "error")
		return domain.GenerateResult{}, domain.ErrEngineFailed
	}

	if err := s.usageSvc.IncrementUsage(ctx, req.UserID); err != nil {
		if errors.Is(err, usagedomain.ErrQuotaExceeded) {
			// Lost the race for the last credit after the engine already
			// ran. The user still loses: the gate, not the engine, is
			// authoritative.
			s.recordQuotaDenied(ctx, string(decision.Tier))
			return domain.GenerateResult{}, domain.ErrLimitReached
		}
		return domain.GenerateResult{}, err
	}

	s.recordGeneration(ctx, "ok")

	remaining := decision.Remaining
	if remaining > 0 {
		remaining--
	}
	return domain.GenerateResult{
		Look:      look,
		Tier:      decision.Tier,
		Remaining: remaining,
	}, nil
}

func (s *Service) recordGeneration(ctx context.Context, result string) {
	if s.metrics != nil {
		s.metrics.RecordGeneration(ctx, result)
	}
}

func (s *Service) recordQuotaDenied(ctx context.Context, tier string) {
	if s.metrics != nil {
		s.metrics.RecordQuotaDenied(ctx, tier)
	}
}

func (s *Service) recordRateLimitDenied(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.RecordRateLimitDenied(ctx, "stylist.generations")
	}
}
