package service

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/wearly/wearly/internal/config"
	"github.com/wearly/wearly/internal/preapproval/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// amountEpsilon absorbs float representation noise in processor payloads.
const amountEpsilon = 0.005

type ServiceParam struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Catalog *config.PlanCatalog
	Fetcher domain.Fetcher
}

type Service struct {
	log      *zap.Logger
	catalog  *config.PlanCatalog
	fetcher  domain.Fetcher
	currency string
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		log:      p.Log.Named("preapproval.service"),
		catalog:  p.Catalog,
		fetcher:  p.Fetcher,
		currency: strings.ToUpper(strings.TrimSpace(p.Cfg.SettlementCurrency)),
	}
}

// ParseReference splits a "{userId}_{tier}" checkout reference. The tier
// segment must name a paid tier; free is never a checkout target.
func ParseReference(reference string) (snowflake.ID, config.Tier, error) {
	reference = strings.TrimSpace(reference)
	parts := strings.SplitN(reference, "_", 2)
	if len(parts) != 2 {
		return 0, "", domain.ErrInvalidReference
	}

	rawID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || rawID <= 0 {
		return 0, "", domain.ErrInvalidReference
	}

	tier, ok := config.ParseTier(parts[1])
	if !ok || !config.PaidTier(tier) {
		return 0, "", domain.ErrInvalidReference
	}

	return snowflake.ID(rawID), tier, nil
}

func (s *Service) Verify(ctx context.Context, req domain.VerifyRequest) (domain.Verification, error) {
	refUserID, tier, err := ParseReference(req.ExternalReference)
	if err != nil {
		return domain.Verification{}, err
	}

	// A missing identity is an authentication failure, not an ownership one.
	if req.UserID == 0 {
		return domain.Verification{}, domain.ErrIdentityRequired
	}

	// Identity binding: a caller may only reconcile their own payment.
	if refUserID != req.UserID {
		s.log.Warn("reference user does not match caller",
			zap.String("reference", req.ExternalReference),
			zap.Int64("caller", int64(req.UserID)))
		return domain.Verification{}, domain.ErrReferenceForbidden
	}

	plan, ok := s.catalog.Plan(tier)
	if !ok {
		return domain.Verification{}, domain.ErrInvalidReference
	}

	fetched, err := s.fetcher.FindByExternalReference(ctx, req.ExternalReference)
	if err != nil {
		return domain.Verification{}, err
	}

	// The reference is the only unverified input; the processor's own record
	// is ground truth. Any disagreement is rejected, never partially accepted.
	if fetched.ExternalReference != strings.TrimSpace(req.ExternalReference) {
		s.log.Warn("processor record carries a different reference",
			zap.String("supplied", req.ExternalReference),
			zap.String("fetched", fetched.ExternalReference))
		return domain.Verification{}, domain.ErrReferenceMismatch
	}
	if fetched.CurrencyID != s.currency {
		s.log.Error("preapproval currency mismatch",
			zap.String("expected", s.currency),
			zap.String("got", fetched.CurrencyID))
		return domain.Verification{}, domain.ErrCurrencyMismatch
	}
	if math.Abs(fetched.TransactionAmount-plan.Amount) > amountEpsilon {
		s.log.Error("preapproval amount does not match plan price",
			zap.String("tier", string(tier)),
			zap.Float64("expected", plan.Amount),
			zap.Float64("got", fetched.TransactionAmount))
		return domain.Verification{}, domain.ErrAmountMismatch
	}

	return domain.Verification{
		Status:            normalizeStatus(fetched.Status),
		Tier:              tier,
		PreapprovalID:     fetched.ID,
		PayerID:           fetched.PayerID,
		NextPaymentDate:   fetched.NextPaymentDate,
		Amount:            fetched.TransactionAmount,
		Currency:          fetched.CurrencyID,
		ExternalReference: fetched.ExternalReference,
	}, nil
}

func normalizeStatus(raw string) domain.PreapprovalStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "authorized":
		return domain.PreapprovalStatusAuthorized
	case "cancelled":
		return domain.PreapprovalStatusCancelled
	case "paused":
		return domain.PreapprovalStatusPaused
	default:
		return domain.PreapprovalStatusOther
	}
}
