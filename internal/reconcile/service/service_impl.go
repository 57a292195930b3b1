package service

import (
	"context"

	"github.com/wearly/wearly/internal/observability/metrics"
	preapprovaldomain "github.com/wearly/wearly/internal/preapproval/domain"
	"github.com/wearly/wearly/internal/ratelimit"
	"github.com/wearly/wearly/internal/reconcile/domain"
	subscriptiondomain "github.com/wearly/wearly/internal/subscription/domain"
	transactiondomain "github.com/wearly/wearly/internal/transaction/domain"
	usagedomain "github.com/wearly/wearly/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Metrics  *metrics.Metrics
	Limiter  *ratelimit.GenerationLimiter
	Verifier preapprovaldomain.Service
	TxSvc    transactiondomain.Service
	SubSvc   subscriptiondomain.Service
	UsageSvc usagedomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	metrics  *metrics.Metrics
	limiter  *ratelimit.GenerationLimiter
	verifier preapprovaldomain.Service
	txSvc    transactiondomain.Service
	subSvc   subscriptiondomain.Service
	usageSvc usagedomain.Service
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("reconcile.service"),
		metrics:  p.Metrics,
		limiter:  p.Limiter,
		verifier: p.Verifier,
		txSvc:    p.TxSvc,
		subSvc:   p.SubSvc,
		usageSvc: p.UsageSvc,
	}
}

// Reconcile drives one billing event from untrusted input to durable state.
// The processor's record is fetched and validated first; nothing below the
// verifier ever sees an unverified claim.
func (s *Service) Reconcile(ctx context.Context, req domain.Request) (domain.Result, error) {
	verification, err := s.verifier.Verify(ctx, preapprovaldomain.VerifyRequest{
		UserID:            req.UserID,
		ExternalReference: req.ExternalReference,
	})
	if err != nil {
		s.recordAttempt(ctx, req.Source, "rejected")
		return domain.Result{}, err
	}

	// Narrow the webhook-vs-return race on the same payment. The ledger
	// fast path below remains the correctness mechanism; this lock only
	// avoids doing the work twice.
	lockToken, acquired := s.limiter.TryLockReference(ctx, req.ExternalReference)
	if !acquired {
		approved, err := s.txSvc.IsApproved(ctx, transactiondomain.ProviderMercadoPago, verification.PreapprovalID)
		if err != nil {
			return domain.Result{}, err
		}
		if approved {
			return s.idempotentResult(ctx, req, verification), nil
		}
		return domain.Result{}, domain.ErrReconcileBusy
	}
	defer s.limiter.ReleaseReference(ctx, req.ExternalReference, lockToken)

	approved, err := s.txSvc.IsApproved(ctx, transactiondomain.ProviderMercadoPago, verification.PreapprovalID)
	if err != nil {
		return domain.Result{}, err
	}
	if approved {
		return s.idempotentResult(ctx, req, verification), nil
	}

	txn, err := s.txSvc.RecordAttempt(ctx, transactiondomain.RecordAttemptRequest{
		UserID:                req.UserID,
		Provider:              transactiondomain.ProviderMercadoPago,
		ProviderTransactionID: verification.PreapprovalID,
		Amount:                verification.Amount,
		Currency:              verification.Currency,
		Status:                transactiondomain.TransactionStatusPending,
		Metadata: map[string]any{
			"source":             string(req.Source),
			"external_reference": verification.ExternalReference,
			"preapproval_status": string(verification.Status),
			"payer_id":           verification.PayerID,
		},
	})
	if err != nil {
		s.recordAttempt(ctx, req.Source, "error")
		return domain.Result{}, err
	}

	switch verification.Status {
	case preapprovaldomain.PreapprovalStatusAuthorized:
		return s.applyAuthorized(ctx, req, verification, txn)

	case preapprovaldomain.PreapprovalStatusCancelled:
		return s.applyCancelled(ctx, req, verification, txn)

	default:
		// Paused or unknown: the attempt is in the ledger, state is
		// untouched.
		s.recordAttempt(ctx, req.Source, "no_change")
		return domain.Result{
			Status:  txn.Status,
			Outcome: subscriptiondomain.OutcomeNoChange,
			Tier:    verification.Tier,
		}, nil
	}
}

// applyAuthorized activates the subscription and seeds the period's credits
// in one transaction. The ledger is marked approved only after that
// transaction commits, so a crash in between replays cleanly: the row is
// still pending and the next delivery redoes idempotent writes.
func (s *Service) applyAuthorized(ctx context.Context, req domain.Request, verification preapprovaldomain.Verification, txn transactiondomain.Transaction) (domain.Result, error) {
	var outcome subscriptiondomain.ApplyOutcome

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, subscription, err := s.subSvc.ApplyVerification(ctx, tx, req.UserID, verification)
		if err != nil {
			return err
		}
		outcome = applied
		return s.usageSvc.ResetForPeriod(ctx, tx, req.UserID, verification.Tier, subscription.CurrentPeriodStart)
	})
	if err != nil {
		s.log.Error("activation transaction failed",
			zap.Int64("user_id", int64(req.UserID)),
			zap.Error(err))
		s.recordAttempt(ctx, req.Source, "error")
		return domain.Result{}, err
	}

	if err := s.txSvc.MarkStatus(ctx, nil, transactiondomain.ProviderMercadoPago, verification.PreapprovalID, transactiondomain.TransactionStatusApproved); err != nil {
		// The activation stands; the still-pending ledger row means the next
		// delivery retries this mark.
		s.log.Error("failed to mark ledger approved",
			zap.Int64("transaction_id", int64(txn.ID)),
			zap.Error(err))
		return domain.Result{}, err
	}

	s.recordAttempt(ctx, req.Source, "approved")
	s.log.Info("billing event reconciled",
		zap.Int64("user_id", int64(req.UserID)),
		zap.String("tier", string(verification.Tier)),
		zap.String("source", string(req.Source)))

	return domain.Result{
		Status:  transactiondomain.TransactionStatusApproved,
		Outcome: outcome,
		Tier:    verification.Tier,
	}, nil
}

func (s *Service) applyCancelled(ctx context.Context, req domain.Request, verification preapprovaldomain.Verification, txn transactiondomain.Transaction) (domain.Result, error) {
	outcome, _, err := s.subSvc.ApplyVerification(ctx, s.db, req.UserID, verification)
	if err != nil {
		s.recordAttempt(ctx, req.Source, "error")
		return domain.Result{}, err
	}

	if err := s.txSvc.MarkStatus(ctx, nil, transactiondomain.ProviderMercadoPago, verification.PreapprovalID, transactiondomain.TransactionStatusCancelled); err != nil {
		return domain.Result{}, err
	}

	s.recordAttempt(ctx, req.Source, "cancelled")
	s.log.Info("cancellation reconciled",
		zap.Int64("user_id", int64(req.UserID)),
		zap.String("source", string(req.Source)))

	return domain.Result{
		Status:  transactiondomain.TransactionStatusCancelled,
		Outcome: outcome,
		Tier:    verification.Tier,
	}, nil
}

func (s *Service) idempotentResult(ctx context.Context, req domain.Request, verification preapprovaldomain.Verification) domain.Result {
	s.recordAttempt(ctx, req.Source, "idempotent")
	return domain.Result{
		Idempotent: true,
		Status:     transactiondomain.TransactionStatusApproved,
		Outcome:    subscriptiondomain.OutcomeNoChange,
		Tier:       verification.Tier,
	}
}

func (s *Service) recordAttempt(ctx context.Context, source domain.Source, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordReconcileAttempt(ctx, string(source), result)
}
