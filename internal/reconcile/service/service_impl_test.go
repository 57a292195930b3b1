package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/wearly/wearly/internal/clock"
	"github.com/wearly/wearly/internal/config"
	preapprovaldomain "github.com/wearly/wearly/internal/preapproval/domain"
	"github.com/wearly/wearly/internal/reconcile/domain"
	subscriptiondomain "github.com/wearly/wearly/internal/subscription/domain"
	subscriptionrepository "github.com/wearly/wearly/internal/subscription/repository"
	subscriptionservice "github.com/wearly/wearly/internal/subscription/service"
	transactiondomain "github.com/wearly/wearly/internal/transaction/domain"
	transactionrepository "github.com/wearly/wearly/internal/transaction/repository"
	transactionservice "github.com/wearly/wearly/internal/transaction/service"
	usagedomain "github.com/wearly/wearly/internal/usage/domain"
	usagerepository "github.com/wearly/wearly/internal/usage/repository"
	usageservice "github.com/wearly/wearly/internal/usage/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type verifierStub struct {
	verification preapprovaldomain.Verification
	err          error
	calls        int
}

func (v *verifierStub) Verify(ctx context.Context, req preapprovaldomain.VerifyRequest) (preapprovaldomain.Verification, error) {
	v.calls++
	if v.err != nil {
		return preapprovaldomain.Verification{}, v.err
	}
	return v.verification, nil
}

type fixture struct {
	svc      domain.Service
	usageSvc usagedomain.Service
	db       *gorm.DB
	fake     *clock.FakeClock
	verifier *verifierStub
}

func newFixture(t *testing.T, verifier *verifierStub) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error
	prepareSchema(t, db)

	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	catalog := config.NewStaticPlanCatalog(config.DefaultPlanTable())

	txSvc := transactionservice.NewService(transactionservice.ServiceParam{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  transactionrepository.Provide(),
	})
	subSvc := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  subscriptionrepository.Provide(),
	})
	usageSvc := usageservice.NewService(usageservice.ServiceParam{
		DB:      db,
		Log:     log,
		GenID:   node,
		Clock:   fake,
		Catalog: catalog,
		SubSvc:  subSvc,
		Repo:    usagerepository.Provide(),
	})

	svc := NewService(ServiceParam{
		DB:       db,
		Log:      log,
		Metrics:  nil,
		Limiter:  nil,
		Verifier: verifier,
		TxSvc:    txSvc,
		SubSvc:   subSvc,
		UsageSvc: usageSvc,
	})

	return &fixture{svc: svc, usageSvc: usageSvc, db: db, fake: fake, verifier: verifier}
}

func prepareSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	statements := []string{
		`CREATE TABLE payment_transactions (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			provider TEXT NOT NULL,
			provider_transaction_id TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			metadata JSON,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX uidx_payment_tx_provider_txid
			ON payment_transactions (provider, provider_transaction_id)`,
		`CREATE TABLE subscriptions (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			tier TEXT NOT NULL,
			status TEXT NOT NULL,
			payment_method TEXT,
			provider_subscription_id TEXT,
			current_period_start DATETIME NOT NULL,
			current_period_end DATETIME NOT NULL,
			cancel_at_period_end BOOLEAN NOT NULL DEFAULT FALSE,
			canceled_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX uidx_subscriptions_user ON subscriptions (user_id)`,
		`CREATE TABLE usage_metrics (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			tier TEXT NOT NULL,
			generations_used INTEGER NOT NULL DEFAULT 0,
			generations_limit INTEGER NOT NULL,
			period_start DATETIME NOT NULL,
			period_end DATETIME NOT NULL,
			last_reset_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX uidx_usage_metrics_user_period
			ON usage_metrics (user_id, period_start)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("prepare schema: %v", err)
		}
	}
}

func authorizedVerification() preapprovaldomain.Verification {
	next := time.Date(2026, time.September, 28, 12, 0, 0, 0, time.UTC)
	return preapprovaldomain.Verification{
		Status:            preapprovaldomain.PreapprovalStatusAuthorized,
		Tier:              config.TierPro,
		PreapprovalID:     "mp-preapproval-1",
		PayerID:           "98765",
		NextPaymentDate:   &next,
		Amount:            2999,
		Currency:          "ARS",
		ExternalReference: "123_pro",
	}
}

func TestReconcileAuthorized(t *testing.T) {
	f := newFixture(t, &verifierStub{verification: authorizedVerification()})

	result, err := f.svc.Reconcile(context.Background(), domain.Request{
		UserID:            snowflake.ID(123),
		ExternalReference: "123_pro",
		Source:            domain.SourceReturn,
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Idempotent {
		t.Fatal("first reconcile must not be idempotent")
	}
	if result.Status != transactiondomain.TransactionStatusApproved {
		t.Fatalf("expected approved, got %s", result.Status)
	}
	if result.Outcome != subscriptiondomain.OutcomeActivated {
		t.Fatalf("expected activated, got %s", result.Outcome)
	}

	var status string
	if err := f.db.Raw(`SELECT status FROM payment_transactions WHERE provider_transaction_id = ?`, "mp-preapproval-1").Scan(&status).Error; err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if status != "approved" {
		t.Fatalf("expected ledger approved, got %q", status)
	}

	var limit int
	if err := f.db.Raw(`SELECT generations_limit FROM usage_metrics WHERE user_id = ?`, 123).Scan(&limit).Error; err != nil {
		t.Fatalf("read usage: %v", err)
	}
	if limit != 300 {
		t.Fatalf("expected pro limit 300, got %d", limit)
	}
}

func TestReconcileReplayIsIdempotent(t *testing.T) {
	f := newFixture(t, &verifierStub{verification: authorizedVerification()})
	ctx := context.Background()
	req := domain.Request{
		UserID:            snowflake.ID(123),
		ExternalReference: "123_pro",
		Source:            domain.SourceWebhook,
	}

	if _, err := f.svc.Reconcile(ctx, req); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	// Consume some credits, then replay the same notification.
	for i := 0; i < 7; i++ {
		if err := f.usageSvc.IncrementUsage(ctx, req.UserID); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}

	result, err := f.svc.Reconcile(ctx, req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !result.Idempotent {
		t.Fatal("replay must report idempotent")
	}

	var used int
	if err := f.db.Raw(`SELECT generations_used FROM usage_metrics WHERE user_id = ?`, 123).Scan(&used).Error; err != nil {
		t.Fatalf("read used: %v", err)
	}
	if used != 7 {
		t.Fatalf("replay must not re-zero credits, got used=%d", used)
	}

	var count int
	if err := f.db.Raw(`SELECT COUNT(1) FROM payment_transactions`).Scan(&count).Error; err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single ledger row, got %d", count)
	}
}

func TestReconcileRejectionLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, &verifierStub{err: preapprovaldomain.ErrAmountMismatch})

	_, err := f.svc.Reconcile(context.Background(), domain.Request{
		UserID:            snowflake.ID(123),
		ExternalReference: "123_pro",
		Source:            domain.SourceReturn,
	})
	if !errors.Is(err, preapprovaldomain.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}

	for _, table := range []string{"payment_transactions", "subscriptions", "usage_metrics"} {
		var count int
		if err := f.db.Raw(`SELECT COUNT(1) FROM ` + table).Scan(&count).Error; err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if count != 0 {
			t.Fatalf("rejection must write nothing to %s, found %d rows", table, count)
		}
	}
}

func TestReconcileCancelled(t *testing.T) {
	verifier := &verifierStub{verification: authorizedVerification()}
	f := newFixture(t, verifier)
	ctx := context.Background()
	req := domain.Request{
		UserID:            snowflake.ID(123),
		ExternalReference: "123_pro",
		Source:            domain.SourceWebhook,
	}

	if _, err := f.svc.Reconcile(ctx, req); err != nil {
		t.Fatalf("activation: %v", err)
	}

	cancelled := authorizedVerification()
	cancelled.Status = preapprovaldomain.PreapprovalStatusCancelled
	cancelled.PreapprovalID = "mp-preapproval-2"
	verifier.verification = cancelled

	result, err := f.svc.Reconcile(ctx, req)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if result.Status != transactiondomain.TransactionStatusCancelled {
		t.Fatalf("expected cancelled, got %s", result.Status)
	}
	if result.Outcome != subscriptiondomain.OutcomeCancelScheduled {
		t.Fatalf("expected cancel_scheduled, got %s", result.Outcome)
	}

	// Paid access holds through the already-paid period.
	var cancelAtPeriodEnd bool
	if err := f.db.Raw(`SELECT cancel_at_period_end FROM subscriptions WHERE user_id = ?`, 123).Scan(&cancelAtPeriodEnd).Error; err != nil {
		t.Fatalf("read subscription: %v", err)
	}
	if !cancelAtPeriodEnd {
		t.Fatal("expected cancel_at_period_end set")
	}
}

func TestReconcilePausedLeavesLedgerPending(t *testing.T) {
	paused := authorizedVerification()
	paused.Status = preapprovaldomain.PreapprovalStatusPaused
	f := newFixture(t, &verifierStub{verification: paused})

	result, err := f.svc.Reconcile(context.Background(), domain.Request{
		UserID:            snowflake.ID(123),
		ExternalReference: "123_pro",
		Source:            domain.SourceWebhook,
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Outcome != subscriptiondomain.OutcomeNoChange {
		t.Fatalf("expected no_change, got %s", result.Outcome)
	}

	var status string
	if err := f.db.Raw(`SELECT status FROM payment_transactions WHERE provider_transaction_id = ?`, "mp-preapproval-1").Scan(&status).Error; err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if status != "pending" {
		t.Fatalf("expected pending ledger row, got %q", status)
	}

	var count int
	if err := f.db.Raw(`SELECT COUNT(1) FROM subscriptions`).Scan(&count).Error; err != nil {
		t.Fatalf("count subscriptions: %v", err)
	}
	if count != 0 {
		t.Fatalf("paused must not create a subscription, found %d", count)
	}
}
