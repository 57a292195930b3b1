package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/wearly/wearly/internal/clock"
	"github.com/wearly/wearly/internal/config"
	preapprovaldomain "github.com/wearly/wearly/internal/preapproval/domain"
	subscriptiondomain "github.com/wearly/wearly/internal/subscription/domain"
	"github.com/wearly/wearly/internal/usage/domain"
	"github.com/wearly/wearly/internal/usage/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type subscriptionStub struct {
	tier config.Tier
}

func (s *subscriptionStub) ApplyVerification(ctx context.Context, tx *gorm.DB, userID snowflake.ID, verification preapprovaldomain.Verification) (subscriptiondomain.ApplyOutcome, *subscriptiondomain.Subscription, error) {
	return subscriptiondomain.OutcomeNoChange, nil, nil
}

func (s *subscriptionStub) GetByUserID(ctx context.Context, userID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return nil, nil
}

func (s *subscriptionStub) EffectiveTier(ctx context.Context, userID snowflake.ID, at time.Time) (config.Tier, error) {
	return s.tier, nil
}

func newTestService(t *testing.T, fake *clock.FakeClock, table config.PlanTable, tier config.Tier) (domain.Service, *gorm.DB) {
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
	prepareUsageSchema(t, db)

	service := NewService(ServiceParam{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   mustNode(t),
		Clock:   fake,
		Catalog: config.NewStaticPlanCatalog(table),
		SubSvc:  &subscriptionStub{tier: tier},
		Repo:    repository.Provide(),
	})

	return service, db
}

func prepareUsageSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Exec(`CREATE TABLE usage_metrics (
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
	)`).Error; err != nil {
		t.Fatalf("create usage_metrics: %v", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX uidx_usage_metrics_user_period
		ON usage_metrics (user_id, period_start)`).Error; err != nil {
		t.Fatalf("create usage period index: %v", err)
	}
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func planTableWithLimit(tier config.Tier, limit int) config.PlanTable {
	table := config.DefaultPlanTable()
	plan := table[tier]
	plan.GenerationsLimit = limit
	table[tier] = plan
	return table
}

func TestIncrementUsageStopsAtLimit(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, fake, planTableWithLimit(config.TierFree, 3), config.TierFree)

	userID := snowflake.ID(123)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.IncrementUsage(ctx, userID); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}
	if err := svc.IncrementUsage(ctx, userID); !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	decision, err := svc.CanGenerate(ctx, userID)
	if err != nil {
		t.Fatalf("can generate: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected quota denial")
	}
	if decision.Used != 3 || decision.Remaining != 0 {
		t.Fatalf("unexpected counters used=%d remaining=%d", decision.Used, decision.Remaining)
	}
}

func TestIncrementUsageUnlimited(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, fake, planTableWithLimit(config.TierPremium, config.UnlimitedGenerations), config.TierPremium)

	userID := snowflake.ID(123)
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		if err := svc.IncrementUsage(ctx, userID); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}

	decision, err := svc.CanGenerate(ctx, userID)
	if err != nil {
		t.Fatalf("can generate: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("unlimited plan must always allow")
	}
	if decision.Remaining != config.UnlimitedGenerations {
		t.Fatalf("expected unlimited remaining, got %d", decision.Remaining)
	}
}

func TestIncrementUsageConcurrent(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC))
	svc, db := newTestService(t, fake, planTableWithLimit(config.TierFree, 5), config.TierFree)

	userID := snowflake.ID(123)
	ctx := context.Background()

	// Materialize the period row up front so every goroutine races only on
	// the conditional update.
	if _, err := svc.CanGenerate(ctx, userID); err != nil {
		t.Fatalf("warm up: %v", err)
	}

	const attempts = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.IncrementUsage(ctx, userID); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 5 {
		t.Fatalf("expected exactly 5 grants, got %d", granted)
	}

	var used int
	if err := db.Raw(`SELECT generations_used FROM usage_metrics WHERE user_id = ?`, userID).Scan(&used).Error; err != nil {
		t.Fatalf("read used: %v", err)
	}
	if used != 5 {
		t.Fatalf("expected generations_used 5, got %d", used)
	}
}

func TestPeriodRollover(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC))
	svc, db := newTestService(t, fake, planTableWithLimit(config.TierFree, 2), config.TierFree)

	userID := snowflake.ID(123)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := svc.IncrementUsage(ctx, userID); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}
	if err := svc.IncrementUsage(ctx, userID); !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	// Next month starts a fresh row; credits come back.
	fake.Advance(10 * 24 * time.Hour)
	if err := svc.IncrementUsage(ctx, userID); err != nil {
		t.Fatalf("increment after rollover: %v", err)
	}

	var count int
	if err := db.Raw(`SELECT COUNT(1) FROM usage_metrics WHERE user_id = ?`, userID).Scan(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected two period rows, got %d", count)
	}
}

func TestResetForPeriodUpgradesExistingFreeRow(t *testing.T) {
	now := time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(now)
	svc, db := newTestService(t, fake, config.DefaultPlanTable(), config.TierFree)

	userID := snowflake.ID(123)
	ctx := context.Background()

	// The free row exists before the upgrade: the user already generated
	// this month.
	if err := svc.IncrementUsage(ctx, userID); err != nil {
		t.Fatalf("increment on free: %v", err)
	}
	decision, err := svc.CanGenerate(ctx, userID)
	if err != nil {
		t.Fatalf("can generate: %v", err)
	}
	if decision.Tier != config.TierFree || decision.Limit != 200 || decision.Used != 1 {
		t.Fatalf("unexpected free state tier=%s limit=%d used=%d", decision.Tier, decision.Limit, decision.Used)
	}

	// A first-time pro activation in the same month must replace the free
	// plan, not bounce off the existing row.
	if err := svc.ResetForPeriod(ctx, nil, userID, config.TierPro, now); err != nil {
		t.Fatalf("reset for pro: %v", err)
	}

	decision, err = svc.CanGenerate(ctx, userID)
	if err != nil {
		t.Fatalf("can generate after upgrade: %v", err)
	}
	if decision.Tier != config.TierPro {
		t.Fatalf("tier = %s, want pro", decision.Tier)
	}
	if decision.Limit != 300 {
		t.Fatalf("limit = %d, want 300", decision.Limit)
	}
	if decision.Used != 0 {
		t.Fatalf("used = %d, want 0 after activation", decision.Used)
	}

	var count int
	if err := db.Raw(`SELECT COUNT(1) FROM usage_metrics WHERE user_id = ?`, userID).Scan(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one period row after upgrade, got %d", count)
	}
}

func TestLazyPeriodRowNeverResetsCounters(t *testing.T) {
	now := time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(now)
	svc, db := newTestService(t, fake, config.DefaultPlanTable(), config.TierPro)

	userID := snowflake.ID(123)
	ctx := context.Background()

	if err := svc.ResetForPeriod(ctx, nil, userID, config.TierPro, now); err != nil {
		t.Fatalf("reset: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := svc.IncrementUsage(ctx, userID); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}

	// Reads go through the lazy-creation path; they must see, never touch,
	// the existing row.
	metrics, err := svc.GetCurrent(ctx, userID)
	if err != nil {
		t.Fatalf("get current: %v", err)
	}
	if metrics.GenerationsUsed != 4 {
		t.Fatalf("used = %d, want 4", metrics.GenerationsUsed)
	}

	var used int
	if err := db.Raw(`SELECT generations_used FROM usage_metrics WHERE user_id = ?`, userID).Scan(&used).Error; err != nil {
		t.Fatalf("read used: %v", err)
	}
	if used != 4 {
		t.Fatalf("expected generations_used 4, got %d", used)
	}
}
