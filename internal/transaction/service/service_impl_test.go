package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/wearly/wearly/internal/clock"
	"github.com/wearly/wearly/internal/transaction/domain"
	"github.com/wearly/wearly/internal/transaction/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *gorm.DB) {
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

	if err := db.Exec(`CREATE TABLE payment_transactions (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		provider TEXT NOT NULL,
		provider_transaction_id TEXT NOT NULL,
		amount REAL NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		metadata TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create payment_transactions: %v", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX uidx_payment_tx_provider_txid
		ON payment_transactions (provider, provider_transaction_id)`).Error; err != nil {
		t.Fatalf("create provider index: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	service := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})

	return service, db
}

func TestRecordAttemptKeepsOneRowPerProviderTransaction(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	first, err := svc.RecordAttempt(ctx, domain.RecordAttemptRequest{
		UserID:                7001,
		Provider:              domain.ProviderMercadoPago,
		ProviderTransactionID: "mp-pre-1",
		Amount:                2999,
		Currency:              "ars",
		Status:                domain.TransactionStatusPending,
		Metadata:              map[string]any{"source": "webhook"},
	})
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	if first.Currency != "ARS" {
		t.Fatalf("currency = %q, want normalized ARS", first.Currency)
	}

	second, err := svc.RecordAttempt(ctx, domain.RecordAttemptRequest{
		UserID:                7001,
		Provider:              domain.ProviderMercadoPago,
		ProviderTransactionID: "mp-pre-1",
		Amount:                2999,
		Currency:              "ARS",
		Status:                domain.TransactionStatusPending,
		Metadata:              map[string]any{"source": "return"},
	})
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("replay created a new row: %d vs %d", second.ID, first.ID)
	}

	var count int64
	if err := db.Raw(`SELECT COUNT(*) FROM payment_transactions`).Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("rows = %d, want 1", count)
	}
}

func TestIsApprovedOnlyAfterMarkStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RecordAttempt(ctx, domain.RecordAttemptRequest{
		UserID:                7001,
		Provider:              domain.ProviderMercadoPago,
		ProviderTransactionID: "mp-pre-2",
		Amount:                4999,
		Currency:              "ARS",
		Status:                domain.TransactionStatusPending,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	approved, err := svc.IsApproved(ctx, domain.ProviderMercadoPago, "mp-pre-2")
	if err != nil {
		t.Fatalf("is approved: %v", err)
	}
	if approved {
		t.Fatal("pending row reported approved")
	}

	if err := svc.MarkStatus(ctx, nil, domain.ProviderMercadoPago, "mp-pre-2", domain.TransactionStatusApproved); err != nil {
		t.Fatalf("mark approved: %v", err)
	}

	approved, err = svc.IsApproved(ctx, domain.ProviderMercadoPago, "mp-pre-2")
	if err != nil {
		t.Fatalf("is approved: %v", err)
	}
	if !approved {
		t.Fatal("approved row not reported approved")
	}
}

func TestRecordAttemptValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordAttempt(ctx, domain.RecordAttemptRequest{
		UserID:                7001,
		ProviderTransactionID: "mp-pre-3",
		Status:                domain.TransactionStatusPending,
	})
	if !errors.Is(err, domain.ErrInvalidProvider) {
		t.Fatalf("err = %v, want ErrInvalidProvider", err)
	}

	_, err = svc.RecordAttempt(ctx, domain.RecordAttemptRequest{
		UserID:   7001,
		Provider: domain.ProviderMercadoPago,
		Status:   domain.TransactionStatusPending,
	})
	if !errors.Is(err, domain.ErrInvalidTransactionID) {
		t.Fatalf("err = %v, want ErrInvalidTransactionID", err)
	}

	_, err = svc.RecordAttempt(ctx, domain.RecordAttemptRequest{
		UserID:                7001,
		Provider:              domain.ProviderMercadoPago,
		ProviderTransactionID: "mp-pre-4",
		Status:                domain.TransactionStatus("chargeback"),
	})
	if !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
}

func TestGetByIDUnknownTransaction(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetByID(context.Background(), snowflake.ID(424242))
	if !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Fatalf("err = %v, want ErrTransactionNotFound", err)
	}
}
