package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type RecordAttemptRequest struct {
	UserID                snowflake.ID
	Provider              string
	ProviderTransactionID string
	Amount                float64
	Currency              string
	Status                TransactionStatus
	Metadata              map[string]any
}

type Service interface {
	// RecordAttempt upserts the ledger row keyed by
	// (provider, provider_transaction_id) and returns the stored row.
	RecordAttempt(ctx context.Context, req RecordAttemptRequest) (Transaction, error)
	// IsApproved reports whether a prior reconciliation run already
	// completed this billing event.
	IsApproved(ctx context.Context, provider, providerTransactionID string) (bool, error)
	// MarkStatus updates the status of an existing ledger row.
	MarkStatus(ctx context.Context, tx *gorm.DB, provider, providerTransactionID string, status TransactionStatus) error
	GetByID(ctx context.Context, id snowflake.ID) (Transaction, error)
}

var (
	ErrInvalidProvider      = errors.New("invalid_provider")
	ErrInvalidTransactionID = errors.New("invalid_transaction_id")
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrTransactionNotFound  = errors.New("transaction_not_found")
)
