package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, record *Transaction) error
	FindByProviderTransactionID(ctx context.Context, db *gorm.DB, provider, providerTransactionID string) (*Transaction, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, provider, providerTransactionID string, status TransactionStatus) error
}
