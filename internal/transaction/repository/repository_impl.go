package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/wearly/wearly/internal/transaction/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, record *domain.Transaction) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider"}, {Name: "provider_transaction_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"amount", "currency", "status", "metadata", "updated_at",
		}),
	}).Create(record).Error
}

func (r *repo) FindByProviderTransactionID(ctx context.Context, db *gorm.DB, provider, providerTransactionID string) (*domain.Transaction, error) {
	var item domain.Transaction
	err := db.WithContext(ctx).
		Where("provider = ? AND provider_transaction_id = ?", provider, providerTransactionID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	var item domain.Transaction
	err := db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, provider, providerTransactionID string, status domain.TransactionStatus) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_transactions
		 SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE provider = ? AND provider_transaction_id = ?`,
		status,
		provider,
		providerTransactionID,
	).Error
}
