package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/wearly/wearly/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"tier",
				"status",
				"payment_method",
				"provider_subscription_id",
				"current_period_start",
				"current_period_end",
				"cancel_at_period_end",
				"canceled_at",
				"updated_at",
			}),
		}).
		Create(subscription).Error
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&subscription).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *repo) ScheduleCancel(ctx context.Context, db *gorm.DB, userID snowflake.ID, canceledAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, cancel_at_period_end = ?, canceled_at = ?, updated_at = ?
		 WHERE user_id = ? AND cancel_at_period_end = ?`,
		subscriptiondomain.SubscriptionStatusCanceled,
		true,
		canceledAt,
		canceledAt,
		userID,
		false,
	).Error
}
