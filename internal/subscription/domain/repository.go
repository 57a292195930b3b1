package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Upsert inserts a subscription for the user or refreshes the existing
	// row. The user_id unique index is the conflict target.
	Upsert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Subscription, error)
	// ScheduleCancel flags the user's subscription for end-of-period
	// cancellation without downgrading it immediately.
	ScheduleCancel(ctx context.Context, db *gorm.DB, userID snowflake.ID, canceledAt time.Time) error
}
