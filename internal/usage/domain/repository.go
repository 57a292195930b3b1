package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertIfAbsent creates the period row unless one already exists for
	// (user_id, period_start). Never touches an existing row's counters.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, metrics *UsageMetrics) error
	// UpsertPlan writes the row for (user_id, period_start), overwriting an
	// existing row's tier, limit and counters with the record's values.
	UpsertPlan(ctx context.Context, db *gorm.DB, metrics *UsageMetrics) error
	FindByUserPeriod(ctx context.Context, db *gorm.DB, userID snowflake.ID, periodStart time.Time) (*UsageMetrics, error)
	// IncrementIfUnderLimit atomically consumes one credit; false means the
	// limit was already reached.
	IncrementIfUnderLimit(ctx context.Context, db *gorm.DB, userID snowflake.ID, periodStart, now time.Time) (bool, error)
}
