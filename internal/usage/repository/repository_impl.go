package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/wearly/wearly/internal/usage/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, metrics *usagedomain.UsageMetrics) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "period_start"}},
			DoNothing: true,
		}).
		Create(metrics).Error
}

// UpsertPlan replaces the period row's plan and counters in place. A free
// row created lazily earlier in the month must not survive an upgrade with
// the old limit, so the conflict path overwrites rather than skips.
func (r *repo) UpsertPlan(ctx context.Context, db *gorm.DB, metrics *usagedomain.UsageMetrics) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "period_start"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"tier", "generations_used", "generations_limit",
				"period_end", "last_reset_at", "updated_at",
			}),
		}).
		Create(metrics).Error
}

func (r *repo) FindByUserPeriod(ctx context.Context, db *gorm.DB, userID snowflake.ID, periodStart time.Time) (*usagedomain.UsageMetrics, error) {
	var metrics usagedomain.UsageMetrics
	err := db.WithContext(ctx).
		Where("user_id = ? AND period_start = ?", userID, periodStart).
		First(&metrics).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &metrics, nil
}

// IncrementIfUnderLimit is the only writer of generations_used. The WHERE
// clause makes check-and-increment a single atomic statement; a zero row
// count means the limit was already reached.
func (r *repo) IncrementIfUnderLimit(ctx context.Context, db *gorm.DB, userID snowflake.ID, periodStart, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE usage_metrics
		 SET generations_used = generations_used + 1, updated_at = ?
		 WHERE user_id = ? AND period_start = ?
		   AND (generations_limit = ? OR generations_used < generations_limit)`,
		now,
		userID,
		periodStart,
		-1,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
