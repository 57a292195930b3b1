package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/wearly/wearly/internal/config"
	"gorm.io/gorm"
)

var (
	ErrInvalidUser   = errors.New("invalid_user")
	ErrQuotaExceeded = errors.New("quota_exceeded")
)

// Decision is the quota gate's answer for the current period.
type Decision struct {
	Allowed   bool
	Tier      config.Tier
	Used      int
	Limit     int
	Remaining int
	PeriodEnd time.Time
}

type Service interface {
	// CanGenerate reports whether the user has credit left this period. The
	// period row is created lazily on first call after rollover.
	CanGenerate(ctx context.Context, userID snowflake.ID) (Decision, error)
	// IncrementUsage consumes one credit. Returns ErrQuotaExceeded when the
	// limit was reached, including concurrently.
	IncrementUsage(ctx context.Context, userID snowflake.ID) error
	// ResetForPeriod writes the user's credit row for a period inside the
	// caller's transaction: zero usage and the tier's limit, overwriting a
	// row created earlier in the same period. Callers must screen out
	// replayed billing events before invoking it.
	ResetForPeriod(ctx context.Context, tx *gorm.DB, userID snowflake.ID, tier config.Tier, periodStart time.Time) error
	// GetCurrent returns the user's credit row for the current period,
	// creating it if needed.
	GetCurrent(ctx context.Context, userID snowflake.ID) (*UsageMetrics, error)
}
