package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/wearly/wearly/internal/config"
	preapprovaldomain "github.com/wearly/wearly/internal/preapproval/domain"
	"gorm.io/gorm"
)

var (
	ErrInvalidUser         = errors.New("invalid_user")
	ErrSubscriptionMissing = errors.New("subscription_not_found")
)

// ApplyOutcome describes what a verified processor state did to the user's
// subscription.
type ApplyOutcome string

const (
	OutcomeActivated       ApplyOutcome = "activated"
	OutcomeCancelScheduled ApplyOutcome = "cancel_scheduled"
	OutcomeNoChange        ApplyOutcome = "no_change"
)

type Service interface {
	// ApplyVerification transitions the user's subscription according to the
	// verified processor state. Runs inside the caller's transaction.
	ApplyVerification(ctx context.Context, tx *gorm.DB, userID snowflake.ID, verification preapprovaldomain.Verification) (ApplyOutcome, *Subscription, error)
	// GetByUserID returns the user's subscription, nil when none exists.
	GetByUserID(ctx context.Context, userID snowflake.ID) (*Subscription, error)
	// EffectiveTier resolves the tier whose quota applies to the user now.
	EffectiveTier(ctx context.Context, userID snowflake.ID, at time.Time) (config.Tier, error)
}
