// Package domain contains persistence models and contracts for user
// subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/wearly/wearly/internal/config"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Subscription is a user's recurring-billing agreement. A user has at most
// one row; re-subscribing reuses it.
type Subscription struct {
	ID                     snowflake.ID       `gorm:"primaryKey"`
	UserID                 snowflake.ID       `gorm:"not null;uniqueIndex:uidx_subscriptions_user"`
	Tier                   config.Tier        `gorm:"type:text;not null"`
	Status                 SubscriptionStatus `gorm:"type:text;not null"`
	PaymentMethod          string             `gorm:"type:text"`
	ProviderSubscriptionID string             `gorm:"type:text"`
	CurrentPeriodStart     time.Time          `gorm:"not null"`
	CurrentPeriodEnd       time.Time          `gorm:"not null"`
	CancelAtPeriodEnd      bool               `gorm:"not null;default:false"`
	CanceledAt             *time.Time         `gorm:""`
	CreatedAt              time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// EffectiveTier resolves the tier whose quota applies at the given instant.
// A canceled subscription keeps its paid tier until the end of the
// already-paid period, then falls back to free.
func (s *Subscription) EffectiveTier(at time.Time) config.Tier {
	if s == nil {
		return config.TierFree
	}
	if s.Status == SubscriptionStatusActive {
		return s.Tier
	}
	if s.CancelAtPeriodEnd && at.Before(s.CurrentPeriodEnd) {
		return s.Tier
	}
	return config.TierFree
}
