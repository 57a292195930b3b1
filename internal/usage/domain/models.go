// Package domain contains the per-period generation-credit ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/wearly/wearly/internal/config"
)

// UsageMetrics is one user's credit row for one calendar month. The
// (user_id, period_start) pair is unique; generations_used only moves
// through the conditional increment.
type UsageMetrics struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	UserID           snowflake.ID `gorm:"not null;uniqueIndex:uidx_usage_metrics_user_period"`
	Tier             config.Tier  `gorm:"type:text;not null"`
	GenerationsUsed  int          `gorm:"not null;default:0"`
	GenerationsLimit int          `gorm:"not null"`
	PeriodStart      time.Time    `gorm:"not null;uniqueIndex:uidx_usage_metrics_user_period"`
	PeriodEnd        time.Time    `gorm:"not null"`
	LastResetAt      time.Time    `gorm:"not null"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageMetrics) TableName() string { return "usage_metrics" }

// Remaining returns the credits left in the period, -1 when unlimited.
func (m *UsageMetrics) Remaining() int {
	if m.GenerationsLimit == config.UnlimitedGenerations {
		return config.UnlimitedGenerations
	}
	remaining := m.GenerationsLimit - m.GenerationsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// PeriodBounds returns the UTC calendar-month window containing the instant.
func PeriodBounds(at time.Time) (time.Time, time.Time) {
	at = at.UTC()
	start := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
