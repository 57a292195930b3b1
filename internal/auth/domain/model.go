// Package domain contains account and session models for caller identity.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

type User struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	Email        string       `json:"email" gorm:"type:text;not null;uniqueIndex"`
	DisplayName  string       `json:"display_name" gorm:"type:text"`
	PasswordHash string       `json:"-" gorm:"type:text;not null"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// UserSession is one issued bearer token. Only the sha256 of the token is
// stored; the plaintext exists exactly once in the login response.
type UserSession struct {
	ID        snowflake.ID   `gorm:"primaryKey"`
	UserID    snowflake.ID   `gorm:"not null;index"`
	TokenHash string         `gorm:"type:text;not null;uniqueIndex"`
	Scopes    pq.StringArray `gorm:"type:text[]"`
	ExpiresAt time.Time      `gorm:"not null"`
	RevokedAt *time.Time     `gorm:""`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UserSession) TableName() string { return "user_sessions" }
