package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertUser(ctx context.Context, db *gorm.DB, user *User) error
	FindUserByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error)
	FindUserByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	InsertSession(ctx context.Context, db *gorm.DB, session *UserSession) error
	FindSessionByTokenHash(ctx context.Context, db *gorm.DB, tokenHash string) (*UserSession, error)
}
