package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type SignupRequest struct {
	Email       string `json:"email" binding:"required,email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Credentials is the issued bearer token plus its owner.
type Credentials struct {
	User      User   `json:"user"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

type Service interface {
	Signup(ctx context.Context, req SignupRequest) (Credentials, error)
	Login(ctx context.Context, req LoginRequest) (Credentials, error)
	// Authenticate resolves a bearer token to its user. Expired and revoked
	// sessions fail closed.
	Authenticate(ctx context.Context, token string) (User, error)
	GetUser(ctx context.Context, id snowflake.ID) (User, error)
}

var (
	ErrEmailTaken         = errors.New("email_taken")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrUserNotFound       = errors.New("user_not_found")
)
