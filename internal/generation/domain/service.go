// Package domain defines the AI-styling generation surface. The engine
// itself is a collaborator behind the Generator interface; this package owns
// the order of gates around it: burst limiter, then credit check, then the
// engine, and a credit is consumed only after the engine succeeds.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/wearly/wearly/internal/config"
)

type GenerateRequest struct {
	UserID    snowflake.ID
	Prompt    string
	GarmentID string
}

// GeneratedLook is the engine's output for one styling request.
type GeneratedLook struct {
	ID        snowflake.ID `json:"id"`
	ImageURL  string       `json:"image_url"`
	Prompt    string       `json:"prompt"`
	CreatedAt time.Time    `json:"created_at"`
}

type GenerateResult struct {
	Look      GeneratedLook
	Tier      config.Tier
	Remaining int
}

// Generator produces a styled look. Implementations call the actual image
// model; failures must be side-effect free so the caller can skip charging.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (GeneratedLook, error)
}

type Service interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}

var (
	ErrInvalidPrompt = errors.New("invalid_prompt")
	// ErrLimitReached is the user-facing quota denial: not a failure, the
	// monthly credit is simply spent.
	ErrLimitReached = errors.New("limit_reached")
	// ErrTooManyRequests is the burst-limiter denial.
	ErrTooManyRequests = errors.New("too_many_requests")
	ErrEngineFailed    = errors.New("generation_failed")
)
