package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/wearly/wearly/internal/config"
	"go.uber.org/zap"
)

const (
	keyGenerationUser = "generation:user:%d"
	keyReconcileLock  = "reconcile:lock:%s"

	reconcileLockTTL = 30 * time.Second
)

// GenerationLimiter throttles generation requests per user. It is a burst
// guard in front of the credit ledger, not the quota itself; when redis is
// unreachable requests pass through and the ledger stays authoritative.
type GenerationLimiter struct {
	log    *zap.Logger
	bucket *TokenBucket
	locker *Locker
	rate   float64
	burst  int
}

func NewGenerationLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *GenerationLimiter {
	return &GenerationLimiter{
		log:    log.Named("ratelimit"),
		bucket: NewTokenBucket(client),
		locker: NewLocker(client, reconcileLockTTL),
		rate:   cfg.GenerationRate,
		burst:  cfg.GenerationBurst,
	}
}

func (l *GenerationLimiter) AllowUser(ctx context.Context, userID snowflake.ID) bool {
	if l == nil || l.bucket == nil {
		return true
	}
	allowed, err := l.bucket.Allow(ctx, fmt.Sprintf(keyGenerationUser, userID), l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limiter unavailable, allowing request", zap.Error(err))
		return true
	}
	return allowed
}

// TryLockReference takes a short mutex on a checkout reference so the
// webhook and the user-return path do not reconcile the same payment at the
// same instant. Best effort: when redis is down the caller proceeds and the
// ledger fast path absorbs the race.
func (l *GenerationLimiter) TryLockReference(ctx context.Context, reference string) (string, bool) {
	if l == nil || l.locker == nil {
		return "", true
	}
	token, ok, err := l.locker.TryLock(ctx, fmt.Sprintf(keyReconcileLock, reference))
	if err != nil {
		l.log.Warn("reference lock unavailable, proceeding", zap.Error(err))
		return "", true
	}
	return token, ok
}

func (l *GenerationLimiter) ReleaseReference(ctx context.Context, reference, token string) {
	if l == nil || l.locker == nil || token == "" {
		return
	}
	if err := l.locker.Release(ctx, fmt.Sprintf(keyReconcileLock, reference), token); err != nil {
		l.log.Warn("failed to release reference lock", zap.Error(err))
	}
}
