package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Compare-and-delete: only the holder's token may remove the key, so an
// expired lock reacquired by someone else survives a late release.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var ErrLockerNotConfigured = errors.New("locker_not_configured")

// Locker hands out single-holder leases with a fixed expiry. The TTL bounds
// how long a crashed holder can keep a reference blocked.
type Locker struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(releaseScript),
		ttl:    ttl,
	}
}

// TryLock attempts to take the lease. On success it returns an opaque token
// the holder must present to Release; false with a nil error means another
// holder has the key.
func (l *Locker) TryLock(ctx context.Context, key string) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, ErrLockerNotConfigured
	}
	if key == "" {
		return "", false, errors.New("empty_lock_key")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lease if the token still owns it. Releasing a lock that
// already expired or changed hands is a no-op.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}
