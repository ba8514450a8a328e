package lock

import (
	"context"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes the lock only when the caller still owns it, so a
// slow holder cannot release a lock that already expired and was re-acquired.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RefreshLock is an advisory lock with an owner token and TTL-based
// auto-expiry. A stuck lock self-expires instead of blocking refreshes
// forever.
type RefreshLock struct {
	client *redis.Client
	logger zerolog.Logger
}

// New builds the lock. A nil client makes every acquire succeed, which is the
// right behavior for single-process deployments and tests.
func New(client *redis.Client, logger zerolog.Logger) *RefreshLock {
	return &RefreshLock{
		client: client,
		logger: logger,
	}
}

// Acquire takes the lock for key, returning the owner token required to
// release it. acquired is false when another owner currently holds the key.
func (l *RefreshLock) Acquire(ctx context.Context, key string, ttl time.Duration) (token string, acquired bool, err error) {
	token, err = gonanoid.New()
	if err != nil {
		return "", false, fmt.Errorf("failed to generate lock token: %w", err)
	}

	if l.client == nil {
		return token, true, nil
	}

	acquired, err = l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	return token, acquired, nil
}

// Release frees the lock if the token still owns it. Callers treat failures
// as log-only: the lock self-expires.
func (l *RefreshLock) Release(ctx context.Context, key, token string) error {
	if l.client == nil {
		return nil
	}

	deleted, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	if deleted == 0 {
		l.logger.Debug().Str("lock_key", key).Msg("lock already expired or owned elsewhere")
	}
	return nil
}
