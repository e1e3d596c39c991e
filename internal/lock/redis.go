package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockLua deletes a lock key only if its value matches the caller's unique
// token. This prevents one holder from releasing another holder's lock after
// a TTL expiry.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// RedisLocker implements Locker using Redis SETNX with a TTL and a Lua-based
// conditional unlock. One Redis key guards one auction, so the lock holds
// across every API instance that shares the Redis endpoint.
type RedisLocker struct {
	rdb      *redis.Client
	unlockSc *redis.Script
	retry    time.Duration
}

// NewRedisLocker creates a RedisLocker on the given client. retryInterval is
// the pause between acquisition attempts; values <= 0 fall back to the
// default.
func NewRedisLocker(rdb *redis.Client, retryInterval time.Duration) *RedisLocker {
	if retryInterval <= 0 {
		retryInterval = defaultRetryInterval
	}
	return &RedisLocker{
		rdb:      rdb,
		unlockSc: redis.NewScript(unlockLua),
		retry:    retryInterval,
	}
}

func lockKey(key string) string {
	return "lock:" + key
}

// Acquire polls SETNX until it wins the key or the wait budget runs out.
func (l *RedisLocker) Acquire(ctx context.Context, key string, wait, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	lk := lockKey(key)
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.rdb.SetNX(ctx, lk, token, ttl).Result()
		if err != nil {
			return "", fmt.Errorf("lock: acquire %s: %w", key, err)
		}
		if ok {
			return token, nil
		}
		if !time.Now().Before(deadline) {
			return "", ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

// Release runs the conditional unlock script. Releasing a key the token no
// longer owns is a no-op, not an error.
func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if err := l.unlockSc.Run(ctx, l.rdb, []string{lockKey(key)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("lock: release %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ Locker = (*RedisLocker)(nil)
