package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// holder records who owns a key and until when.
type holder struct {
	token     string
	expiresAt time.Time
}

// LocalLocker implements Locker inside a single process. It mirrors the
// RedisLocker contract exactly, including TTL expiry and fenced release, so
// deployments without Redis behave the same way minus cross-instance
// exclusion.
type LocalLocker struct {
	mu      sync.Mutex
	holders map[string]holder
	retry   time.Duration
}

// NewLocalLocker creates an empty in-process locker. retryInterval values
// <= 0 fall back to the default.
func NewLocalLocker(retryInterval time.Duration) *LocalLocker {
	if retryInterval <= 0 {
		retryInterval = defaultRetryInterval
	}
	return &LocalLocker{
		holders: make(map[string]holder),
		retry:   retryInterval,
	}
}

// Acquire polls the holder table until the key is free (or its previous
// owner's TTL has lapsed) or the wait budget runs out.
func (l *LocalLocker) Acquire(ctx context.Context, key string, wait, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	deadline := time.Now().Add(wait)

	for {
		now := time.Now()

		l.mu.Lock()
		h, taken := l.holders[key]
		if !taken || now.After(h.expiresAt) {
			l.holders[key] = holder{token: token, expiresAt: now.Add(ttl)}
			l.mu.Unlock()
			return token, nil
		}
		l.mu.Unlock()

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

// Release frees the key only while token still owns it.
func (l *LocalLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.holders[key]; ok && h.token == token {
		delete(l.holders, key)
	}
	return nil
}

// Compile-time interface check.
var _ Locker = (*LocalLocker)(nil)
