// Package lock provides per-key mutual exclusion for auction mutations.
//
// Every write to an auction (bids, activation, cancellation, settlement)
// happens while holding that auction's lock, which serialises writers across
// all API instances. Two implementations share one contract: RedisLocker for
// multi-instance deployments and LocalLocker for single-process ones, so the
// services above never know which is wired.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when the lock could not be obtained within the
// caller's wait budget. The protected operation was not attempted.
var ErrNotAcquired = errors.New("lock: wait budget exhausted")

// defaultRetryInterval is the pause between acquisition attempts while a key
// is held by someone else.
const defaultRetryInterval = 10 * time.Millisecond

// Locker is the per-key mutual exclusion contract.
//
// Acquire blocks up to wait for exclusive ownership of key and returns an
// opaque owner token. The lock expires on its own after ttl, so a crashed
// holder cannot wedge the key forever.
//
// Release gives the key up only while token still owns it; a stale or foreign
// token makes Release a silent no-op, which keeps an expired-then-reacquired
// lock safe from its previous holder.
type Locker interface {
	Acquire(ctx context.Context, key string, wait, ttl time.Duration) (token string, err error)
	Release(ctx context.Context, key, token string) error
}
