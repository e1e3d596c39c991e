package service

import (
	"time"

	"github.com/google/uuid"
)

// auctionLockKey derives the mutual-exclusion key guarding one auction's
// critical section. Every writer of auction state (bids, lifecycle, settle)
// must serialise on this key.
func auctionLockKey(auctionID uuid.UUID) string {
	return "auction:" + auctionID.String()
}

// secondsUntil returns the whole seconds from now until t, floored at zero.
func secondsUntil(t, now time.Time) int64 {
	remaining := int64(t.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}
