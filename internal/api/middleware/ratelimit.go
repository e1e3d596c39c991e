package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────────────────
// Per-IP rate limiting
// ──────────────────────────────────────────────────────────────────────────────

// ipBucket tracks one client's remaining allowance. Tokens refill continuously
// at the limiter's rate; each request spends one.
type ipBucket struct {
	mu       sync.Mutex
	tokens   float64
	refillAt time.Time
}

// spend refills the bucket for the elapsed time, then tries to deduct one
// token. Returns false when the allowance is exhausted.
func (b *ipBucket) spend(rate, burst float64, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens += now.Sub(b.refillAt).Seconds() * rate
	if b.tokens > burst {
		b.tokens = burst
	}
	b.refillAt = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// ipLimiter maps client IPs to their buckets. Buckets idle past staleAfter
// are evicted by a background sweep so the map stays bounded.
type ipLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*ipBucket
	rate    float64
	burst   float64
}

const (
	bucketSweepEvery = 5 * time.Minute
	bucketStaleAfter = 10 * time.Minute
)

func newIPLimiter(rps int) *ipLimiter {
	// Burst of at least 10 so page loads firing a handful of requests at
	// once are not punished; sustained traffic is still capped at rps.
	burst := float64(rps)
	if burst < 10 {
		burst = 10
	}
	return &ipLimiter{
		buckets: make(map[string]*ipBucket),
		rate:    float64(rps),
		burst:   burst,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	now := time.Now()

	l.mu.RLock()
	b, ok := l.buckets[ip]
	l.mu.RUnlock()

	if !ok {
		l.mu.Lock()
		if b, ok = l.buckets[ip]; !ok {
			// First sight of this IP: a full bucket, minus this request.
			b = &ipBucket{tokens: l.burst, refillAt: now}
			l.buckets[ip] = b
		}
		l.mu.Unlock()
	}

	return b.spend(l.rate, l.burst, now)
}

// sweep drops buckets that have not been touched within staleAfter.
func (l *ipLimiter) sweep() {
	cutoff := time.Now().Add(-bucketStaleAfter)
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, b := range l.buckets {
		b.mu.Lock()
		stale := b.refillAt.Before(cutoff)
		b.mu.Unlock()
		if stale {
			delete(l.buckets, ip)
		}
	}
}

// RateLimitMiddleware caps each client IP at rps requests per second using a
// token bucket. Clients over the cap receive 429 Too Many Requests.
func RateLimitMiddleware(rps int) gin.HandlerFunc {
	l := newIPLimiter(rps)

	go func() {
		ticker := time.NewTicker(bucketSweepEvery)
		defer ticker.Stop()
		for range ticker.C {
			l.sweep()
		}
	}()

	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "too many requests, please slow down",
			})
			return
		}
		c.Next()
	}
}
