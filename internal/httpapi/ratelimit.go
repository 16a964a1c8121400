package httpapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// keyedLimiter hands out one token bucket per key (client IP for the global
// limiter, IP+email for login attempts).
type keyedLimiter struct {
	mu       sync.Mutex
	entries  map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	entryTTL time.Duration
	lastGC   time.Time
}

func newKeyedLimiter(r rate.Limit, burst int) *keyedLimiter {
	if burst < 1 {
		burst = 1
	}
	return &keyedLimiter{
		entries:  make(map[string]*limiterEntry),
		rate:     r,
		burst:    burst,
		entryTTL: 10 * time.Minute,
		lastGC:   time.Now(),
	}
}

// Allow is nil-safe; a nil limiter lets everything through.
func (l *keyedLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastGC) > l.entryTTL {
		l.sweep(now)
	}
	entry, ok := l.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// sweep drops idle entries. Caller holds mu.
func (l *keyedLimiter) sweep(now time.Time) {
	cutoff := now.Add(-l.entryTTL)
	for key, entry := range l.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
	l.lastGC = now
}

func (l *keyedLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *keyedLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.Header("X-RateLimit-Limit", strconv.Itoa(l.burst))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
