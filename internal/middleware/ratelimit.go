package middleware

import (
	"net/http"
	"sync"
	"time"

	"devfeed/internal/utils"

	"golang.org/x/time/rate"
)

// UserRateLimiter keeps one token bucket per authenticated user. Buckets idle
// for longer than a full refill are dropped; a fresh bucket is equivalent.
type UserRateLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu        sync.Mutex
	limiters  map[string]*userLimiter
	lastSweep time.Time
}

type userLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewUserRateLimiter allows perMinute requests per user with an equal burst.
func NewUserRateLimiter(perMinute int) *UserRateLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &UserRateLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		idleTTL:  time.Minute,
		now:      time.Now,
		limiters: make(map[string]*userLimiter),
	}
}

func (l *UserRateLimiter) limiter(userID string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}
	entry, ok := l.limiters[userID]
	if !ok {
		entry = &userLimiter{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[userID] = entry
	}
	entry.lastSeen = now
	return entry.lim
}

// sweep drops idle buckets. Callers hold mu.
func (l *UserRateLimiter) sweep(now time.Time) {
	for id, entry := range l.limiters {
		if now.Sub(entry.lastSeen) >= l.idleTTL {
			delete(l.limiters, id)
		}
	}
	l.lastSweep = now
}

// Tracked reports how many users currently hold a bucket.
func (l *UserRateLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Allow reports whether userID may make another request now.
func (l *UserRateLimiter) Allow(userID string) bool {
	now := l.now()
	return l.limiter(userID, now).AllowN(now, 1)
}

// Limit must run after Authenticate.
func (l *UserRateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserIDFromContext(r.Context())
		if !ok {
			writeError(w, utils.NewUnauthorizedError("missing identity"))
			return
		}
		if !l.Allow(userID) {
			w.Header().Set("Retry-After", "60")
			writeError(w, utils.NewAppError(utils.ErrTooManyRequests, "Too many requests, please slow down", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}
