package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	rateLimitPerIP   = 200
	rateLimitPerUser = 100
	limiterIdleTTL   = 10 * time.Minute
)

type keyedLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// newKeyedLimiter — perMinute запросов в минуту на ключ, с запасом в perMinute.
func newKeyedLimiter(perMinute int) *keyedLimiter {
	return &keyedLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
	}
}

func (k *keyedLimiter) allow(key string, now time.Time) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(k.limit, k.burst)}
		k.entries[key] = e
		if len(k.entries) > 1024 {
			k.sweep(now)
		}
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

// sweep удаляет давно не виденные ключи.
func (k *keyedLimiter) sweep(now time.Time) {
	for key, e := range k.entries {
		if now.Sub(e.seen) > limiterIdleTTL {
			delete(k.entries, key)
		}
	}
}

// RateLimit ограничивает запросы по IP и по user_id (если есть в контексте). 429 при превышении.
func RateLimit() func(http.Handler) http.Handler {
	byIP := newKeyedLimiter(rateLimitPerIP)
	byUser := newKeyedLimiter(rateLimitPerUser)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			if !byIP.allow(clientIP(r), now) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			if userID := GetUserID(r.Context()); userID != "" {
				if !byUser.allow("u:"+userID, now) {
					http.Error(w, "too many requests", http.StatusTooManyRequests)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if x := r.Header.Get("X-Real-Ip"); x != "" {
		return x
	}
	if x := r.Header.Get("X-Forwarded-For"); x != "" {
		if i := strings.IndexByte(x, ','); i >= 0 {
			x = x[:i]
		}
		return strings.TrimSpace(x)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
