package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit 按客户端来源限速：窗口内允许 maxRequests 个请求，
// 匿名的公开下载端点是主要防护对象。
func RateLimit(maxRequests int, window time.Duration) func(http.Handler) http.Handler {
	if maxRequests <= 0 || window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	limiters := &clientLimiters{
		limit:   rate.Every(window / time.Duration(maxRequests)),
		burst:   maxRequests,
		entries: make(map[string]*limiterEntry),
	}
	retryAfter := strconv.Itoa(int(window.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiters.allow(clientKey(r)) {
				w.Header().Set("Retry-After", retryAfter)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type clientLimiters struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func (c *clientLimiters) allow(key string) bool {
	now := time.Now()

	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.entries[key] = entry
	}
	entry.lastSeen = now
	if len(c.entries) > 1024 {
		c.evictStaleLocked(now)
	}
	c.mu.Unlock()

	return entry.limiter.Allow()
}

func (c *clientLimiters) evictStaleLocked(now time.Time) {
	for key, entry := range c.entries {
		if now.Sub(entry.lastSeen) > 10*time.Minute {
			delete(c.entries, key)
		}
	}
}

// clientKey 优先使用代理透传的原始地址。
func clientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
