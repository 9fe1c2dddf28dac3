package middlewares

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// visitor holds the rate limiter and the last time we saw this IP.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	every    time.Duration
	burst    int
	message  string
}

func NewRateLimiter(every time.Duration, burst int, message string) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		every:    every,
		burst:    burst,
		message:  message,
	}
}

var (
	// General API visitors: 1 request/second average, burst of 100.
	apiLimiter = NewRateLimiter(time.Second, 100, "Too many requests. Please slow down.")

	// Login attempts: 1 every 10 seconds on average, burst of 10.
	loginLimiter = NewRateLimiter(10*time.Second, 10, "Too many authentication attempts. Please wait and try again.")
)

func (l *RateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, exists := l.visitors[ip]
	if !exists {
		limiter := rate.NewLimiter(rate.Every(l.every), l.burst)
		l.visitors[ip] = &visitor{
			limiter:  limiter,
			lastSeen: time.Now(),
		}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// Prune forgets visitors idle for longer than idle and returns how many went.
func (l *RateLimiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	n := 0
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
			n++
		}
	}
	return n
}

func (l *RateLimiter) reset() {
	l.mu.Lock()
	l.visitors = make(map[string]*visitor)
	l.mu.Unlock()
}

func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": l.message})
			return
		}
		c.Next()
	}
}

// RateLimitMiddleware applies a simple per-IP rate limit for all routes.
func RateLimitMiddleware() gin.HandlerFunc {
	return apiLimiter.Middleware()
}

// LoginRateLimitMiddleware applies a stricter per-IP rate limit for auth routes.
func LoginRateLimitMiddleware() gin.HandlerFunc {
	return loginLimiter.Middleware()
}

// PruneVisitors drops idle entries from both shared limiters.
func PruneVisitors(idle time.Duration) int {
	return apiLimiter.Prune(idle) + loginLimiter.Prune(idle)
}
