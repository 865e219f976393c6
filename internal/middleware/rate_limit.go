package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Payphone-Digital/auth-service/internal/constants"
	"github.com/Payphone-Digital/auth-service/pkg/logger"
	"github.com/gin-gonic/gin"
)

// RateLimiter is a per-key sliding window kept in memory.
type RateLimiter struct {
	tokens     map[string][]time.Time
	maxRequest int
	duration   time.Duration
	now        func() time.Time
	mu         sync.Mutex
}

func NewRateLimiter(maxRequest int, duration time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:     make(map[string][]time.Time),
		maxRequest: maxRequest,
		duration:   duration,
		now:        time.Now,
	}
}

// prune drops timestamps outside the window for key.
func (rl *RateLimiter) prune(key string, now time.Time) []time.Time {
	tokens := rl.tokens[key]
	valid := tokens[:0]
	for _, t := range tokens {
		if now.Sub(t) < rl.duration {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		delete(rl.tokens, key)
		return nil
	}
	rl.tokens[key] = valid
	return valid
}

// Allow records a hit for key and reports how many remain in the window.
func (rl *RateLimiter) Allow(key string) (allowed bool, remaining int, reset time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	tokens := rl.prune(key, now)
	if len(tokens) >= rl.maxRequest {
		return false, 0, tokens[0].Add(rl.duration)
	}
	rl.tokens[key] = append(tokens, now)
	return true, rl.maxRequest - len(tokens) - 1, now.Add(rl.duration)
}

// sweep removes idle keys so the map does not grow with every client seen.
func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key := range rl.tokens {
		rl.prune(key, now)
	}
}

// RateLimit limits each client IP to maxRequest requests per duration.
func RateLimit(maxRequest int, duration time.Duration) gin.HandlerFunc {
	return RateLimitWith(NewRateLimiter(maxRequest, duration))
}

func RateLimitWith(limiter *RateLimiter) gin.HandlerFunc {
	var hits int
	var mu sync.Mutex

	return func(c *gin.Context) {
		if limiter.maxRequest <= 0 {
			c.Next()
			return
		}

		mu.Lock()
		hits++
		if hits%1000 == 0 {
			go limiter.sweep()
		}
		mu.Unlock()

		ip := c.ClientIP()
		allowed, remaining, reset := limiter.Allow(ip)

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.maxRequest))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !allowed {
			retryAfter := int(time.Until(reset).Seconds()) + 1
			logger.WarnWithContext(c.Request.Context(), "Rate limit exceeded").
				Method(c.Request.Method).
				Path(c.Request.URL.Path).
				Int("max_requests", limiter.maxRequest).
				Int("retry_after", retryAfter).
				Log()

			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, constants.BuildErrorResponse(
				constants.MsgTooManyRequests,
				gin.H{"retry_after": retryAfter},
			))
			return
		}

		c.Next()
	}
}
