package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"bitbattle/internal/common/cache"
	pkgerrors "bitbattle/pkg/errors"
	"bitbattle/pkg/utils/response"
)

const defaultRedisTimeout = 200 * time.Millisecond

// Limiter enforces fixed-window limits using Redis.
type Limiter struct {
	cache        cache.BasicOps
	redisTimeout time.Duration
}

// NewLimiter creates a Limiter. redisTimeout bounds each cache round trip
// so a slow Redis cannot stall request handling.
func NewLimiter(cacheClient cache.BasicOps, redisTimeout time.Duration) *Limiter {
	if redisTimeout <= 0 {
		redisTimeout = defaultRedisTimeout
	}
	return &Limiter{cache: cacheClient, redisTimeout: redisTimeout}
}

// Allow counts one hit against key and fails once the window holds more
// than max hits.
func (l *Limiter) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if l.cache == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	if max <= 0 {
		return nil
	}

	ctxCache, cancel := context.WithTimeout(ctx, l.redisTimeout)
	defer cancel()

	acquired, err := l.cache.SetNX(ctxCache, key, 1, window)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
	}
	var count int64
	if acquired {
		count = 1
	} else {
		count, err = l.cache.Incr(ctxCache, key)
		if err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
		}
		// Heal keys that lost their expiry, e.g. after a partial flush.
		ttl, ttlErr := l.cache.TTL(ctxCache, key)
		if ttlErr == nil && ttl <= 0 {
			_ = l.cache.Expire(ctxCache, key, window)
		}
	}
	if int(count) > max {
		return pkgerrors.New(pkgerrors.TooManyRequests).WithMessage("Too many requests, slow down")
	}
	return nil
}

// RatePolicy is the budget one route group gets per second-style window.
type RatePolicy struct {
	Name    string
	PerIP   int
	PerUser int
	Window  time.Duration
}

// RateLimit applies a policy per client IP and, for authenticated callers,
// per account. A nil limiter disables limiting, for tests and single-user
// setups.
func RateLimit(limiter *Limiter, policy RatePolicy) gin.HandlerFunc {
	window := policy.Window
	if window <= 0 {
		window = time.Second
	}
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		if policy.PerIP > 0 {
			key := fmt.Sprintf("rate:ip:%s:%s", c.ClientIP(), policy.Name)
			if err := limiter.Allow(c.Request.Context(), key, policy.PerIP, window); err != nil {
				response.AbortWithError(c, err)
				return
			}
		}

		if policy.PerUser > 0 {
			if userID := c.GetString("user_id"); userID != "" {
				key := fmt.Sprintf("rate:user:%s:%s", userID, policy.Name)
				if err := limiter.Allow(c.Request.Context(), key, policy.PerUser, window); err != nil {
					response.AbortWithError(c, err)
					return
				}
			}
		}

		c.Next()
	}
}
