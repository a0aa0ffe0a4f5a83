package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const rateLimitPrefix = "rl:signer:"

// SignerRateLimit caps mutating requests per signer per minute. With a Redis
// client the window is shared between instances; without one each instance
// keeps its own token buckets.
func SignerRateLimit(cache *redis.Client, perMinute int) fiber.Handler {
	if perMinute <= 0 {
		perMinute = 60
	}
	local := newLocalLimiter(perMinute)

	return func(c *fiber.Ctx) error {
		signer := SignerFrom(c)
		id := c.IP()
		if !signer.IsZero() {
			id = signer.String()
		}

		if cache == nil {
			if !local.allow(id) {
				return fiber.NewError(http.StatusTooManyRequests, "rate limit exceeded, try again later")
			}
			return c.Next()
		}

		k := rateLimitPrefix + id
		cnt, err := cache.Incr(c.UserContext(), k).Result()
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), k, time.Minute)
		}
		if cnt > int64(perMinute) {
			return fiber.NewError(http.StatusTooManyRequests, "rate limit exceeded, try again later")
		}
		return c.Next()
	}
}

type localLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newLocalLimiter(perMinute int) *localLimiter {
	return &localLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *localLimiter) allow(id string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[id]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[id] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
