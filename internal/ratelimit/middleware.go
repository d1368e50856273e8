// Package ratelimit throttles REST clients per IP with counters shared
// across server instances through Redis.
package ratelimit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"codeberg.org/coursepilot/server/internal/errors"
	"codeberg.org/coursepilot/server/internal/logger"
)

type Limiter struct {
	config  *Config
	limiter *limiter.Limiter
}

// creates a limiter backed by redis; a nil client keeps counters in
// process memory
func New(config *Config, client *redis.Client) (*Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(config.Rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", config.Rate, err)
	}

	var store limiter.Store
	if client != nil {
		store, err = sredis.NewStoreWithOptions(client, limiter.StoreOptions{
			Prefix:   config.Prefix,
			MaxRetry: 3,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create limiter store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          config.Prefix,
			CleanUpInterval: time.Minute,
		})
	}

	return &Limiter{config: config, limiter: limiter.New(store, rate)}, nil
}

// returns a Gin middleware that rejects clients over their rate
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.config.Enabled || l.config.IsExemptPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		ip := c.ClientIP()
		ctx, err := l.limiter.Get(c.Request.Context(), ip)
		if err != nil {
			// a broken store must not take the API down with it
			logger.ErrorErr(err, "failed to check rate limit", "ip", ip)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(ctx.Reset, 10))

		if ctx.Reached {
			l.handleRateLimited(c, ip, ctx.Reset)
			return
		}

		c.Next()
	}
}

func (l *Limiter) handleRateLimited(c *gin.Context, ip string, reset int64) {
	logger.Warn("rate limit exceeded", "ip", ip, "path", c.Request.URL.Path)

	retry := reset - time.Now().Unix()
	if retry < 1 {
		retry = 1
	}

	c.Header("Retry-After", strconv.FormatInt(retry, 10))
	errors.TooManyRequests(c, "too many requests. please slow down.")
	c.Abort()
}
