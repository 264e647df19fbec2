// Package infra provides shared infrastructure used across the service:
// per-host rate limiting for upstream scraping and the Redis connection
// shared by the cache, quota and lock backends.
package infra

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/geraldosnetto/agro-sub002/internal/config"
)

// --- Rate limiter ---

// RateLimiter is a token bucket allowing maxTokens requests at once,
// refilled by one token every refillRate.
type RateLimiter struct {
	lim *rate.Limiter
}

// NewRateLimiter creates a rate limiter that allows maxTokens requests
// per refillRate duration.
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	return &RateLimiter{lim: rate.NewLimiter(rate.Every(refillRate), maxTokens)}
}

// Wait blocks until a token is available. It fails early when ctx is done
// or its deadline comes before the next token.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.lim.Wait(ctx)
}

// HostLimiter keeps one RateLimiter per upstream host so a burst against
// one publisher does not slow down the others.
type HostLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*RateLimiter
	maxTokens  int
	refillRate time.Duration
}

// NewHostLimiter allows maxTokens requests per refillRate to each host.
func NewHostLimiter(maxTokens int, refillRate time.Duration) *HostLimiter {
	return &HostLimiter{
		limiters:   make(map[string]*RateLimiter),
		maxTokens:  maxTokens,
		refillRate: refillRate,
	}
}

// Wait blocks until a request to rawURL's host may proceed.
func (h *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}
	h.mu.Lock()
	rl, ok := h.limiters[host]
	if !ok {
		rl = NewRateLimiter(h.maxTokens, h.refillRate)
		h.limiters[host] = rl
	}
	h.mu.Unlock()
	return rl.Wait(ctx)
}

// --- Redis ---

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}
