package report

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter is one user's consumption within one day.
type Counter struct {
	Reports int `json:"reports"`
	Tokens  int `json:"tokens"`
}

// Limits caps daily consumption. Zero means unlimited.
type Limits struct {
	Reports int
	Tokens  int
}

// exceeded reports whether c has used up either limit.
func (l Limits) exceeded(c Counter) bool {
	return (l.Reports > 0 && c.Reports >= l.Reports) ||
		(l.Tokens > 0 && c.Tokens >= l.Tokens)
}

func (l Limits) remaining(c Counter) (reports, tokens int) {
	reports, tokens = -1, -1
	if l.Reports > 0 {
		reports = max(l.Reports-c.Reports, 0)
	}
	if l.Tokens > 0 {
		tokens = max(l.Tokens-c.Tokens, 0)
	}
	return reports, tokens
}

// QuotaStore keeps per-user, per-day usage counters.
//
// Reserve takes one report from the allowance in a single step: when the
// counter is already past l it changes nothing and returns the current
// counter with false.
type QuotaStore interface {
	Get(ctx context.Context, user, day string) (Counter, error)
	Add(ctx context.Context, user, day string, delta Counter) (Counter, error)
	Reserve(ctx context.Context, user, day string, l Limits) (Counter, bool, error)
}

// MemoryQuota is a single-process QuotaStore.
type MemoryQuota struct {
	mu       sync.Mutex
	counters map[string]Counter
}

// NewMemoryQuota creates an empty in-memory quota store.
func NewMemoryQuota() *MemoryQuota {
	return &MemoryQuota{counters: make(map[string]Counter)}
}

func (m *MemoryQuota) Get(_ context.Context, user, day string) (Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[day+"|"+user], nil
}

func (m *MemoryQuota) Add(_ context.Context, user, day string, delta Counter) (Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := day + "|" + user
	c := m.counters[k]
	c.Reports += delta.Reports
	c.Tokens += delta.Tokens
	m.counters[k] = c
	return c, nil
}

func (m *MemoryQuota) Reserve(_ context.Context, user, day string, l Limits) (Counter, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := day + "|" + user
	c := m.counters[k]
	if l.exceeded(c) {
		return c, false, nil
	}
	c.Reports++
	m.counters[k] = c
	return c, true, nil
}

// quotaRetention keeps a day's counters past the day boundary in any timezone.
const quotaRetention = 48 * time.Hour

// RedisQuota stores counters as hashes shared by every instance.
type RedisQuota struct {
	client *redis.Client
	prefix string
}

// NewRedisQuota creates a Redis quota store. Keys are prefix+"quota:<day>:<user>".
func NewRedisQuota(client *redis.Client, prefix string) *RedisQuota {
	return &RedisQuota{client: client, prefix: prefix + "quota:"}
}

func (r *RedisQuota) key(user, day string) string { return r.prefix + day + ":" + user }

func (r *RedisQuota) Get(ctx context.Context, user, day string) (Counter, error) {
	vals, err := r.client.HGetAll(ctx, r.key(user, day)).Result()
	if err != nil {
		return Counter{}, fmt.Errorf("quota get: %w", err)
	}
	return counterFromHash(vals), nil
}

func (r *RedisQuota) Add(ctx context.Context, user, day string, delta Counter) (Counter, error) {
	k := r.key(user, day)
	var reports, tokens *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		reports = pipe.HIncrBy(ctx, k, "reports", int64(delta.Reports))
		tokens = pipe.HIncrBy(ctx, k, "tokens", int64(delta.Tokens))
		pipe.Expire(ctx, k, quotaRetention)
		return nil
	})
	if err != nil {
		return Counter{}, fmt.Errorf("quota add: %w", err)
	}
	return Counter{Reports: int(reports.Val()), Tokens: int(tokens.Val())}, nil
}

// Reserve increments first and rolls back when the previous value was
// already past the limit, so concurrent reservations never overshoot.
func (r *RedisQuota) Reserve(ctx context.Context, user, day string, l Limits) (Counter, bool, error) {
	k := r.key(user, day)
	var all *redis.MapStringStringCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, k, "reports", 1)
		all = pipe.HGetAll(ctx, k)
		pipe.Expire(ctx, k, quotaRetention)
		return nil
	})
	if err != nil {
		return Counter{}, false, fmt.Errorf("quota reserve: %w", err)
	}
	c := counterFromHash(all.Val())
	prev := Counter{Reports: c.Reports - 1, Tokens: c.Tokens}
	if !l.exceeded(prev) {
		return c, true, nil
	}
	if err := r.client.HIncrBy(ctx, k, "reports", -1).Err(); err != nil {
		return prev, false, fmt.Errorf("quota reserve rollback: %w", err)
	}
	return prev, false, nil
}

func counterFromHash(vals map[string]string) Counter {
	var c Counter
	c.Reports, _ = strconv.Atoi(vals["reports"])
	c.Tokens, _ = strconv.Atoi(vals["tokens"])
	return c
}
