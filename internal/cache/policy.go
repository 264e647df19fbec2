package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/geraldosnetto/agro-sub002/internal/config"
)

// Default TTLs per query kind.
var DefaultTTLs = map[Kind]time.Duration{
	KindNews:          time.Hour,
	KindQuotes:        time.Hour,
	KindQuoteHistory:  time.Hour,
	KindWeather:       30 * time.Minute,
	KindCitySearch:    24 * time.Hour,
	KindInternational: 15 * time.Minute,
	KindReferenceRate: time.Hour,
	KindReport:        6 * time.Hour,
}

// TTLsFromConfig builds the TTL table from configuration, keeping defaults
// for zero values.
func TTLsFromConfig(c config.TTLConfig) map[Kind]time.Duration {
	ttls := make(map[Kind]time.Duration, len(DefaultTTLs))
	for k, v := range DefaultTTLs {
		ttls[k] = v
	}
	set := func(k Kind, d time.Duration) {
		if d > 0 {
			ttls[k] = d
		}
	}
	set(KindNews, c.News)
	set(KindQuotes, c.Quotes)
	set(KindQuoteHistory, c.QuoteHistory)
	set(KindWeather, c.Weather)
	set(KindCitySearch, c.CitySearch)
	set(KindInternational, c.International)
	set(KindReferenceRate, c.ReferenceRate)
	return ttls
}

// Cached wraps a value with its cache provenance.
type Cached[T any] struct {
	Value     T         `json:"value"`
	Cached    bool      `json:"cached"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Policy is the explicit cache service injected into the aggregator and the
// report generator.
type Policy struct {
	store  Store
	ttls   map[Kind]time.Duration
	now    func() time.Time
	logger zerolog.Logger
	group  singleflight.Group

	computeTimeout time.Duration
	sweepEvery     time.Duration
	stop           chan struct{}
	done           chan struct{}
	closeOnce      sync.Once
}

// Option configures a Policy.
type Option func(*Policy)

// WithTTLs overrides the TTL table. Kinds missing from ttls keep their default.
func WithTTLs(ttls map[Kind]time.Duration) Option {
	return func(p *Policy) {
		for k, v := range ttls {
			p.ttls[k] = v
		}
	}
}

// WithSweepInterval starts a janitor that sweeps expired entries every d.
func WithSweepInterval(d time.Duration) Option {
	return func(p *Policy) { p.sweepEvery = d }
}

// WithComputeTimeout bounds a shared compute started by Fetch.
func WithComputeTimeout(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.computeTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Policy) { p.logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) { p.now = now }
}

// New creates a Policy on top of store.
func New(store Store, opts ...Option) *Policy {
	p := &Policy{
		store:          store,
		ttls:           make(map[Kind]time.Duration, len(DefaultTTLs)),
		now:            time.Now,
		logger:         zerolog.Nop(),
		computeTimeout: 30 * time.Second,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	for k, v := range DefaultTTLs {
		p.ttls[k] = v
	}
	for _, opt := range opts {
		opt(p)
	}
	if ms, ok := store.(*MemoryStore); ok {
		ms.now = p.now
	}
	if p.sweepEvery > 0 {
		go p.janitor()
	} else {
		close(p.done)
	}
	return p
}

// TTL returns the configured TTL for kind.
func (p *Policy) TTL(kind Kind) time.Duration {
	return p.ttls[kind]
}

// Get returns the raw entry stored under key.
func (p *Policy) Get(ctx context.Context, key Key) (Entry, bool, error) {
	return p.store.Get(ctx, key.String())
}

// Set JSON-encodes value and stores it under key for ttl.
// A non-positive ttl uses the kind's TTL.
func (p *Policy) Set(ctx context.Context, key Key, value any, ttl time.Duration) (Entry, error) {
	if ttl <= 0 {
		ttl = p.TTL(key.Kind)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return Entry{}, fmt.Errorf("encode %s: %w", key, err)
	}
	now := p.now()
	e := Entry{Value: raw, StoredAt: now, ExpiresAt: now.Add(ttl)}
	if err := p.store.Set(ctx, key.String(), e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Invalidate drops the whole entry for key.
func (p *Policy) Invalidate(ctx context.Context, key Key) error {
	return p.store.Delete(ctx, key.String())
}

// Sweep runs one janitor pass.
func (p *Policy) Sweep(ctx context.Context) (int, error) {
	return p.store.Sweep(ctx)
}

// Close stops the janitor and closes the store. It is safe to call twice.
func (p *Policy) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.stop)
		<-p.done
		err = p.store.Close()
	})
	return err
}

func (p *Policy) janitor() {
	defer close(p.done)
	ticker := time.NewTicker(p.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			n, err := p.store.Sweep(context.Background())
			if err != nil {
				p.logger.Warn().Err(err).Msg("cache sweep failed")
				continue
			}
			if n > 0 {
				p.logger.Debug().Int("removed", n).Msg("cache sweep")
			}
		}
	}
}

// Lookup decodes the value stored under key into a T.
func Lookup[T any](ctx context.Context, p *Policy, key Key) (Cached[T], bool, error) {
	e, ok, err := p.Get(ctx, key)
	if err != nil || !ok {
		return Cached[T]{}, false, err
	}
	var v T
	if err := json.Unmarshal(e.Value, &v); err != nil {
		return Cached[T]{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return Cached[T]{Value: v, Cached: true, StoredAt: e.StoredAt, ExpiresAt: e.ExpiresAt}, true, nil
}

// Fetch serves key from the cache when a fresh entry exists and force is
// false. Otherwise it runs compute, stores a successful result for the
// kind's TTL and returns it with Cached=false. Failed computations are not
// stored.
//
// Concurrent misses on the same key share one compute call. The shared call
// is detached from every caller's cancellation and bounded by the compute
// timeout; each caller stops waiting when its own ctx is done.
func Fetch[T any](ctx context.Context, p *Policy, key Key, force bool, compute func(context.Context) (T, error)) (Cached[T], error) {
	k := key.String()
	if !force {
		c, ok, err := Lookup[T](ctx, p, key)
		if err != nil {
			p.logger.Warn().Err(err).Str("key", k).Msg("cache read failed, recomputing")
		}
		if ok {
			return c, nil
		}
	}

	ch := p.group.DoChan(k, func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.computeTimeout)
		defer cancel()
		val, err := compute(cctx)
		if err != nil {
			return nil, err
		}
		out := Cached[T]{Value: val}
		e, err := p.Set(cctx, key, val, 0)
		if err != nil {
			p.logger.Warn().Err(err).Str("key", k).Msg("cache write failed")
			now := p.now()
			out.StoredAt, out.ExpiresAt = now, now.Add(p.TTL(key.Kind))
		} else {
			out.StoredAt, out.ExpiresAt = e.StoredAt, e.ExpiresAt
		}
		return out, nil
	})
	select {
	case <-ctx.Done():
		return Cached[T]{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Cached[T]{}, res.Err
		}
		return res.Val.(Cached[T]), nil
	}
}
