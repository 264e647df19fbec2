// Package report generates AI market reports from aggregated market data.
//
// Each report key (daily, or commodity:<slug>) moves through
// absent → generating → ready → stale → generating. At most one generation
// per key is in flight; concurrent callers share its result. Finished
// reports are kept through the cache policy, and usage is charged to the
// requesting user only after a successful generation.
package report

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/geraldosnetto/agro-sub002/internal/aggregate"
	"github.com/geraldosnetto/agro-sub002/internal/cache"
	"github.com/geraldosnetto/agro-sub002/internal/catalog"
	"github.com/geraldosnetto/agro-sub002/internal/config"
	"github.com/geraldosnetto/agro-sub002/internal/llm"
	"github.com/geraldosnetto/agro-sub002/pkg/models"
	"github.com/geraldosnetto/agro-sub002/pkg/utils"
)

// State is the lifecycle position of one report key.
type State string

const (
	StateAbsent     State = "absent"
	StateGenerating State = "generating"
	StateReady      State = "ready"
	StateStale      State = "stale"
)

// MarketData is the aggregator surface the generator reads.
type MarketData interface {
	Catalog() *catalog.Catalog
	Snapshot(ctx context.Context, q aggregate.SnapshotQuery) (aggregate.Snapshot, error)
}

// Model is the language-model surface the generator calls.
type Model interface {
	Chat(ctx context.Context, tier llm.Tier, messages []llm.Message, opts *llm.ChatOptions) (*llm.Response, error)
}

// Request asks for a report. An empty User marks a system run (scheduler),
// which is neither quota-checked nor charged.
type Request struct {
	Kind      models.ReportKind
	Commodity string
	User      string
	Force     bool
}

// Usage is a user's consumption for the current day.
type Usage struct {
	User             string `json:"user"`
	Day              string `json:"day"`
	Reports          int    `json:"reports"`
	Tokens           int    `json:"tokens"`
	MaxReports       int    `json:"max_reports"`
	MaxTokens        int    `json:"max_tokens"`
	RemainingReports int    `json:"remaining_reports"`
	RemainingTokens  int    `json:"remaining_tokens"`
}

// Generator owns report persistence, the per-key state machine and quotas.
type Generator struct {
	data   MarketData
	model  Model
	cache  *cache.Policy
	quota  QuotaStore
	limits Limits
	locker Locker

	ttl        time.Duration
	retention  time.Duration
	genTimeout time.Duration
	newsLimit  int
	now        func() time.Time
	logger     zerolog.Logger

	group      singleflight.Group
	mu         sync.Mutex
	generating map[string]bool
	closing    bool
	inflight   sync.WaitGroup
	hooks      []func(models.AggregatedReport)
}

// Option configures a Generator.
type Option func(*Generator)

// WithQuota sets the usage store and daily limits.
func WithQuota(q QuotaStore, l Limits) Option {
	return func(g *Generator) { g.quota, g.limits = q, l }
}

// WithLocker enables a cross-process generation lock.
func WithLocker(l Locker) Option { return func(g *Generator) { g.locker = l } }

// WithTTL sets how long a report stays fresh.
func WithTTL(d time.Duration) Option { return func(g *Generator) { g.ttl = d } }

// WithRetention sets how long a stale report is kept as a fallback.
func WithRetention(d time.Duration) Option { return func(g *Generator) { g.retention = d } }

// WithGenerationTimeout bounds one generation, model call included.
func WithGenerationTimeout(d time.Duration) Option {
	return func(g *Generator) { g.genTimeout = d }
}

// WithNewsLimit sets how many headlines go into the prompt.
func WithNewsLimit(n int) Option { return func(g *Generator) { g.newsLimit = n } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(g *Generator) { g.logger = l } }

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(g *Generator) { g.now = now } }

// FromConfig maps the report section onto options.
func FromConfig(c config.ReportConfig) []Option {
	opts := []Option{
		WithTTL(c.TTL),
		WithRetention(c.Retention),
		WithGenerationTimeout(c.GenerationTimeout),
	}
	if c.NewsLimit > 0 {
		opts = append(opts, WithNewsLimit(c.NewsLimit))
	}
	return opts
}

// NewGenerator creates a Generator. Without WithQuota it uses an in-memory
// store with no limits.
func NewGenerator(data MarketData, model Model, policy *cache.Policy, opts ...Option) *Generator {
	g := &Generator{
		data:       data,
		model:      model,
		cache:      policy,
		quota:      NewMemoryQuota(),
		ttl:        policy.TTL(cache.KindReport),
		retention:  7 * 24 * time.Hour,
		genTimeout: 2 * time.Minute,
		newsLimit:  15,
		now:        time.Now,
		logger:     zerolog.Nop(),
		generating: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.retention < g.ttl {
		g.retention = g.ttl
	}
	return g
}

// OnReady registers a hook called after every successful generation.
func (g *Generator) OnReady(fn func(models.AggregatedReport)) {
	g.mu.Lock()
	g.hooks = append(g.hooks, fn)
	g.mu.Unlock()
}

// target validates a request and returns its key and the commodity name.
func (g *Generator) target(kind models.ReportKind, slug string) (cache.Key, string, error) {
	key := cache.NewKey(cache.KindReport).With("kind", string(kind))
	switch kind {
	case models.ReportDaily:
		return key, "", nil
	case models.ReportCommodity:
		if slug == "" {
			return cache.Key{}, "", ErrMissingCommodity
		}
		c, ok := g.data.Catalog().Get(slug)
		if !ok {
			return cache.Key{}, "", fmt.Errorf("%w: %q", aggregate.ErrUnknownCommodity, slug)
		}
		return key.WithSlug(c.Slug), c.Name, nil
	default:
		return cache.Key{}, "", fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
}

// stored returns the persisted report for key, fresh or stale.
func (g *Generator) stored(ctx context.Context, key cache.Key) (models.AggregatedReport, bool) {
	c, ok, err := cache.Lookup[models.AggregatedReport](ctx, g.cache, key)
	if err != nil {
		g.logger.Warn().Err(err).Str("key", key.String()).Msg("report read failed")
		return models.AggregatedReport{}, false
	}
	return c.Value, ok
}

// State reports where a report key is in its lifecycle.
func (g *Generator) State(ctx context.Context, kind models.ReportKind, slug string) (State, error) {
	key, _, err := g.target(kind, slug)
	if err != nil {
		return "", err
	}
	g.mu.Lock()
	busy := g.generating[key.String()]
	g.mu.Unlock()
	if busy {
		return StateGenerating, nil
	}
	r, ok := g.stored(ctx, key)
	switch {
	case !ok:
		return StateAbsent, nil
	case r.Expired(g.now()):
		return StateStale, nil
	default:
		return StateReady, nil
	}
}

// Get returns the report for req. A fresh report is served with Cached=true
// at no quota cost. Otherwise one generation runs for the key and every
// concurrent caller receives its result.
func (g *Generator) Get(ctx context.Context, req Request) (models.AggregatedReport, error) {
	key, name, err := g.target(req.Kind, req.Commodity)
	if err != nil {
		return models.AggregatedReport{}, err
	}

	if !req.Force {
		if r, ok := g.stored(ctx, key); ok && !r.Expired(g.now()) {
			r.Cached = true
			return r, nil
		}
	}

	if req.User != "" {
		if err := g.checkQuota(ctx, req.User); err != nil {
			return models.AggregatedReport{}, err
		}
	}

	ch := g.group.DoChan(key.String(), func() (any, error) {
		return g.generate(ctx, key, name, req)
	})
	select {
	case <-ctx.Done():
		return models.AggregatedReport{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.AggregatedReport{}, res.Err
		}
		return res.Val.(models.AggregatedReport), nil
	}
}

func (g *Generator) checkQuota(ctx context.Context, user string) error {
	c, err := g.quota.Get(ctx, user, utils.DayKey(g.now()))
	if err != nil {
		// Quota backend outages fail open.
		g.logger.Warn().Err(err).Str("user", user).Msg("quota read failed")
		return nil
	}
	if !g.limits.exceeded(c) {
		return nil
	}
	return g.quotaError(c)
}

// reserve atomically takes one report from the user's daily allowance. The
// returned flag is false when the backend failed and nothing was taken.
func (g *Generator) reserve(ctx context.Context, user, day string) (bool, error) {
	c, ok, err := g.quota.Reserve(ctx, user, day, g.limits)
	switch {
	case err != nil:
		g.logger.Warn().Err(err).Str("user", user).Msg("quota reserve failed")
		return false, nil
	case !ok:
		return false, g.quotaError(c)
	default:
		return true, nil
	}
}

// refund returns a reserved report after a failed generation.
func (g *Generator) refund(ctx context.Context, user, day string) {
	if _, err := g.quota.Add(ctx, user, day, Counter{Reports: -1}); err != nil {
		g.logger.Warn().Err(err).Str("user", user).Msg("quota refund failed")
	}
}

func (g *Generator) quotaError(c Counter) *Error {
	now := g.now()
	reports, tokens := g.limits.remaining(c)
	return &Error{
		Code:    CodeQuotaExceeded,
		Message: "daily report quota exhausted",
		Remaining: &Remaining{
			Reports: reports,
			Tokens:  tokens,
			Resets:  utils.DayKey(utils.NextDay(now)),
		},
	}
}

// generate runs one generation for key. It runs detached from the caller's
// cancellation, since other callers may be waiting on it, and is bounded by
// the generation timeout instead.
func (g *Generator) generate(parent context.Context, key cache.Key, name string, req Request) (models.AggregatedReport, error) {
	k := key.String()

	// A generation that finished between Get's read and this call has
	// already stored the report.
	if !req.Force {
		if r, ok := g.stored(context.WithoutCancel(parent), key); ok && !r.Expired(g.now()) {
			r.Cached = true
			return r, nil
		}
	}

	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		return models.AggregatedReport{}, &Error{Code: CodeShuttingDown, Message: "report generator is shutting down", Retryable: true}
	}
	g.inflight.Add(1)
	g.generating[k] = true
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.generating, k)
		g.mu.Unlock()
		g.inflight.Done()
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), g.genTimeout)
	defer cancel()

	if g.locker != nil {
		release, ok, err := g.locker.Acquire(ctx, k, g.genTimeout)
		switch {
		case err != nil:
			g.logger.Warn().Err(err).Str("key", k).Msg("report lock unavailable, generating locally")
		case !ok:
			return g.awaitPeer(ctx, key, req.Force)
		default:
			defer release()
		}
	}

	start := g.now()
	day := utils.DayKey(start)
	charged := false
	if req.User != "" {
		var err error
		if charged, err = g.reserve(ctx, req.User, day); err != nil {
			return models.AggregatedReport{}, err
		}
	}

	r, err := g.produce(ctx, req, name)
	if err != nil {
		if charged {
			g.refund(ctx, req.User, day)
		}
		g.logger.Error().Err(err).Str("key", k).Msg("report generation failed")
		return models.AggregatedReport{}, &Error{
			Code:      CodeGenerationFailed,
			Message:   "report generation failed",
			Retryable: !llm.IsPermanent(err),
			Cause:     err,
		}
	}

	if _, err := g.cache.Set(ctx, key, r, g.retention); err != nil {
		g.logger.Warn().Err(err).Str("key", k).Msg("report store failed")
	}
	if req.User != "" {
		delta := Counter{Tokens: r.TokensUsed}
		if !charged {
			delta.Reports = 1
		}
		if _, err := g.quota.Add(ctx, req.User, day, delta); err != nil {
			g.logger.Warn().Err(err).Str("user", req.User).Msg("quota commit failed")
		}
	}
	g.logger.Info().Str("key", k).Str("model", r.Model).Int("tokens", r.TokensUsed).
		Dur("elapsed", g.now().Sub(start)).Msg("report generated")

	g.mu.Lock()
	hooks := slices.Clone(g.hooks)
	g.mu.Unlock()
	for _, fn := range hooks {
		fn(r)
	}
	return r, nil
}

// produce builds the prompt and calls the model.
func (g *Generator) produce(ctx context.Context, req Request, name string) (models.AggregatedReport, error) {
	q := aggregate.SnapshotQuery{NewsLimit: g.newsLimit}
	tier := llm.TierQuality
	if req.Kind == models.ReportCommodity {
		q.Slugs = []string{req.Commodity}
		q.NewsSlug = req.Commodity
		tier = llm.TierFast
	}
	snap, err := g.data.Snapshot(ctx, q)
	if err != nil {
		return models.AggregatedReport{}, fmt.Errorf("collect market data: %w", err)
	}
	userPrompt, err := RenderPrompt(req.Kind, name, snap)
	if err != nil {
		return models.AggregatedReport{}, err
	}

	resp, err := g.model.Chat(ctx, tier, []llm.Message{
		llm.SystemMessage(systemPrompt),
		llm.UserMessage(userPrompt),
	}, nil)
	if err != nil {
		return models.AggregatedReport{}, err
	}

	now := g.now()
	r := models.AggregatedReport{
		ID:          uuid.NewString(),
		Kind:        req.Kind,
		Content:     resp.Content,
		Model:       resp.Model,
		TokensUsed:  resp.Usage.TotalTokens,
		GeneratedAt: now,
		ExpiresAt:   now.Add(g.ttl),
	}
	if req.Kind == models.ReportCommodity {
		r.Commodity = req.Commodity
	}
	return r, nil
}

// peerPoll is how often a process waiting on another instance's generation
// rechecks the store.
var peerPoll = 500 * time.Millisecond

// awaitPeer waits for another process holding the lock to store a fresh
// report.
func (g *Generator) awaitPeer(ctx context.Context, key cache.Key, force bool) (models.AggregatedReport, error) {
	since := g.now()
	ticker := time.NewTicker(peerPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return models.AggregatedReport{}, &Error{
				Code:      CodeGenerationFailed,
				Message:   "timed out waiting for report generated by another instance",
				Retryable: true,
				Cause:     ctx.Err(),
			}
		case <-ticker.C:
			r, ok := g.stored(ctx, key)
			if !ok || r.Expired(g.now()) || (force && r.GeneratedAt.Before(since)) {
				continue
			}
			r.Cached = true
			return r, nil
		}
	}
}

// Usage returns a user's consumption for the current day.
func (g *Generator) Usage(ctx context.Context, user string) (Usage, error) {
	day := utils.DayKey(g.now())
	c, err := g.quota.Get(ctx, user, day)
	if err != nil {
		return Usage{}, err
	}
	reports, tokens := g.limits.remaining(c)
	return Usage{
		User:             user,
		Day:              day,
		Reports:          c.Reports,
		Tokens:           c.Tokens,
		MaxReports:       g.limits.Reports,
		MaxTokens:        g.limits.Tokens,
		RemainingReports: reports,
		RemainingTokens:  tokens,
	}, nil
}

// Shutdown rejects new generations and waits for in-flight ones.
func (g *Generator) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("report: shutdown timed out with generations in flight"), ctx.Err())
	}
}
