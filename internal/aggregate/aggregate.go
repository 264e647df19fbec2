// Package aggregate fans a query out to every applicable source client,
// merges what came back and serves the result through the cache policy.
//
// Sources run concurrently, each with its own timeout. Results land in a
// slice indexed by source position and are merged only after every call has
// returned. A failing source is logged and skipped; the call fails only when
// all sources fail.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/geraldosnetto/agro-sub002/internal/cache"
	"github.com/geraldosnetto/agro-sub002/internal/catalog"
	"github.com/geraldosnetto/agro-sub002/internal/source"
	"github.com/geraldosnetto/agro-sub002/internal/store"
	"github.com/geraldosnetto/agro-sub002/pkg/models"
)

var (
	// ErrAllSourcesFailed is returned when every source of a query failed.
	ErrAllSourcesFailed = errors.New("all sources failed")
	// ErrUnknownCommodity is returned for slugs missing from the catalog.
	ErrUnknownCommodity = errors.New("unknown commodity")
	// ErrNoRepository is returned by history queries when no quote store is wired.
	ErrNoRepository = errors.New("quote repository not configured")
)

// NewsSource is a single feed.
type NewsSource interface {
	Name() string
	Fetch(ctx context.Context) source.Result[models.NewsItem]
}

// PriceSource returns the international futures price of a commodity.
type PriceSource interface {
	Quote(ctx context.Context, c catalog.Commodity) source.Result[models.InternationalPrice]
}

// QuoteSource is a physical-market page scraper.
type QuoteSource interface {
	Name() string
	Supports(c catalog.Commodity) bool
	Quotes(ctx context.Context, c catalog.Commodity) source.Result[models.Quote]
}

// RateSource returns the reference FX rate.
type RateSource interface {
	Fetch(ctx context.Context) source.Result[models.ReferenceRate]
}

// WeatherSource resolves places and forecasts.
type WeatherSource interface {
	SearchCities(ctx context.Context, query string) source.Result[models.City]
	Forecast(ctx context.Context, lat, lon float64) source.Result[models.WeatherReading]
}

// Aggregator is the query layer consumed by the API and the report generator.
type Aggregator struct {
	cache     *cache.Policy
	catalog   *catalog.Catalog
	news      []NewsSource
	prices    PriceSource
	exchanges []QuoteSource
	rate      RateSource
	weather   WeatherSource
	repo      store.QuoteRepository
	sentiment bool
	now       func() time.Time
	logger    zerolog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithNewsSources sets the RSS feeds, in priority order.
func WithNewsSources(s ...NewsSource) Option {
	return func(a *Aggregator) { a.news = append(a.news, s...) }
}

// WithPriceSource sets the international price source.
func WithPriceSource(s PriceSource) Option { return func(a *Aggregator) { a.prices = s } }

// WithQuoteSources sets the exchange scrapers, in priority order.
func WithQuoteSources(s ...QuoteSource) Option {
	return func(a *Aggregator) { a.exchanges = append(a.exchanges, s...) }
}

// WithRateSource sets the reference-rate source.
func WithRateSource(s RateSource) Option { return func(a *Aggregator) { a.rate = s } }

// WithWeatherSource sets the weather source.
func WithWeatherSource(s WeatherSource) Option { return func(a *Aggregator) { a.weather = s } }

// WithRepository sets the quote store used for ingestion and history.
func WithRepository(r store.QuoteRepository) Option { return func(a *Aggregator) { a.repo = r } }

// WithSentiment enables keyword sentiment scoring of news.
func WithSentiment(on bool) Option { return func(a *Aggregator) { a.sentiment = on } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(a *Aggregator) { a.logger = l } }

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(a *Aggregator) { a.now = now } }

// New creates an Aggregator.
func New(policy *cache.Policy, cat *catalog.Catalog, opts ...Option) *Aggregator {
	a := &Aggregator{
		cache:   policy,
		catalog: cat,
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Catalog returns the commodity catalog.
func (a *Aggregator) Catalog() *catalog.Catalog { return a.catalog }

// Cache returns the cache policy.
func (a *Aggregator) Cache() *cache.Policy { return a.cache }

func (a *Aggregator) commodity(slug string) (catalog.Commodity, error) {
	c, ok := a.catalog.Get(slug)
	if !ok {
		return catalog.Commodity{}, fmt.Errorf("%w: %q", ErrUnknownCommodity, slug)
	}
	return c, nil
}

// gather runs fetch for every index concurrently and returns the results
// in index order. Per-source failures are carried in the results, so the
// group itself never fails and a slow source never cancels the others.
func gather[T any](ctx context.Context, n int, fetch func(ctx context.Context, i int) source.Result[T]) []source.Result[T] {
	results := make([]source.Result[T], n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			results[i] = fetch(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// merge concatenates successful records in source order. It fails only when
// there was at least one source and none succeeded.
func merge[T any](results []source.Result[T]) ([]T, error) {
	var (
		out  []T
		errs []error
		ok   int
	)
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		ok++
		out = append(out, r.Records...)
	}
	if len(results) > 0 && ok == 0 {
		return nil, fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(errs...))
	}
	return out, nil
}

// single unwraps a one-record result.
func single[T any](r source.Result[T]) (T, error) {
	var zero T
	if r.Err != nil {
		return zero, fmt.Errorf("%w: %w", ErrAllSourcesFailed, r.Err)
	}
	if len(r.Records) == 0 {
		return zero, fmt.Errorf("%w: %s returned no data", ErrAllSourcesFailed, r.Source)
	}
	return r.Records[0], nil
}
