package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/geraldosnetto/agro-sub002/internal/aggregate"
	"github.com/geraldosnetto/agro-sub002/internal/cache"
	"github.com/geraldosnetto/agro-sub002/internal/catalog"
	"github.com/geraldosnetto/agro-sub002/internal/config"
	"github.com/geraldosnetto/agro-sub002/internal/infra"
	"github.com/geraldosnetto/agro-sub002/internal/llm"
	"github.com/geraldosnetto/agro-sub002/internal/normalize"
	"github.com/geraldosnetto/agro-sub002/internal/report"
	"github.com/geraldosnetto/agro-sub002/internal/source"
	"github.com/geraldosnetto/agro-sub002/internal/store"
)

// Upstream request budget per host, shared by every source client.
const (
	hostBurst  = 4
	hostWindow = time.Second
)

// app holds the wired service graph.
type app struct {
	cache  *cache.Policy
	agg    *aggregate.Aggregator
	repo   store.QuoteRepository
	router *llm.Router
	gen    *report.Generator
	redis  *redis.Client
	logger zerolog.Logger
}

// buildApp wires config → cache → sources → aggregator → store → LLM router
// → report generator.
func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{logger: logger}

	var backend cache.Store = cache.NewMemoryStore()
	if cfg.Cache.Backend == "redis" || cfg.Report.DistributedLock {
		client, err := infra.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.redis = client
	}
	if cfg.Cache.Backend == "redis" {
		backend = cache.NewRedisStore(a.redis, cfg.Redis.Prefix)
	}
	a.cache = cache.New(backend,
		cache.WithTTLs(cache.TTLsFromConfig(cfg.Cache.TTL)),
		cache.WithSweepInterval(cfg.Cache.SweepInterval),
		cache.WithComputeTimeout(cfg.Cache.ComputeTimeout),
		cache.WithLogger(logger.With().Str("component", "cache").Logger()),
	)

	srcOpts := append(source.FromConfig(cfg.Sources),
		source.WithLimiter(infra.NewHostLimiter(hostBurst, hostWindow)),
		source.WithLogger(logger.With().Str("component", "source").Logger()),
	)
	var feeds []aggregate.NewsSource
	for _, f := range cfg.Sources.Feeds {
		feeds = append(feeds, source.NewRSS(f.Name, f.URL, srcOpts...))
	}
	extractors := normalize.Extractors()
	exchanges := []aggregate.QuoteSource{
		source.NewExchange(cfg.Sources.ExchangeBaseURL, extractors[catalog.SiteNoticiasAgricolas], srcOpts...),
		source.NewExchange(cfg.Sources.CepeaBaseURL, extractors[catalog.SiteCepea], srcOpts...),
	}

	if cfg.Database.DSN != "" {
		pg, err := store.ConnectPostgres(ctx, cfg.Database.DSN)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.repo = pg
	} else {
		a.repo = store.NewMemoryRepository()
	}

	a.agg = aggregate.New(a.cache, catalog.Default,
		aggregate.WithNewsSources(feeds...),
		aggregate.WithQuoteSources(exchanges...),
		aggregate.WithPriceSource(source.NewYahoo(cfg.Sources.YahooBaseURL, srcOpts...)),
		aggregate.WithRateSource(source.NewReferenceRate(cfg.Sources.BCBBaseURL, cfg.Sources.BCBSeries, "USD", srcOpts...)),
		aggregate.WithWeatherSource(source.NewWeather(cfg.Sources.GeocodingURL, cfg.Sources.ForecastURL, srcOpts...)),
		aggregate.WithRepository(a.repo),
		aggregate.WithSentiment(cfg.Sources.Sentiment),
		aggregate.WithLogger(logger.With().Str("component", "aggregate").Logger()),
	)

	router, err := llm.NewRouterFromConfig(ctx, cfg.LLM, logger.With().Str("component", "llm").Logger())
	if err != nil {
		// Market data keeps working without a model; reports fail with
		// GENERATION_FAILED until a key is configured.
		logger.Warn().Err(err).Msg("no LLM provider available")
		router = llm.NewRouter(cfg.LLM.Primary)
	}
	a.router = router

	genOpts := append(report.FromConfig(cfg.Report),
		report.WithLogger(logger.With().Str("component", "report").Logger()),
	)
	limits := report.Limits{Reports: cfg.Report.MaxReportsPerDay, Tokens: cfg.Report.MaxTokensPerDay}
	if a.redis != nil {
		genOpts = append(genOpts, report.WithQuota(report.NewRedisQuota(a.redis, cfg.Redis.Prefix), limits))
	} else {
		genOpts = append(genOpts, report.WithQuota(report.NewMemoryQuota(), limits))
	}
	if cfg.Report.DistributedLock && a.redis != nil {
		genOpts = append(genOpts, report.WithLocker(report.NewRedisLocker(a.redis, cfg.Redis.Prefix)))
	}
	a.gen = report.NewGenerator(a.agg, a.router, a.cache, genOpts...)
	return a, nil
}

// Close releases every connection the app opened.
func (a *app) Close() error {
	var errs []error
	if a.router != nil {
		errs = append(errs, a.router.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.repo != nil {
		errs = append(errs, a.repo.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}
