package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/geraldosnetto/agro-sub002/internal/cache"
	"github.com/geraldosnetto/agro-sub002/internal/catalog"
	"github.com/geraldosnetto/agro-sub002/internal/source"
	"github.com/geraldosnetto/agro-sub002/pkg/models"
	"github.com/geraldosnetto/agro-sub002/pkg/utils"
)

// AggregateInternationalPrices fetches the futures price of every active
// commodity with a symbol, keyed by slug. Symbols that fail are left out.
func (a *Aggregator) AggregateInternationalPrices(ctx context.Context, force bool) (cache.Cached[map[string]models.InternationalPrice], error) {
	key := cache.NewKey(cache.KindInternational)
	return cache.Fetch(ctx, a.cache, key, force, func(ctx context.Context) (map[string]models.InternationalPrice, error) {
		out := make(map[string]models.InternationalPrice)
		if a.prices == nil {
			return out, nil
		}
		list := a.catalog.International()
		results := gather(ctx, len(list), func(ctx context.Context, i int) source.Result[models.InternationalPrice] {
			return a.prices.Quote(ctx, list[i])
		})
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prices, err := merge(results)
		if err != nil {
			return nil, err
		}
		for _, p := range prices {
			if _, dup := out[p.Commodity]; !dup {
				out[p.Commodity] = p
			}
		}
		return out, nil
	})
}

// AggregateQuotes scrapes every exchange page the commodity has a contract
// for. Quotes keep source order; the first quote per market wins.
func (a *Aggregator) AggregateQuotes(ctx context.Context, slug string, force bool) (cache.Cached[[]models.Quote], error) {
	c, err := a.commodity(slug)
	if err != nil {
		return cache.Cached[[]models.Quote]{}, err
	}
	key := cache.NewKey(cache.KindQuotes).WithSlug(c.Slug)
	return cache.Fetch(ctx, a.cache, key, force, func(ctx context.Context) ([]models.Quote, error) {
		return a.fetchQuotes(ctx, c)
	})
}

func (a *Aggregator) fetchQuotes(ctx context.Context, c catalog.Commodity) ([]models.Quote, error) {
	var sources []QuoteSource
	for _, s := range a.exchanges {
		if s.Supports(c) {
			sources = append(sources, s)
		}
	}
	results := gather(ctx, len(sources), func(ctx context.Context, i int) source.Result[models.Quote] {
		return sources[i].Quotes(ctx, c)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	quotes, err := merge(results)
	if err != nil {
		return nil, err
	}
	return dedupQuotes(quotes), nil
}

// dedupQuotes keeps the first quote per (commodity, market).
func dedupQuotes(quotes []models.Quote) []models.Quote {
	seen := make(map[string]struct{}, len(quotes))
	out := make([]models.Quote, 0, len(quotes))
	for _, q := range quotes {
		k := q.Commodity + "|" + utils.Fold(q.Market)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, q)
	}
	return out
}

// ReferenceRate returns the central-bank USD/BRL reference rate.
func (a *Aggregator) ReferenceRate(ctx context.Context, force bool) (cache.Cached[models.ReferenceRate], error) {
	key := cache.NewKey(cache.KindReferenceRate).With("code", "usd")
	return cache.Fetch(ctx, a.cache, key, force, func(ctx context.Context) (models.ReferenceRate, error) {
		if a.rate == nil {
			return models.ReferenceRate{}, fmt.Errorf("%w: no reference-rate source", ErrAllSourcesFailed)
		}
		return single(a.rate.Fetch(ctx))
	})
}

// DefaultHistoryDays is used when a history query does not name a window.
const (
	DefaultHistoryDays = 30
	MaxHistoryDays     = 365
)

// QuoteHistory returns the stored quotes of the last days days. Every
// window is served from one cached entry per commodity holding the longest
// window, so an ingestion run invalidates all of them at once.
func (a *Aggregator) QuoteHistory(ctx context.Context, slug string, days int) (cache.Cached[[]models.Quote], error) {
	c, err := a.commodity(slug)
	if err != nil {
		return cache.Cached[[]models.Quote]{}, err
	}
	if a.repo == nil {
		return cache.Cached[[]models.Quote]{}, ErrNoRepository
	}
	days = clampDays(days)
	res, err := cache.Fetch(ctx, a.cache, historyKey(c.Slug), false, func(ctx context.Context) ([]models.Quote, error) {
		since := utils.StartOfDay(a.now()).AddDate(0, 0, -MaxHistoryDays)
		quotes, err := a.repo.History(ctx, c.Slug, since)
		if err != nil {
			return nil, err
		}
		if quotes == nil {
			quotes = []models.Quote{}
		}
		return quotes, nil
	})
	if err != nil {
		return res, err
	}
	since := utils.StartOfDay(a.now()).AddDate(0, 0, -days)
	window := make([]models.Quote, 0, len(res.Value))
	for _, q := range res.Value {
		if !q.Date.Before(since) {
			window = append(window, q)
		}
	}
	res.Value = window
	return res, nil
}

func historyKey(slug string) cache.Key {
	return cache.NewKey(cache.KindQuoteHistory).WithSlug(slug)
}

func clampDays(days int) int {
	switch {
	case days <= 0:
		return DefaultHistoryDays
	case days > MaxHistoryDays:
		return MaxHistoryDays
	default:
		return days
	}
}

// IngestStats summarizes one ingestion run.
type IngestStats struct {
	Commodities int           `json:"commodities"`
	Failed      int           `json:"failed"`
	Inserted    int           `json:"inserted"`
	Skipped     int           `json:"skipped"`
	Elapsed     time.Duration `json:"elapsed"`
}

// IngestQuotes scrapes live quotes for every active commodity with a page
// contract and stores them. A commodity whose sources all fail is counted
// and skipped.
func (a *Aggregator) IngestQuotes(ctx context.Context) (IngestStats, error) {
	start := time.Now()
	if a.repo == nil {
		return IngestStats{}, ErrNoRepository
	}
	var stats IngestStats
	for _, c := range a.catalog.Active() {
		if len(c.Pages) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Commodities++
		res, err := a.AggregateQuotes(ctx, c.Slug, true)
		if err != nil {
			stats.Failed++
			a.logger.Warn().Err(err).Str("commodity", c.Slug).Msg("quote ingestion failed")
			continue
		}
		us, err := a.repo.Upsert(ctx, res.Value)
		stats.Inserted += us.Inserted
		stats.Skipped += us.Skipped
		if err != nil {
			stats.Failed++
			a.logger.Warn().Err(err).Str("commodity", c.Slug).Msg("quote upsert failed")
		}
		if us.Inserted > 0 {
			if err := a.cache.Invalidate(ctx, historyKey(c.Slug)); err != nil {
				a.logger.Warn().Err(err).Str("commodity", c.Slug).Msg("history cache invalidation failed")
			}
		}
	}
	stats.Elapsed = time.Since(start)
	return stats, nil
}
