package aggregate

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/geraldosnetto/agro-sub002/internal/cache"
	"github.com/geraldosnetto/agro-sub002/internal/catalog"
	"github.com/geraldosnetto/agro-sub002/internal/sentiment"
	"github.com/geraldosnetto/agro-sub002/internal/source"
	"github.com/geraldosnetto/agro-sub002/pkg/models"
)

// NewsQuery selects aggregated news.
type NewsQuery struct {
	Limit     int    // <= 0 returns everything
	Commodity string // optional slug filter
	Force     bool
}

// AggregateNews merges every feed, drops duplicate URLs (first source wins),
// sorts newest first and truncates to the limit. The full merged list is
// what gets cached, so truncation always draws from every source.
func (a *Aggregator) AggregateNews(ctx context.Context, q NewsQuery) (cache.Cached[[]models.NewsItem], error) {
	key := cache.NewKey(cache.KindNews)
	var filter *catalog.Commodity
	if q.Commodity != "" {
		c, err := a.commodity(q.Commodity)
		if err != nil {
			return cache.Cached[[]models.NewsItem]{}, err
		}
		filter = &c
		key = key.WithSlug(c.Slug)
	}

	res, err := cache.Fetch(ctx, a.cache, key, q.Force, func(ctx context.Context) ([]models.NewsItem, error) {
		return a.fetchNews(ctx, filter)
	})
	if err != nil {
		return res, err
	}
	if q.Limit > 0 && len(res.Value) > q.Limit {
		res.Value = res.Value[:q.Limit:q.Limit]
	}
	return res, nil
}

func (a *Aggregator) fetchNews(ctx context.Context, filter *catalog.Commodity) ([]models.NewsItem, error) {
	results := gather(ctx, len(a.news), func(ctx context.Context, i int) source.Result[models.NewsItem] {
		return a.news[i].Fetch(ctx)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := merge(results)
	if err != nil {
		return nil, err
	}

	items = dedupNews(items)
	if filter != nil {
		kept := items[:0]
		for _, it := range items {
			if filter.MatchesText(it.Title + " " + it.Summary) {
				kept = append(kept, it)
			}
		}
		items = kept
	}
	sortNews(items)
	if a.sentiment {
		sentiment.Annotate(items)
	}
	if items == nil {
		items = []models.NewsItem{}
	}
	a.logger.Debug().Int("sources", len(results)).Int("items", len(items)).Msg("news aggregated")
	return items, nil
}

// dedupNews keeps the first occurrence of every URL.
func dedupNews(items []models.NewsItem) []models.NewsItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]models.NewsItem, 0, len(items))
	for _, it := range items {
		k := canonicalURL(it.URL)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

// sortNews orders by publish time, newest first. The sort is stable so
// items published at the same instant keep source order.
func sortNews(items []models.NewsItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})
}

// canonicalURL lowercases scheme and host and drops the fragment and a
// trailing slash, so trivially different links to one article collapse.
func canonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}
