package source

import (
	"bytes"
	"context"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/geraldosnetto/agro-sub002/internal/normalize"
	"github.com/geraldosnetto/agro-sub002/pkg/models"
)

// RSS fetches one syndicated news feed.
type RSS struct {
	base
	name string
	url  string
}

// NewRSS creates a client for a single feed.
func NewRSS(name, url string, opts ...Option) *RSS {
	return &RSS{base: newBase(opts), name: name, url: url}
}

// Name returns the publisher name.
func (r *RSS) Name() string { return r.name }

// URL returns the feed URL.
func (r *RSS) URL() string { return r.url }

// Fetch downloads and parses the feed. Items without a usable link or date
// are dropped by the normalizer; a feed with zero usable items is a success.
func (r *RSS) Fetch(ctx context.Context) Result[models.NewsItem] {
	start := time.Now()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	body, err := r.get(ctx, r.name, r.url, "application/rss+xml, application/atom+xml, application/xml, text/xml;q=0.9, */*;q=0.8")
	if err != nil {
		return finish[models.NewsItem](&r.base, r.name, "news", start, nil, err)
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return finish[models.NewsItem](&r.base, r.name, "news", start, nil, parseError(r.name, err))
	}

	items := make([]models.NewsItem, 0, len(feed.Items))
	dropped := 0
	for _, it := range feed.Items {
		n, ok := normalize.NewsFromItem(r.name, it)
		if !ok {
			dropped++
			continue
		}
		items = append(items, n)
	}
	if dropped > 0 {
		r.logger.Debug().Str("source", r.name).Int("dropped", dropped).Msg("feed items dropped")
	}
	return finish(&r.base, r.name, "news", start, items, nil)
}
