package aggregate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/geraldosnetto/agro-sub002/internal/sentiment"
	"github.com/geraldosnetto/agro-sub002/pkg/models"
)

// Snapshot is the market context handed to the report generator.
type Snapshot struct {
	Commodities   []models.Commodity                   `json:"commodities"`
	Quotes        map[string][]models.Quote            `json:"quotes"`
	International map[string]models.InternationalPrice `json:"international"`
	Rate          *models.ReferenceRate                `json:"rate,omitempty"`
	News          []models.NewsItem                    `json:"news"`
	Mood          sentiment.Summary                    `json:"mood"`
	TakenAt       time.Time                            `json:"taken_at"`
	Missing       []string                             `json:"missing,omitempty"`
}

// SnapshotQuery selects what a snapshot covers. An empty Slugs list means
// every active commodity with a page contract.
type SnapshotQuery struct {
	Slugs     []string
	NewsSlug  string
	NewsLimit int
}

// Snapshot collects quotes, international prices, the FX rate and top news
// concurrently. Parts that fail are listed in Missing. It fails as a whole
// only when the context is cancelled or no part yielded any data, in which
// case the error wraps ErrAllSourcesFailed.
func (a *Aggregator) Snapshot(ctx context.Context, q SnapshotQuery) (Snapshot, error) {
	snap := Snapshot{
		Quotes:        make(map[string][]models.Quote),
		International: make(map[string]models.InternationalPrice),
		TakenAt:       a.now(),
	}

	slugs := q.Slugs
	if len(slugs) == 0 {
		for _, c := range a.catalog.Active() {
			if len(c.Pages) > 0 {
				slugs = append(slugs, c.Slug)
			}
		}
	}
	for _, s := range slugs {
		if c, ok := a.catalog.Get(s); ok {
			snap.Commodities = append(snap.Commodities, c.Commodity)
		}
	}

	var mu sync.Mutex
	missing := func(part string) {
		mu.Lock()
		snap.Missing = append(snap.Missing, part)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	quotes := make([][]models.Quote, len(snap.Commodities))
	for i, c := range snap.Commodities {
		g.Go(func() error {
			res, err := a.AggregateQuotes(gctx, c.Slug, false)
			if err != nil {
				missing("quotes:" + c.Slug)
				return nil
			}
			quotes[i] = res.Value
			return nil
		})
	}
	g.Go(func() error {
		res, err := a.AggregateInternationalPrices(gctx, false)
		if err != nil {
			missing("international")
			return nil
		}
		snap.International = res.Value
		return nil
	})
	g.Go(func() error {
		res, err := a.ReferenceRate(gctx, false)
		if err != nil {
			missing("rate")
			return nil
		}
		rate := res.Value
		snap.Rate = &rate
		return nil
	})
	g.Go(func() error {
		res, err := a.AggregateNews(gctx, NewsQuery{Limit: q.NewsLimit, Commodity: q.NewsSlug})
		if err != nil {
			missing("news")
			return nil
		}
		snap.News = res.Value
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	for i, c := range snap.Commodities {
		if len(quotes[i]) > 0 {
			snap.Quotes[c.Slug] = quotes[i]
		}
	}
	sort.Strings(snap.Missing)
	if snap.empty() {
		return Snapshot{}, fmt.Errorf("%w: snapshot has no data (missing %v)", ErrAllSourcesFailed, snap.Missing)
	}
	snap.Mood = sentiment.Aggregate(snap.News, snap.TakenAt)
	return snap, nil
}

func (s Snapshot) empty() bool {
	return len(s.Quotes) == 0 && len(s.International) == 0 && s.Rate == nil && len(s.News) == 0
}
