package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/geraldosnetto/agro-sub002/internal/cache"
	"github.com/geraldosnetto/agro-sub002/internal/catalog"
	"github.com/geraldosnetto/agro-sub002/internal/source"
	"github.com/geraldosnetto/agro-sub002/internal/store"
	"github.com/geraldosnetto/agro-sub002/pkg/models"
)

var base = time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)

// ── fakes ──

type fakeFeed struct {
	name  string
	items []models.NewsItem
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeFeed) Name() string { return f.name }

func (f *fakeFeed) Fetch(ctx context.Context) source.Result[models.NewsItem] {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return source.Result[models.NewsItem]{Source: f.name, Err: ctx.Err()}
		}
	}
	if f.err != nil {
		return source.Result[models.NewsItem]{Source: f.name, Err: f.err}
	}
	return source.Result[models.NewsItem]{Source: f.name, Records: f.items}
}

func item(src, url string, hoursAgo int) models.NewsItem {
	return models.NewsItem{
		Source:      src,
		Title:       "Notícia " + url,
		URL:         url,
		PublishedAt: base.Add(-time.Duration(hoursAgo) * time.Hour),
	}
}

type fakeExchange struct {
	name   string
	quotes []models.Quote
	err    error
	site   string
}

func (f *fakeExchange) Name() string { return f.name }
func (f *fakeExchange) Supports(c catalog.Commodity) bool {
	_, ok := c.Page(f.site)
	return ok
}
func (f *fakeExchange) Quotes(_ context.Context, c catalog.Commodity) source.Result[models.Quote] {
	if f.err != nil {
		return source.Result[models.Quote]{Source: f.name, Err: f.err}
	}
	var out []models.Quote
	for _, q := range f.quotes {
		if q.Commodity == c.Slug {
			out = append(out, q)
		}
	}
	return source.Result[models.Quote]{Source: f.name, Records: out}
}

type fakePrices struct {
	fail map[string]bool
}

func (f *fakePrices) Quote(_ context.Context, c catalog.Commodity) source.Result[models.InternationalPrice] {
	if f.fail[c.Slug] {
		return source.Result[models.InternationalPrice]{Source: c.YahooSymbol, Err: source.ErrUpstreamUnavailable}
	}
	return source.Result[models.InternationalPrice]{
		Source:  c.YahooSymbol,
		Records: []models.InternationalPrice{{Commodity: c.Slug, Symbol: c.YahooSymbol, Price: 100}},
	}
}

type fakeRate struct {
	rate  models.ReferenceRate
	err   error
	calls atomic.Int32
}

func (f *fakeRate) Fetch(context.Context) source.Result[models.ReferenceRate] {
	f.calls.Add(1)
	if f.err != nil {
		return source.Result[models.ReferenceRate]{Source: "bcb", Err: f.err}
	}
	return source.Result[models.ReferenceRate]{Source: "bcb", Records: []models.ReferenceRate{f.rate}}
}

type fakeWeather struct {
	lastLat, lastLon float64
}

func (f *fakeWeather) SearchCities(_ context.Context, q string) source.Result[models.City] {
	return source.Result[models.City]{Source: "om", Records: []models.City{{Name: q}}}
}

func (f *fakeWeather) Forecast(_ context.Context, lat, lon float64) source.Result[models.WeatherReading] {
	f.lastLat, f.lastLon = lat, lon
	return source.Result[models.WeatherReading]{Source: "om", Records: []models.WeatherReading{{Latitude: lat, Longitude: lon, Temperature: 25}}}
}

func newAgg(t *testing.T, opts ...Option) *Aggregator {
	t.Helper()
	p := cache.New(cache.NewMemoryStore())
	t.Cleanup(func() { p.Close() })
	opts = append([]Option{WithClock(func() time.Time { return base })}, opts...)
	return New(p, catalog.Default, opts...)
}

// ── News ──

func TestAggregateNewsPartialFailure(t *testing.T) {
	a := newAgg(t, WithNewsSources(
		&fakeFeed{name: "A", items: []models.NewsItem{item("A", "https://a.com/1", 1)}},
		&fakeFeed{name: "B", err: source.ErrUpstreamUnavailable},
		&fakeFeed{name: "C", items: []models.NewsItem{item("C", "https://c.com/1", 2)}},
	))

	res, err := a.AggregateNews(context.Background(), NewsQuery{})
	if err != nil {
		t.Fatalf("AggregateNews: %v", err)
	}
	if len(res.Value) != 2 {
		t.Fatalf("items: got %d, want 2", len(res.Value))
	}
	for _, it := range res.Value {
		if it.Source == "B" {
			t.Error("failed source contributed records")
		}
	}
}

func TestAggregateNewsAllFailed(t *testing.T) {
	a := newAgg(t, WithNewsSources(
		&fakeFeed{name: "A", err: source.ErrUpstreamUnavailable},
		&fakeFeed{name: "B", err: source.ErrParseFailure},
	))
	_, err := a.AggregateNews(context.Background(), NewsQuery{})
	if !errors.Is(err, ErrAllSourcesFailed) {
		t.Fatalf("got %v, want ErrAllSourcesFailed", err)
	}
	if !errors.Is(err, source.ErrParseFailure) || !errors.Is(err, source.ErrUpstreamUnavailable) {
		t.Errorf("per-source errors should be joined: %v", err)
	}
}

func TestAggregateNewsEmptyButValid(t *testing.T) {
	a := newAgg(t, WithNewsSources(
		&fakeFeed{name: "A"},
		&fakeFeed{name: "B", err: source.ErrUpstreamUnavailable},
	))
	res, err := a.AggregateNews(context.Background(), NewsQuery{})
	if err != nil {
		t.Fatalf("a source with zero items is still a success: %v", err)
	}
	if res.Value == nil || len(res.Value) != 0 {
		t.Errorf("want empty non-nil slice, got %#v", res.Value)
	}
}

func TestAggregateNewsDedupByURL(t *testing.T) {
	a := newAgg(t, WithNewsSources(
		&fakeFeed{name: "A", items: []models.NewsItem{item("A", "https://x.com/soja", 3)}},
		&fakeFeed{name: "B", items: []models.NewsItem{item("B", "https://X.com/soja/", 1), item("B", "https://x.com/milho", 2)}},
	))
	res, err := a.AggregateNews(context.Background(), NewsQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Value) != 2 {
		t.Fatalf("items: got %d, want 2", len(res.Value))
	}
	count := 0
	for _, it := range res.Value {
		if canonicalURL(it.URL) == "https://x.com/soja" {
			count++
			if it.Source != "A" {
				t.Errorf("first occurrence should win, got source %q", it.Source)
			}
		}
	}
	if count != 1 {
		t.Errorf("duplicate URL appears %d times", count)
	}
}

func TestAggregateNewsTruncationDrawsFromAllSources(t *testing.T) {
	// Source A is first in iteration order but has only older items.
	var aItems, bItems []models.NewsItem
	for i := 0; i < 5; i++ {
		aItems = append(aItems, item("A", fmt.Sprintf("https://a.com/%d", i), 10+i))
		bItems = append(bItems, item("B", fmt.Sprintf("https://b.com/%d", i), i))
	}
	a := newAgg(t, WithNewsSources(&fakeFeed{name: "A", items: aItems}, &fakeFeed{name: "B", items: bItems}))

	res, err := a.AggregateNews(context.Background(), NewsQuery{Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Value) != 3 {
		t.Fatalf("items: got %d, want 3", len(res.Value))
	}
	for i, it := range res.Value {
		if it.Source != "B" {
			t.Errorf("item %d: got source %q, want B (newest)", i, it.Source)
		}
		if i > 0 && it.PublishedAt.After(res.Value[i-1].PublishedAt) {
			t.Error("items not sorted newest first")
		}
	}

	// A larger limit is served from the same cached merge.
	all, _ := a.AggregateNews(context.Background(), NewsQuery{Limit: 50})
	if !all.Cached || len(all.Value) != 10 {
		t.Errorf("second call: cached=%v len=%d, want cached 10", all.Cached, len(all.Value))
	}
}

func TestAggregateNewsStableTies(t *testing.T) {
	a := newAgg(t, WithNewsSources(
		&fakeFeed{name: "A", items: []models.NewsItem{item("A", "https://a.com/1", 1)}},
		&fakeFeed{name: "B", items: []models.NewsItem{item("B", "https://b.com/1", 1)}},
	))
	res, _ := a.AggregateNews(context.Background(), NewsQuery{})
	if res.Value[0].Source != "A" || res.Value[1].Source != "B" {
		t.Errorf("ties should keep source order: %q, %q", res.Value[0].Source, res.Value[1].Source)
	}
}

func TestAggregateNewsCommodityFilter(t *testing.T) {
	soja := item("A", "https://a.com/soja", 1)
	soja.Title = "Soja fecha em alta"
	boi := item("A", "https://a.com/boi", 2)
	boi.Title = "Arroba do boi recua"
	a := newAgg(t, WithSentiment(true), WithNewsSources(&fakeFeed{name: "A", items: []models.NewsItem{soja, boi}}))

	res, err := a.AggregateNews(context.Background(), NewsQuery{Commodity: "soja"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Value) != 1 || res.Value[0].URL != "https://a.com/soja" {
		t.Fatalf("filtered: got %+v", res.Value)
	}
	if res.Value[0].Sentiment == nil || *res.Value[0].Sentiment <= 0 {
		t.Errorf("sentiment: got %v", res.Value[0].Sentiment)
	}

	if _, err := a.AggregateNews(context.Background(), NewsQuery{Commodity: "bitcoin"}); !errors.Is(err, ErrUnknownCommodity) {
		t.Errorf("unknown slug: got %v", err)
	}
}

func TestAggregateNewsCachedAndForce(t *testing.T) {
	feed := &fakeFeed{name: "A", items: []models.NewsItem{item("A", "https://a.com/1", 1)}}
	a := newAgg(t, WithNewsSources(feed))
	ctx := context.Background()

	first, _ := a.AggregateNews(ctx, NewsQuery{})
	second, _ := a.AggregateNews(ctx, NewsQuery{})
	if first.Cached || !second.Cached {
		t.Errorf("cached flags: first=%v second=%v", first.Cached, second.Cached)
	}
	forced, _ := a.AggregateNews(ctx, NewsQuery{Force: true})
	if forced.Cached {
		t.Error("forced call must recompute")
	}
	if got := feed.calls.Load(); got != 2 {
		t.Errorf("feed calls: got %d, want 2", got)
	}
}

func TestAggregateNewsCallerDeadline(t *testing.T) {
	slow := &fakeFeed{name: "slow", delay: 300 * time.Millisecond}
	a := newAgg(t, WithNewsSources(slow, &fakeFeed{name: "fast"}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := a.AggregateNews(ctx, NewsQuery{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want context.DeadlineExceeded", err)
	}
	if time.Since(start) > 200*time.Millisecond {
		t.Error("caller waited past its own deadline")
	}
}

func TestAggregateNewsFollowerOutlivesCancelledLeader(t *testing.T) {
	slow := &fakeFeed{name: "slow", delay: 80 * time.Millisecond, items: []models.NewsItem{item("slow", "https://s.com/1", 1)}}
	a := newAgg(t, WithNewsSources(slow))

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := a.AggregateNews(leaderCtx, NewsQuery{})
		leaderErr <- err
	}()
	for slow.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	type outcome struct {
		n   int
		err error
	}
	follower := make(chan outcome, 1)
	go func() {
		res, err := a.AggregateNews(context.Background(), NewsQuery{})
		follower <- outcome{len(res.Value), err}
	}()
	time.Sleep(10 * time.Millisecond)
	cancelLeader()

	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Errorf("leader: got %v, want context.Canceled", err)
	}
	got := <-follower
	if got.err != nil || got.n != 1 {
		t.Errorf("follower with live ctx: items=%d err=%v, want 1 item", got.n, got.err)
	}
	if slow.calls.Load() != 1 {
		t.Errorf("feed calls: got %d, want 1", slow.calls.Load())
	}
}

// ── Quotes / prices ──

func TestAggregateQuotesDedupByMarket(t *testing.T) {
	d := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	a := newAgg(t, WithQuoteSources(
		&fakeExchange{name: "na", site: catalog.SiteNoticiasAgricolas, quotes: []models.Quote{
			{Commodity: "soja", Market: "Sorriso (MT)", Value: 112, Date: d},
			{Commodity: "soja", Market: "Paranaguá (PR)", Value: 135, Date: d},
		}},
		&fakeExchange{name: "cepea", site: catalog.SiteCepea, quotes: []models.Quote{
			{Commodity: "soja", Market: "Paranagua (PR)", Value: 134.45, Date: d},
		}},
	))
	res, err := a.AggregateQuotes(context.Background(), "soja", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Value) != 2 {
		t.Fatalf("quotes: got %+v", res.Value)
	}
	if res.Value[0].Market != "Sorriso (MT)" || res.Value[1].Value != 135 {
		t.Errorf("source order / first wins: got %+v", res.Value)
	}
}

func TestAggregateQuotesOnlySupportingSources(t *testing.T) {
	failing := &fakeExchange{name: "na", site: catalog.SiteNoticiasAgricolas, err: source.ErrUpstreamUnavailable}
	cepea := &fakeExchange{name: "cepea", site: catalog.SiteCepea, quotes: []models.Quote{{Commodity: "etanol", Market: "SP", Value: 2.5}}}
	a := newAgg(t, WithQuoteSources(failing, cepea))

	// etanol has no Notícias Agrícolas contract, so the failing scraper is never asked.
	res, err := a.AggregateQuotes(context.Background(), "etanol", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Value) != 1 {
		t.Errorf("quotes: got %+v", res.Value)
	}
}

func TestAggregateInternationalPrices(t *testing.T) {
	a := newAgg(t, WithPriceSource(&fakePrices{fail: map[string]bool{"cafe": true}}))
	res, err := a.AggregateInternationalPrices(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := res.Value["soja"]; !ok {
		t.Error("soja missing")
	}
	if _, ok := res.Value["cafe"]; ok {
		t.Error("failed symbol must be left out")
	}
	if len(res.Value) != len(catalog.Default.International())-1 {
		t.Errorf("prices: got %d", len(res.Value))
	}
}

// ── Rate / weather ──

func TestReferenceRate(t *testing.T) {
	rate := &fakeRate{rate: models.ReferenceRate{Code: "USD", Venda: 5.3, Variation: 3.92}}
	a := newAgg(t, WithRateSource(rate))
	ctx := context.Background()

	res, err := a.ReferenceRate(ctx, false)
	if err != nil || res.Value.Variation != 3.92 {
		t.Fatalf("got %+v, %v", res, err)
	}
	again, _ := a.ReferenceRate(ctx, false)
	if !again.Cached || rate.calls.Load() != 1 {
		t.Errorf("second call should hit cache")
	}
}

func TestReferenceRateFailure(t *testing.T) {
	a := newAgg(t, WithRateSource(&fakeRate{err: source.ErrUpstreamUnavailable}))
	if _, err := a.ReferenceRate(context.Background(), false); !errors.Is(err, ErrAllSourcesFailed) {
		t.Errorf("got %v, want ErrAllSourcesFailed", err)
	}
}

func TestWeatherRoundsCoordinates(t *testing.T) {
	w := &fakeWeather{}
	a := newAgg(t, WithWeatherSource(w))
	ctx := context.Background()

	if _, err := a.Weather(ctx, -12.5432, -55.7211, false); err != nil {
		t.Fatal(err)
	}
	if w.lastLat != -12.54 || w.lastLon != -55.72 {
		t.Errorf("upstream coords: got %v,%v", w.lastLat, w.lastLon)
	}
	res, _ := a.Weather(ctx, -12.5449, -55.7199, false)
	if !res.Cached {
		t.Error("nearby coordinates should share the cache entry")
	}
}

func TestSearchCities(t *testing.T) {
	a := newAgg(t, WithWeatherSource(&fakeWeather{}))
	res, err := a.SearchCities(context.Background(), "Sorriso")
	if err != nil || len(res.Value) != 1 || res.Value[0].Name != "Sorriso" {
		t.Fatalf("got %+v, %v", res, err)
	}
}

// ── History / ingestion ──

func TestIngestAndHistory(t *testing.T) {
	d := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := store.NewMemoryRepository()
	a := newAgg(t, WithRepository(repo), WithQuoteSources(&fakeExchange{
		name: "cepea", site: catalog.SiteCepea,
		quotes: []models.Quote{{Commodity: "milho", Market: "Campinas (SP)", Value: 60, Date: d}},
	}))
	ctx := context.Background()

	empty, err := a.QuoteHistory(ctx, "milho", 30)
	if err != nil || len(empty.Value) != 0 {
		t.Fatalf("empty history: %+v, %v", empty, err)
	}

	stats, err := a.IngestQuotes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Inserted != 1 {
		t.Errorf("ingest stats: got %+v", stats)
	}

	hist, err := a.QuoteHistory(ctx, "milho", 30)
	if err != nil {
		t.Fatal(err)
	}
	if hist.Cached || len(hist.Value) != 1 {
		t.Errorf("ingestion should invalidate history cache: %+v", hist)
	}
}

func TestHistoryWindowsShareOneEntry(t *testing.T) {
	day := func(n int) time.Time { return base.AddDate(0, 0, -n) }
	repo := store.NewMemoryRepository()
	if _, err := repo.Upsert(context.Background(), []models.Quote{
		{Commodity: "soja", Market: "Paranaguá (PR)", Value: 130, Date: day(3)},
		{Commodity: "soja", Market: "Paranaguá (PR)", Value: 120, Date: day(40)},
	}); err != nil {
		t.Fatal(err)
	}
	a := newAgg(t, WithRepository(repo), WithQuoteSources(&fakeExchange{
		name: "na", site: catalog.SiteNoticiasAgricolas,
		quotes: []models.Quote{{Commodity: "soja", Market: "Paranaguá (PR)", Value: 131, Date: day(1)}},
	}))
	ctx := context.Background()

	short, err := a.QuoteHistory(ctx, "soja", 14)
	if err != nil || len(short.Value) != 1 {
		t.Fatalf("14 days: got %d quotes, %v; want 1", len(short.Value), err)
	}
	long, _ := a.QuoteHistory(ctx, "soja", 60)
	if !long.Cached || len(long.Value) != 2 {
		t.Errorf("60 days: cached=%v quotes=%d, want cached and 2", long.Cached, len(long.Value))
	}

	if _, err := a.IngestQuotes(ctx); err != nil {
		t.Fatal(err)
	}
	after, _ := a.QuoteHistory(ctx, "soja", 14)
	if after.Cached || len(after.Value) != 2 {
		t.Errorf("after ingest, 14 days: cached=%v quotes=%d, want fresh and 2", after.Cached, len(after.Value))
	}
}

func TestQuoteHistoryWithoutRepository(t *testing.T) {
	a := newAgg(t)
	if _, err := a.QuoteHistory(context.Background(), "soja", 7); !errors.Is(err, ErrNoRepository) {
		t.Errorf("got %v, want ErrNoRepository", err)
	}
}

func TestClampDays(t *testing.T) {
	tests := []struct{ in, want int }{{0, 30}, {-1, 30}, {7, 7}, {1000, 365}}
	for _, tc := range tests {
		if got := clampDays(tc.in); got != tc.want {
			t.Errorf("clampDays(%d): got %d, want %d", tc.in, got, tc.want)
		}
	}
}

// ── Snapshot ──

func TestSnapshotToleratesMissingParts(t *testing.T) {
	a := newAgg(t,
		WithNewsSources(&fakeFeed{name: "A", items: []models.NewsItem{item("A", "https://a.com/1", 1)}}),
		WithPriceSource(&fakePrices{}),
		WithRateSource(&fakeRate{err: source.ErrUpstreamUnavailable}),
	)
	snap, err := a.Snapshot(context.Background(), SnapshotQuery{Slugs: []string{"soja"}, NewsLimit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if snap.Rate != nil {
		t.Error("rate should be missing")
	}
	if len(snap.News) != 1 || len(snap.International) == 0 {
		t.Errorf("snapshot: news=%d intl=%d", len(snap.News), len(snap.International))
	}
	found := false
	for _, m := range snap.Missing {
		if m == "rate" {
			found = true
		}
	}
	if !found {
		t.Errorf("Missing: got %v", snap.Missing)
	}
}

func TestSnapshotWithoutAnyDataFails(t *testing.T) {
	a := newAgg(t,
		WithNewsSources(&fakeFeed{name: "A", err: source.ErrUpstreamUnavailable}),
		WithRateSource(&fakeRate{err: source.ErrUpstreamUnavailable}),
	)
	_, err := a.Snapshot(context.Background(), SnapshotQuery{Slugs: []string{"soja"}, NewsLimit: 5})
	if !errors.Is(err, ErrAllSourcesFailed) {
		t.Errorf("got %v, want ErrAllSourcesFailed", err)
	}
}
