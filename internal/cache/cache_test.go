package cache

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/geraldosnetto/agro-sub002/internal/config"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestPolicy(t *testing.T) (*Policy, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)}
	p := New(NewMemoryStore(), WithClock(clock.Now))
	t.Cleanup(func() { p.Close() })
	return p, clock
}

// ── Key ──

func TestKeyStringSortedParams(t *testing.T) {
	a := NewKey(KindWeather).WithCoord("lon", -46.6333).WithCoord("lat", -23.5505)
	b := NewKey(KindWeather).WithCoord("lat", -23.5505).WithCoord("lon", -46.6333)
	want := "weather?lat=-23.55&lon=-46.63"
	if a.String() != want {
		t.Errorf("Key.String: got %q, want %q", a.String(), want)
	}
	if a.String() != b.String() {
		t.Errorf("param order changed key: %q vs %q", a.String(), b.String())
	}
}

func TestKeyNormalization(t *testing.T) {
	tests := []struct {
		key  Key
		want string
	}{
		{NewKey(KindNews), "news"},
		{NewKey(KindQuotes).WithSlug("  Boi-Gordo "), "quotes?slug=boi-gordo"},
		{NewKey(KindQuoteHistory).WithSlug("soja").WithInt("days", 30), "quote-history?days=30&slug=soja"},
		{NewKey(KindWeather).WithCoord("lat", -0.001), "weather?lat=0.00"},
		{NewKey(KindCitySearch).WithText("q", "  Rio   Verde "), "city-search?q=rio verde"},
	}
	for _, tc := range tests {
		if got := tc.key.String(); got != tc.want {
			t.Errorf("Key.String: got %q, want %q", got, tc.want)
		}
	}
}

func TestKeyWithDoesNotMutate(t *testing.T) {
	base := NewKey(KindNews).WithInt("limit", 10)
	_ = base.WithSlug("soja")
	if base.String() != "news?limit=10" {
		t.Errorf("base key mutated: %q", base.String())
	}
}

// ── Fetch ──

func TestFetchHitWithinTTL(t *testing.T) {
	p, clock := newTestPolicy(t)
	ctx := context.Background()
	key := NewKey(KindNews)

	calls := 0
	compute := func(context.Context) ([]string, error) {
		calls++
		return []string{"a", "b"}, nil
	}

	first, err := Fetch(ctx, p, key, false, compute)
	if err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	if first.Cached {
		t.Error("first Fetch should not be cached")
	}

	clock.Advance(30 * time.Minute)
	second, err := Fetch(ctx, p, key, false, compute)
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if !second.Cached {
		t.Error("second Fetch within TTL should be cached")
	}
	if calls != 1 {
		t.Errorf("compute calls: got %d, want 1", calls)
	}
	if len(second.Value) != 2 || second.Value[0] != "a" {
		t.Errorf("cached value: got %v", second.Value)
	}
	if !second.StoredAt.Equal(first.StoredAt) {
		t.Errorf("StoredAt: got %v, want %v", second.StoredAt, first.StoredAt)
	}
}

func TestFetchRecomputesAfterExpiry(t *testing.T) {
	p, clock := newTestPolicy(t)
	ctx := context.Background()
	key := NewKey(KindInternational)

	calls := 0
	compute := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	if _, err := Fetch(ctx, p, key, false, compute); err != nil {
		t.Fatal(err)
	}
	clock.Advance(15 * time.Minute)
	got, err := Fetch(ctx, p, key, false, compute)
	if err != nil {
		t.Fatal(err)
	}
	if got.Cached || got.Value != 2 {
		t.Errorf("after expiry: got %+v, want fresh value 2", got)
	}
}

func TestFetchForceBypassesCache(t *testing.T) {
	p, _ := newTestPolicy(t)
	ctx := context.Background()
	key := NewKey(KindReferenceRate)

	calls := 0
	compute := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}
	Fetch(ctx, p, key, false, compute)
	got, err := Fetch(ctx, p, key, true, compute)
	if err != nil {
		t.Fatal(err)
	}
	if got.Cached || got.Value != 2 {
		t.Errorf("forced fetch: got %+v", got)
	}
	again, _ := Fetch(ctx, p, key, false, compute)
	if !again.Cached || again.Value != 2 {
		t.Errorf("forced result should overwrite entry: got %+v", again)
	}
}

func TestFetchErrorNotStored(t *testing.T) {
	p, _ := newTestPolicy(t)
	ctx := context.Background()
	key := NewKey(KindWeather).WithCoord("lat", 1).WithCoord("lon", 2)
	boom := errors.New("boom")

	_, err := Fetch(ctx, p, key, false, func(context.Context) (int, error) { return 0, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Fetch error: got %v, want %v", err, boom)
	}
	if _, ok, _ := p.Get(ctx, key); ok {
		t.Error("failed computation must not be stored")
	}
}

func TestFetchConcurrentMissesShareCompute(t *testing.T) {
	p, _ := newTestPolicy(t)
	ctx := context.Background()
	key := NewKey(KindCitySearch).WithText("q", "sorriso")

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "Sorriso", nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]string, n)
	started := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			c, err := Fetch(ctx, p, key, false, compute)
			if err != nil {
				t.Errorf("Fetch: %v", err)
				return
			}
			results[i] = c.Value
		}(i)
	}
	for i := 0; i < n; i++ {
		<-started
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("compute calls: got %d, want 1", got)
	}
	for i, r := range results {
		if r != "Sorriso" {
			t.Errorf("result[%d]: got %q", i, r)
		}
	}
}

func TestFetchLeaderCancelDoesNotFailFollowers(t *testing.T) {
	p, _ := newTestPolicy(t)
	key := NewKey(KindNews)

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(ctx context.Context) ([]string, error) {
		calls.Add(1)
		select {
		case <-release:
			return []string{"a", "b"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := Fetch(leaderCtx, p, key, false, compute)
		leaderErr <- err
	}()
	for calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	type outcome struct {
		c   Cached[[]string]
		err error
	}
	follower := make(chan outcome, 1)
	go func() {
		c, err := Fetch(context.Background(), p, key, false, compute)
		follower <- outcome{c, err}
	}()
	time.Sleep(10 * time.Millisecond)

	cancelLeader()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Errorf("leader: got %v, want context.Canceled", err)
	}
	close(release)

	got := <-follower
	if got.err != nil || len(got.c.Value) != 2 {
		t.Fatalf("follower: got %v items=%d, want 2 items", got.err, len(got.c.Value))
	}
	if calls.Load() != 1 {
		t.Errorf("compute calls: got %d, want 1", calls.Load())
	}
	if _, ok, _ := p.Get(context.Background(), key); !ok {
		t.Error("shared result should be stored after the leader left")
	}
}

func TestFetchComputeTimeout(t *testing.T) {
	p := New(NewMemoryStore(), WithComputeTimeout(20*time.Millisecond))
	defer p.Close()

	_, err := Fetch(context.Background(), p, NewKey(KindQuotes).WithSlug("soja"), false, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want context.DeadlineExceeded", err)
	}
}

// ── Policy ──

func TestInvalidate(t *testing.T) {
	p, _ := newTestPolicy(t)
	ctx := context.Background()
	key := NewKey(KindQuotes).WithSlug("soja")
	if _, err := p.Set(ctx, key, []int{1, 2, 3}, 0); err != nil {
		t.Fatal(err)
	}
	if err := p.Invalidate(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := p.Get(ctx, key); ok {
		t.Error("entry should be gone after Invalidate")
	}
}

func TestSetUsesKindTTL(t *testing.T) {
	p, clock := newTestPolicy(t)
	e, err := p.Set(context.Background(), NewKey(KindWeather), "x", 0)
	if err != nil {
		t.Fatal(err)
	}
	if want := clock.Now().Add(30 * time.Minute); !e.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt: got %v, want %v", e.ExpiresAt, want)
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	store := NewMemoryStore()
	clock := &fakeClock{t: time.Now()}
	p := New(store, WithClock(clock.Now))
	defer p.Close()
	ctx := context.Background()

	p.Set(ctx, NewKey(KindInternational), 1, 0)
	p.Set(ctx, NewKey(KindCitySearch), 2, 0)
	clock.Advance(time.Hour)

	n, err := p.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || store.Len() != 1 {
		t.Errorf("Sweep: removed %d, remaining %d; want 1 and 1", n, store.Len())
	}
}

func TestJanitorAndClose(t *testing.T) {
	store := NewMemoryStore()
	p := New(store, WithSweepInterval(5*time.Millisecond), WithTTLs(map[Kind]time.Duration{KindNews: time.Millisecond}))
	p.Set(context.Background(), NewKey(KindNews), "x", 0)

	deadline := time.Now().Add(time.Second)
	for store.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if store.Len() != 0 {
		t.Error("janitor did not sweep expired entry")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestTTLsFromConfig(t *testing.T) {
	ttls := TTLsFromConfig(config.TTLConfig{News: 10 * time.Minute})
	if ttls[KindNews] != 10*time.Minute {
		t.Errorf("news TTL: got %v", ttls[KindNews])
	}
	if ttls[KindCitySearch] != 24*time.Hour {
		t.Errorf("city search TTL default: got %v", ttls[KindCitySearch])
	}
}

// ── RedisStore ──

func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("AGRODASH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("AGRODASH_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	p := New(NewRedisStore(client, "agrodash-test:"))
	defer p.Close()
	ctx := context.Background()
	key := NewKey(KindQuotes).WithSlug("milho")

	got, err := Fetch(ctx, p, key, true, func(context.Context) (float64, error) { return 61.5, nil })
	if err != nil {
		t.Fatal(err)
	}
	if got.Cached {
		t.Error("forced fetch should not be cached")
	}
	hit, err := Fetch(ctx, p, key, false, func(context.Context) (float64, error) { return 0, errors.New("unused") })
	if err != nil {
		t.Fatal(err)
	}
	if !hit.Cached || hit.Value != 61.5 {
		t.Errorf("redis hit: got %+v", hit)
	}
	p.Invalidate(ctx, key)
}
