package infra

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterAllowsBurst(t *testing.T) {
	rl := NewRateLimiter(3, time.Hour)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
	}
}

func TestRateLimiterHonorsContext(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	rl.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Error("expected context error when bucket is empty")
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond)
	rl.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rl.Wait(ctx); err != nil {
		t.Errorf("token should refill: %v", err)
	}
}

func TestHostLimiterIsolatesHosts(t *testing.T) {
	h := NewHostLimiter(1, time.Hour)
	ctx := context.Background()
	if err := h.Wait(ctx, "https://www.canalrural.com.br/feed/"); err != nil {
		t.Fatal(err)
	}

	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	if err := h.Wait(short, "https://agfeed.com.br/feed/"); err != nil {
		t.Errorf("other host should not be throttled: %v", err)
	}
	if err := h.Wait(short, "https://www.canalrural.com.br/other"); err == nil {
		t.Error("same host should be throttled")
	}
}
