package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSlidingWindowAllow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	window := 2 * time.Second
	limit := 2
	limiter := SlidingWindow{Client: client, Prefix: "test:", Window: window, Max: limit}
	ctx := context.Background()

	for i := 0; i < limit; i++ {
		d, err := limiter.Allow(ctx, "key")
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
		if d.Remaining != limit-(i+1) {
			t.Fatalf("unexpected remaining: %d", d.Remaining)
		}
	}

	d, err := limiter.Allow(ctx, "key")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected third request to be rejected")
	}
	if d.Remaining != 0 {
		t.Fatalf("expected remaining 0, got %d", d.Remaining)
	}

	mr.FastForward(window)

	d, err = limiter.Allow(ctx, "key")
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !d.Allowed {
		t.Fatal("expected request after window to be allowed")
	}
}

func TestSlidingWindowWithoutClientAllows(t *testing.T) {
	d, err := SlidingWindow{Window: time.Second, Max: 1}.Allow(context.Background(), "key")
	if err != nil || !d.Allowed {
		t.Fatalf("expected unconfigured limiter to allow, got %+v %v", d, err)
	}
}
