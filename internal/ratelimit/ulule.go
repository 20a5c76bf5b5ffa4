package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// FixedWindow adapts a ulule limiter to Limiter.
type FixedWindow struct {
	L *limiter.Limiter
}

// NewFixedWindow builds a limiter allowing max events per window on store.
func NewFixedWindow(store limiter.Store, window time.Duration, max int64) FixedWindow {
	return FixedWindow{L: limiter.New(store, limiter.Rate{Period: window, Limit: max})}
}

// NewRedisStore returns a ulule store keeping counters in Redis under prefix.
func NewRedisStore(rdb *redis.Client, prefix string) (limiter.Store, error) {
	store, err := sredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix, MaxRetry: 3})
	if err != nil {
		return nil, fmt.Errorf("limiter store: %w", err)
	}
	return store, nil
}

// Allow counts one event for key.
func (f FixedWindow) Allow(ctx context.Context, key string) (Decision, error) {
	lc, err := f.L.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !lc.Reached,
		Limit:     int(lc.Limit),
		Remaining: int(lc.Remaining),
		Reset:     time.Unix(lc.Reset, 0),
	}, nil
}
