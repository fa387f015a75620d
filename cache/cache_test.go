package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// failingStore errors on every operation, standing in for a durable
// tier that is down.
type failingStore struct{ err error }

func (s *failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, s.err
}
func (s *failingStore) Set(context.Context, string, []byte, time.Duration) error { return s.err }
func (s *failingStore) Delete(context.Context, string) error                     { return s.err }
func (s *failingStore) Keys(context.Context, string) ([]string, error)           { return nil, s.err }

func newTestCache(t *testing.T, cfg Config, store Store) *Cache {
	t.Helper()
	if store == nil {
		store = NewMemoryStore()
	}
	c, err := New(cfg, store, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func defaultTestConfig() Config {
	return Config{
		MaxMemoryItems: 100,
		DefaultTTL:     time.Minute,
		Namespace:      "test",
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero capacity", Config{MaxMemoryItems: 0, DefaultTTL: time.Minute}},
		{"negative capacity", Config{MaxMemoryItems: -1, DefaultTTL: time.Minute}},
		{"zero ttl", Config{MaxMemoryItems: 10}},
		{"negative threshold", Config{MaxMemoryItems: 10, DefaultTTL: time.Minute, CompressionThreshold: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg, NewMemoryStore(), zerolog.Nop())
			require.Error(t, err)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	c := newTestCache(t, defaultTestConfig(), nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", WithTTL(time.Minute)))

	raw, ok := c.Get(ctx, "k")
	require.True(t, ok)
	require.JSONEq(t, `"v"`, string(raw))
}

func TestContentScenario(t *testing.T) {
	// set -> get -> invalidate by tag -> absent.
	c := newTestCache(t, defaultTestConfig(), nil)
	ctx := context.Background()

	payload := map[string]string{"title": "hello"}
	require.NoError(t, c.Set(ctx, "content:42", payload,
		WithTTL(time.Minute), WithTags("content")))

	got, ok := GetAs[map[string]string](ctx, c, "content:42")
	require.True(t, ok)
	require.Equal(t, payload, got)

	invalidated, failed := c.InvalidateByTags(ctx, []string{"content"})
	require.Equal(t, 1, invalidated)
	require.Equal(t, 0, failed)

	_, ok = c.Get(ctx, "content:42")
	require.False(t, ok)
}

func TestDurablePromotion(t *testing.T) {
	c := newTestCache(t, defaultTestConfig(), nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 42, WithTiers(TierDurable)))
	require.Equal(t, 0, c.memory.len(), "durable-only write must not land in L1")

	v, ok := GetAs[int](ctx, c, "k")
	require.True(t, ok)
	require.Equal(t, 42, v)
	require.Equal(t, 1, c.memory.len(), "durable hit must be promoted into L1")

	// The promoted copy now serves reads without touching the store.
	_, ok = c.memory.get("k")
	require.True(t, ok)
}

func TestMemoryOnlyWriteSkipsDurable(t *testing.T) {
	store := NewMemoryStore()
	c := newTestCache(t, defaultTestConfig(), store)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 1, WithTiers(TierMemory)))

	keys, err := store.Keys(ctx, "test:")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestCapacityScenario(t *testing.T) {
	// maxMemoryItems=2; a, b, c in order -> a evicted, b and c readable.
	cfg := defaultTestConfig()
	cfg.MaxMemoryItems = 2
	c := newTestCache(t, cfg, nil)
	ctx := context.Background()

	for i, key := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, key, i+1, WithTiers(TierMemory)))
	}

	_, ok := c.Get(ctx, "a")
	require.False(t, ok, "earliest-inserted key must be evicted")

	b, ok := GetAs[int](ctx, c, "b")
	require.True(t, ok)
	require.Equal(t, 2, b)

	cv, ok := GetAs[int](ctx, c, "c")
	require.True(t, ok)
	require.Equal(t, 3, cv)
}

func TestExpiryThroughFacade(t *testing.T) {
	c := newTestCache(t, defaultTestConfig(), nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", WithTTL(20*time.Millisecond)))
	time.Sleep(50 * time.Millisecond)

	_, ok := c.Get(ctx, "k")
	require.False(t, ok)

	m := c.Metrics()
	require.Equal(t, uint64(1), m.Evictions, "expired L1 read counts one eviction")
	require.Equal(t, uint64(1), m.Misses)
}

func TestDeleteIdempotentLeavesMetricsAlone(t *testing.T) {
	c := newTestCache(t, defaultTestConfig(), nil)
	ctx := context.Background()

	before := c.Metrics()
	c.Delete(ctx, "never-set")
	c.Delete(ctx, "never-set")
	after := c.Metrics()

	require.Equal(t, before.Hits, after.Hits)
	require.Equal(t, before.Misses, after.Misses)
	require.Equal(t, before.Evictions, after.Evictions)
}

func TestInvalidatePrecisionUnderConcurrentTraffic(t *testing.T) {
	c := newTestCache(t, defaultTestConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		tag := "blue"
		if i%2 == 0 {
			tag = "green"
		}
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), i, WithTags(tag)))
	}

	// Interleave reads and disjoint-tag writes with the invalidation.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 20; i < 40; i++ {
			_ = c.Set(ctx, fmt.Sprintf("k%d", i), i, WithTags("green"))
			_, _ = c.Get(ctx, fmt.Sprintf("k%d", i))
		}
	}()

	invalidated, failed := c.InvalidateByTags(ctx, []string{"blue"})
	wg.Wait()

	require.Equal(t, 10, invalidated)
	require.Equal(t, 0, failed)

	for i := 0; i < 20; i++ {
		_, ok := c.Get(ctx, fmt.Sprintf("k%d", i))
		if i%2 == 0 {
			require.True(t, ok, "green key k%d must survive", i)
		} else {
			require.False(t, ok, "blue key k%d must be gone", i)
		}
	}
	for i := 20; i < 40; i++ {
		_, ok := c.Get(ctx, fmt.Sprintf("k%d", i))
		require.True(t, ok, "late green key k%d must survive", i)
	}
}

func TestInvalidateReachesDurableOnlyKeys(t *testing.T) {
	store := NewMemoryStore()
	c := newTestCache(t, defaultTestConfig(), store)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 1, WithTiers(TierDurable), WithTags("t")))

	invalidated, failed := c.InvalidateByTags(ctx, []string{"t"})
	require.Equal(t, 1, invalidated)
	require.Equal(t, 0, failed)

	keys, err := store.Keys(ctx, "test:")
	require.NoError(t, err)
	require.Empty(t, keys, "durable copy must be deleted by tag invalidation")
}

func TestInvalidateReportsPartialFailures(t *testing.T) {
	c := newTestCache(t, defaultTestConfig(), &failingStore{err: errors.New("store down")})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1, WithTags("t")))
	require.NoError(t, c.Set(ctx, "b", 2, WithTags("t")))

	invalidated, failed := c.InvalidateByTags(ctx, []string{"t"})
	require.Equal(t, 0, invalidated)
	require.Equal(t, 2, failed)

	// The L1 side is not rolled back on durable failure.
	_, ok := c.memory.get("a")
	require.False(t, ok)
}

func TestInvalidateUnknownTag(t *testing.T) {
	c := newTestCache(t, defaultTestConfig(), nil)

	invalidated, failed := c.InvalidateByTags(context.Background(), []string{"ghost"})
	require.Zero(t, invalidated)
	require.Zero(t, failed)
}

func TestClearScopedToNamespace(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	c := newTestCache(t, defaultTestConfig(), store)
	other, err := New(Config{MaxMemoryItems: 10, DefaultTTL: time.Minute, Namespace: "other"}, store, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(other.Close)

	require.NoError(t, c.Set(ctx, "k", 1, WithTags("t")))
	require.NoError(t, other.Set(ctx, "k", 2))
	_, _ = c.Get(ctx, "k")

	require.NoError(t, c.Clear(ctx))

	_, ok := c.Get(ctx, "k")
	require.False(t, ok)

	// Cleared engine: tag index and metrics reset too. The Get above
	// registered one miss after the reset.
	require.Empty(t, c.memory.keysForTags([]string{"t"}))
	require.Equal(t, uint64(1), c.Metrics().Misses)

	// The neighbor namespace is untouched.
	v, ok := GetAs[int](ctx, other, "k")
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestWarmupSkipsPresentKeys(t *testing.T) {
	c := newTestCache(t, defaultTestConfig(), nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "warm1", "already"))
	require.NoError(t, c.Set(ctx, "warm2", "already"))

	var fetches atomic.Int32
	specs := make([]WarmupSpec, 0, 4)
	for _, key := range []string{"warm1", "warm2", "cold1", "cold2"} {
		specs = append(specs, WarmupSpec{
			Key: key,
			Fetch: func(context.Context) (any, error) {
				fetches.Add(1)
				return "fetched", nil
			},
		})
	}

	failures := c.Warmup(ctx, specs, 2)
	require.Empty(t, failures)
	require.Equal(t, int32(2), fetches.Load(), "only absent keys may be fetched")

	v, ok := GetAs[string](ctx, c, "cold1")
	require.True(t, ok)
	require.Equal(t, "fetched", v)
}

func TestWarmupIsolatesFailures(t *testing.T) {
	c := newTestCache(t, defaultTestConfig(), nil)
	ctx := context.Background()

	specs := []WarmupSpec{
		{Key: "bad", Fetch: func(context.Context) (any, error) {
			return nil, errors.New("origin 500")
		}},
		{Key: "good", Fetch: func(context.Context) (any, error) {
			return "payload", nil
		}},
	}

	failures := c.Warmup(ctx, specs, 2)
	require.Len(t, failures, 1)
	require.Equal(t, "bad", failures[0].Key)

	_, ok := c.Get(ctx, "good")
	require.True(t, ok, "sibling warmup must complete despite the failure")
}

func TestFailOpenOnStoreErrors(t *testing.T) {
	c := newTestCache(t, defaultTestConfig(), &failingStore{err: errors.New("connection refused")})
	ctx := context.Background()

	// Writes succeed in L1 even though every durable write drops.
	require.NoError(t, c.Set(ctx, "k", "v"))

	raw, ok := c.Get(ctx, "k")
	require.True(t, ok)
	require.JSONEq(t, `"v"`, string(raw))

	// A pure durable read against the dead store is just a miss.
	_, ok = c.Get(ctx, "elsewhere")
	require.False(t, ok)
}

func TestVersioningStampsDistinctVersions(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.EnableVersioning = true
	c := newTestCache(t, cfg, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 1))
	first, ok := c.memory.get("k")
	require.True(t, ok)

	require.NoError(t, c.Set(ctx, "k", 2))
	second, ok := c.memory.get("k")
	require.True(t, ok)

	require.NotEmpty(t, first.Version)
	require.NotEmpty(t, second.Version)
	require.NotEqual(t, first.Version, second.Version)
}

func TestHitRateDerived(t *testing.T) {
	c := newTestCache(t, defaultTestConfig(), nil)
	ctx := context.Background()

	require.Zero(t, c.Metrics().HitRate, "no requests yet means rate 0")

	require.NoError(t, c.Set(ctx, "k", 1))
	_, _ = c.Get(ctx, "k")
	_, _ = c.Get(ctx, "k")
	_, _ = c.Get(ctx, "missing")
	_, _ = c.Get(ctx, "missing")

	m := c.Metrics()
	require.Equal(t, uint64(2), m.Hits)
	require.Equal(t, uint64(2), m.Misses)
	require.InDelta(t, 0.5, m.HitRate, 1e-9)
	require.Equal(t, 1, m.MemoryItems)
	require.Equal(t, int64(1), m.MemoryBytes, `payload "1" is one byte`)
}

func TestGetAsRejectsMismatchedPayload(t *testing.T) {
	c := newTestCache(t, defaultTestConfig(), nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "not a number"))

	_, ok := GetAs[int](ctx, c, "k")
	require.False(t, ok)
}

func TestCloseIdempotent(t *testing.T) {
	c, err := New(defaultTestConfig(), NewMemoryStore(), zerolog.Nop())
	require.NoError(t, err)
	c.Close()
	c.Close()
}

func TestCleanerPurgesWithoutReads(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.CleanupInterval = 20 * time.Millisecond
	c := newTestCache(t, cfg, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", WithTTL(10*time.Millisecond), WithTiers(TierMemory)))

	require.Eventually(t, func() bool {
		return c.memory.len() == 0
	}, time.Second, 10*time.Millisecond, "cleaner should remove the expired entry without a read")
}
