package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Tier selects which storage tiers an operation targets.
type Tier uint8

const (
	// TierMemory is the bounded in-process tier.
	TierMemory Tier = 1 << iota
	// TierDurable is the external key-value tier.
	TierDurable

	// TierAll targets both tiers; the default for Set.
	TierAll = TierMemory | TierDurable
)

// invalidateParallelism bounds concurrent per-key deletions during tag
// invalidation.
const invalidateParallelism = 8

// Cache is the engine facade. Construct one per process at startup and
// pass the handle to every consumer; there is no package-level instance.
type Cache struct {
	cfg     Config
	memory  *memoryTier
	durable *durableTier
	metrics *metrics
	log     zerolog.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New validates cfg, wires the tiers over store, and starts the
// background cleaner. An invalid config is fatal: the engine refuses to
// start rather than run with nonsense capacity or TTL settings.
func New(cfg Config, store Store, log zerolog.Logger) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	m := &metrics{}
	memory := newMemoryTier(cfg, m)

	c := &Cache{
		cfg:     cfg,
		memory:  memory,
		durable: newDurableTier(store, memory, cfg, log),
		metrics: m,
		log:     log,
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	go c.cleanerLoop(ctx, cfg.CleanupInterval, log)

	return c, nil
}

// Close stops the cleaner and waits for it. Safe to call more than
// once; no timer outlives the facade.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
	})
}

// Get returns the cached payload for key, trying the memory tier first
// and falling through to the durable tier, which promotes its hit back
// into memory. A total miss is counted once here.
func (c *Cache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	if entry, ok := c.memory.get(key); ok {
		return entry.Data, true
	}
	if entry, ok := c.durable.get(ctx, key); ok {
		c.metrics.hits.Add(1)
		return entry.Data, true
	}
	c.metrics.misses.Add(1)
	return nil, false
}

// GetAs unmarshals the cached payload for key into T. A payload that
// doesn't decode as T is reported absent.
func GetAs[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var v T
	raw, ok := c.Get(ctx, key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cached payload does not decode, treating as miss")
		var zero T
		return zero, false
	}
	return v, true
}

// SetOption adjusts a single Set call.
type SetOption func(*setOptions)

type setOptions struct {
	ttl   time.Duration
	tags  []string
	tiers Tier
}

// WithTTL overrides the configured default TTL for this write.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) { o.ttl = ttl }
}

// WithTags attaches tags for bulk invalidation.
func WithTags(tags ...string) SetOption {
	return func(o *setOptions) { o.tags = tags }
}

// WithTiers restricts which tiers store the entry. Defaults to TierAll.
func WithTiers(t Tier) SetOption {
	return func(o *setOptions) { o.tiers = t }
}

// Set marshals v and writes it to the requested tiers. Tag membership
// is tracked once per key no matter which tiers hold the entry. The
// only error surfaced is an unmarshalable value; durable-tier failures
// are logged and dropped.
func (c *Cache) Set(ctx context.Context, key string, v any, opts ...SetOption) error {
	o := setOptions{ttl: c.cfg.DefaultTTL, tiers: TierAll}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ttl <= 0 {
		o.ttl = c.cfg.DefaultTTL
	}
	if o.tiers == 0 {
		o.tiers = TierAll
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode value for %q: %w", key, err)
	}

	entry := &Entry{
		Data:      data,
		CreatedAt: time.Now(),
		TTL:       o.ttl,
		Tags:      o.tags,
	}
	if c.cfg.EnableVersioning {
		entry.Version = uuid.NewString()
	}

	if o.tiers&TierMemory != 0 {
		c.memory.set(key, entry)
	} else {
		c.memory.track(key, entry.Tags, entry.ExpiresAt())
	}
	if o.tiers&TierDurable != 0 {
		c.durable.set(ctx, key, entry)
	}
	return nil
}

// Delete removes key from both tiers and clears its tag memberships.
// Deleting an absent key is a no-op.
func (c *Cache) Delete(ctx context.Context, key string) {
	c.memory.delete(key)
	_ = c.durable.delete(ctx, key)
}

// InvalidateByTags removes every entry carrying any of the tags,
// resolving affected keys through the tag index so the cost is
// proportional to the number of matches, never the table size. Per-key
// removals run concurrently. Already-applied deletions are not rolled
// back on partial failure; the failed count reports keys whose durable
// deletion failed.
func (c *Cache) InvalidateByTags(ctx context.Context, tags []string) (invalidated, failed int) {
	keys := c.memory.keysForTags(tags)
	if len(keys) == 0 {
		return 0, 0
	}

	var okCount, failCount atomic.Int64
	var g errgroup.Group
	g.SetLimit(invalidateParallelism)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			c.memory.delete(key)
			if err := c.durable.delete(ctx, key); err != nil {
				failCount.Add(1)
				return nil
			}
			okCount.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	c.log.Info().Strs("tags", tags).
		Int64("invalidated", okCount.Load()).
		Int64("failed", failCount.Load()).
		Msg("tag invalidation complete")
	return int(okCount.Load()), int(failCount.Load())
}

// Clear empties the memory tier, deletes every durable entry under the
// cache's namespace, and resets the tag index and metrics.
func (c *Cache) Clear(ctx context.Context) error {
	c.memory.clear()
	err := c.durable.clear(ctx)
	c.metrics.reset()
	return err
}

// WarmupSpec names one key to back-fill and how to fetch it on absence.
type WarmupSpec struct {
	Key   string
	TTL   time.Duration
	Tags  []string
	Fetch func(ctx context.Context) (any, error)
}

// WarmupError reports one spec that could not be warmed.
type WarmupError struct {
	Key string
	Err error
}

// Warmup back-fills absent keys with at most concurrency fetches in
// flight (<= 0 picks 4). Each fetch/set pair is independent: one
// failing fetcher is logged and reported without aborting its siblings.
func (c *Cache) Warmup(ctx context.Context, specs []WarmupSpec, concurrency int) []WarmupError {
	if concurrency <= 0 {
		concurrency = 4
	}

	var mu sync.Mutex
	var failures []WarmupError

	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, spec := range specs {
		spec := spec
		g.Go(func() error {
			if _, ok := c.Get(ctx, spec.Key); ok {
				return nil
			}
			v, err := spec.Fetch(ctx)
			if err == nil {
				err = c.Set(ctx, spec.Key, v, WithTTL(spec.TTL), WithTags(spec.Tags...))
			}
			if err != nil {
				c.log.Warn().Err(err).Str("key", spec.Key).Msg("warmup fetch failed")
				mu.Lock()
				failures = append(failures, WarmupError{Key: spec.Key, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}

// Metrics returns a point-in-time snapshot of the counters with the
// derived hit rate and memory estimate computed now.
func (c *Cache) Metrics() Metrics {
	return c.metrics.snapshot(c.memory.len())
}
