package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// durableTier adapts the external Store into the L2 tier: it owns the
// entry codec and the namespace prefix, garbage-collects dead entries it
// trips over, and promotes hits back into L1.
//
// Every store failure is fail-open: logged and treated as absent on
// read, a silent drop on write. The cache is best-effort relative to
// the source of truth, so callers never see these errors.
type durableTier struct {
	store  Store
	memory *memoryTier
	prefix string
	log    zerolog.Logger
}

func newDurableTier(store Store, memory *memoryTier, cfg Config, log zerolog.Logger) *durableTier {
	return &durableTier{
		store:  store,
		memory: memory,
		prefix: cfg.Namespace + ":",
		log:    log,
	}
}

func (dt *durableTier) storeKey(key string) string {
	return dt.prefix + key
}

// get reads key from the store. A stored entry past its TTL is deleted
// and reported absent; a live one is promoted into the memory tier with
// its original CreatedAt and TTL so the staleness bound never stretches.
func (dt *durableTier) get(ctx context.Context, key string) (*Entry, bool) {
	raw, found, err := dt.store.Get(ctx, dt.storeKey(key))
	if err != nil {
		dt.log.Warn().Err(err).Str("key", key).Msg("durable get failed, treating as miss")
		return nil, false
	}
	if !found {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		dt.log.Warn().Err(err).Str("key", key).Msg("durable entry corrupt, dropping")
		_ = dt.store.Delete(ctx, dt.storeKey(key))
		return nil, false
	}
	if !entry.Live(time.Now()) {
		_ = dt.store.Delete(ctx, dt.storeKey(key))
		return nil, false
	}

	dt.memory.set(key, &entry)
	return &entry, true
}

// set writes the entry with a store expiration equal to its TTL. A
// failed durable write does not fail the overall Set call.
func (dt *durableTier) set(ctx context.Context, key string, entry *Entry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		dt.log.Warn().Err(err).Str("key", key).Msg("durable encode failed, dropping write")
		return
	}
	if err := dt.store.Set(ctx, dt.storeKey(key), raw, entry.TTL); err != nil {
		dt.log.Warn().Err(err).Str("key", key).Msg("durable set failed, dropping write")
	}
}

// delete removes key from the store. The error is logged here and also
// returned so tag invalidation can count per-key failures; plain Delete
// and Clear ignore it.
func (dt *durableTier) delete(ctx context.Context, key string) error {
	if err := dt.store.Delete(ctx, dt.storeKey(key)); err != nil {
		dt.log.Warn().Err(err).Str("key", key).Msg("durable delete failed")
		return err
	}
	return nil
}

// clear deletes every stored key under the cache's namespace.
func (dt *durableTier) clear(ctx context.Context) error {
	keys, err := dt.store.Keys(ctx, dt.prefix)
	if err != nil {
		dt.log.Warn().Err(err).Msg("durable namespace listing failed")
		return err
	}
	for _, key := range keys {
		if err := dt.store.Delete(ctx, key); err != nil {
			dt.log.Warn().Err(err).Str("key", key).Msg("durable delete failed during clear")
			return err
		}
	}
	return nil
}
