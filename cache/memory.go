package cache

import (
	"sync"
	"time"
)

// memoryTier is the bounded in-process tier (L1). A single mutex guards
// the entry table, the tag index, and the per-key tag records so none
// of them can diverge; the lock is held only for in-memory mutation,
// never across I/O.
//
// Tag membership is tracked per key, independent of residency: a key
// written only to the durable tier, or evicted from here while its
// durable copy is still live, stays resolvable by tag until its TTL
// horizon passes or it is explicitly removed.
type memoryTier struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	tracked map[string]tagRecord
	tags    *tagIndex
	seq     uint64

	cfg     Config
	metrics *metrics
}

// memEntry wraps an Entry with its insertion sequence so eviction stays
// deterministic when two writes land on the same clock tick.
type memEntry struct {
	entry *Entry
	seq   uint64
}

// tagRecord is the index-side view of one key: its current tag set and
// the instant after which the membership is dead bookkeeping.
type tagRecord struct {
	tags      []string
	expiresAt time.Time
}

func newMemoryTier(cfg Config, m *metrics) *memoryTier {
	return &memoryTier{
		entries: make(map[string]*memEntry),
		tracked: make(map[string]tagRecord),
		tags:    newTagIndex(),
		cfg:     cfg,
		metrics: m,
	}
}

// get returns a copy of the live entry for key. A dead entry is removed
// on sight and counted as an eviction; the read then reports absent.
// Hits are counted here, total misses at the facade.
func (mt *memoryTier) get(key string) (*Entry, bool) {
	now := time.Now()

	mt.mu.Lock()
	defer mt.mu.Unlock()

	me, ok := mt.entries[key]
	if !ok {
		return nil, false
	}
	if !me.entry.Live(now) {
		mt.dropLocked(key)
		mt.metrics.evictions.Add(1)
		return nil, false
	}

	mt.metrics.hits.Add(1)
	return me.entry.clone(), true
}

// set inserts or overwrites key and refreshes its tag membership. When
// the table is full and key is new, exactly one entry is evicted first:
// the one with the smallest CreatedAt. This is insertion-order eviction
// by contract, not LRU; reads deliberately do not refresh an entry's
// standing.
func (mt *memoryTier) set(key string, entry *Entry) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	_, resident := mt.entries[key]
	if !resident && len(mt.entries) >= mt.cfg.MaxMemoryItems {
		mt.evictOldestLocked()
	}

	stored := entry.clone()
	if mt.cfg.EnableCompression {
		stored.Compressed = len(stored.Data) > mt.cfg.CompressionThreshold
	}

	if resident {
		mt.metrics.memoryBytes.Add(-int64(len(mt.entries[key].entry.Data)))
	}
	mt.metrics.memoryBytes.Add(int64(len(stored.Data)))

	mt.seq++
	mt.entries[key] = &memEntry{entry: stored, seq: mt.seq}
	mt.trackLocked(key, stored.Tags, stored.ExpiresAt())
}

// track records tag membership for a key without storing a resident
// entry. Used for durable-only writes so invalidation still finds them.
func (mt *memoryTier) track(key string, tags []string, expiresAt time.Time) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.trackLocked(key, tags, expiresAt)
}

// delete removes key from the table and from every tag's set. Removing
// an absent key is a no-op, not an error.
func (mt *memoryTier) delete(key string) bool {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	removed := mt.dropLocked(key)
	if rec, ok := mt.tracked[key]; ok {
		mt.tags.remove(key, rec.tags)
		delete(mt.tracked, key)
		removed = true
	}
	return removed
}

// keysForTags resolves the union of keys carrying any of the tags.
func (mt *memoryTier) keysForTags(tags []string) []string {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.tags.keysFor(tags)
}

// purgeExpired removes every resident entry that is no longer live at
// now, counting each as one eviction, and drops dead tag records.
func (mt *memoryTier) purgeExpired(now time.Time) int {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	removed := 0
	for key, me := range mt.entries {
		if !me.entry.Live(now) {
			mt.dropLocked(key)
			removed++
		}
	}
	if removed > 0 {
		mt.metrics.evictions.Add(uint64(removed))
	}

	for key, rec := range mt.tracked {
		if now.After(rec.expiresAt) {
			mt.tags.remove(key, rec.tags)
			delete(mt.tracked, key)
		}
	}
	return removed
}

func (mt *memoryTier) clear() {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.entries = make(map[string]*memEntry)
	mt.tracked = make(map[string]tagRecord)
	mt.tags.reset()
	mt.metrics.memoryBytes.Store(0)
}

func (mt *memoryTier) len() int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return len(mt.entries)
}

// trackLocked reconciles key's tag membership, removing stale tags on
// overwrite. Caller holds mu.
func (mt *memoryTier) trackLocked(key string, tags []string, expiresAt time.Time) {
	old := mt.tracked[key]
	mt.tags.replace(key, old.tags, tags)
	if len(tags) == 0 {
		delete(mt.tracked, key)
		return
	}
	mt.tracked[key] = tagRecord{tags: tags, expiresAt: expiresAt}
}

// dropLocked removes the resident entry only. Tag membership survives
// because a durable copy may still be live; explicit delete and the
// purge horizon take care of it. Caller holds mu.
func (mt *memoryTier) dropLocked(key string) bool {
	me, ok := mt.entries[key]
	if !ok {
		return false
	}
	delete(mt.entries, key)
	mt.metrics.memoryBytes.Add(-int64(len(me.entry.Data)))
	return true
}

// evictOldestLocked drops the resident entry with the smallest
// CreatedAt, breaking clock-tick ties by insertion sequence. Caller
// holds mu.
func (mt *memoryTier) evictOldestLocked() {
	var victim string
	var oldest *memEntry
	for key, me := range mt.entries {
		if oldest == nil ||
			me.entry.CreatedAt.Before(oldest.entry.CreatedAt) ||
			(me.entry.CreatedAt.Equal(oldest.entry.CreatedAt) && me.seq < oldest.seq) {
			victim, oldest = key, me
		}
	}
	if oldest != nil {
		mt.dropLocked(victim)
		mt.metrics.evictions.Add(1)
	}
}
