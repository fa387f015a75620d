package cache

import "sync/atomic"

// metrics holds the engine's additive counters. Counters only ever go
// up (Reset swaps in fresh zeros); everything derived — hit rate,
// memory estimate — is computed at read time, never stored.
//
// Atomics rather than lock-held ints so the durable tier and facade can
// count without taking the memory tier's mutex.
type metrics struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64

	// memoryBytes tracks the summed payload sizes resident in L1,
	// maintained by the memory tier under its lock.
	memoryBytes atomic.Int64
}

// Metrics is a point-in-time view of the engine's counters.
type Metrics struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`

	// MemoryItems and MemoryBytes describe the memory tier only; the
	// durable tier is not enumerated for a stats read.
	MemoryItems int   `json:"memory_items"`
	MemoryBytes int64 `json:"memory_bytes"`
}

func (m *metrics) snapshot(items int) Metrics {
	hits := m.hits.Load()
	misses := m.misses.Load()

	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}

	return Metrics{
		Hits:        hits,
		Misses:      misses,
		Evictions:   m.evictions.Load(),
		HitRate:     rate,
		MemoryItems: items,
		MemoryBytes: m.memoryBytes.Load(),
	}
}

func (m *metrics) reset() {
	m.hits.Store(0)
	m.misses.Store(0)
	m.evictions.Store(0)
	m.memoryBytes.Store(0)
}
