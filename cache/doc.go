// Package cache implements a multi-tier caching engine for a
// content-serving backend: a bounded in-process memory tier (L1), a
// durable key-value tier behind a pluggable Store (L2), and a stateless
// edge-header generator (L3).
//
// The engine is strictly best-effort relative to the source of truth.
// Backing-store failures are logged and treated as misses on read and
// silent drops on write; callers never receive a cache-specific error
// during steady-state Get/Set. Staleness is bounded by each entry's TTL,
// not eliminated.
//
// Entries carry tags, and a maintained tag index makes bulk invalidation
// proportional to the number of affected keys rather than the table size.
package cache
