package cache

import (
	"encoding/json"
	"time"
)

// Entry is the unit of cached data shared by the memory and durable
// tiers. Data is an opaque JSON payload; the engine never inspects it.
type Entry struct {
	Data       json.RawMessage `json:"data"`
	CreatedAt  time.Time       `json:"created_at"`
	TTL        time.Duration   `json:"ttl"`
	Version    string          `json:"version,omitempty"`
	Tags       []string        `json:"tags,omitempty"`
	Compressed bool            `json:"compressed,omitempty"`
}

// Live reports whether the entry is still readable at now. A non-live
// entry must be treated as absent by every reader, even while it is
// still physically present pending cleanup.
func (e *Entry) Live(now time.Time) bool {
	return !now.After(e.CreatedAt.Add(e.TTL))
}

// ExpiresAt returns the instant the entry stops being live.
func (e *Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

// clone returns a copy the caller may hold without racing internal
// bookkeeping. The memory tier hands out clones so promotions and
// overwrites never mutate data a reader already has.
func (e *Entry) clone() *Entry {
	c := *e
	c.Data = append(json.RawMessage(nil), e.Data...)
	c.Tags = append([]string(nil), e.Tags...)
	return &c
}
