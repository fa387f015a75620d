package cache

import (
	"fmt"
	"time"
)

// Config controls engine capacity, expiry, and compression marking.
// It is immutable once passed to New.
type Config struct {
	// MaxMemoryItems bounds the memory tier. Must be > 0.
	MaxMemoryItems int

	// DefaultTTL applies to writes that don't specify one. Must be > 0.
	DefaultTTL time.Duration

	// CompressionThreshold is the payload size in bytes above which an
	// entry is marked for compression. Advisory only; the codec lives
	// outside the engine. Must be >= 0.
	CompressionThreshold int

	// EnableCompression turns the advisory marking on.
	EnableCompression bool

	// EnableVersioning stamps each write with a distinct version for
	// optimistic staleness checks.
	EnableVersioning bool

	// Namespace prefixes every durable-tier key so Clear can scope its
	// prefix scan. Empty means "tiercache".
	Namespace string

	// CleanupInterval is how often the background cleaner sweeps expired
	// memory-tier entries. <= 0 picks the 60s default.
	CleanupInterval time.Duration
}

// Validate reports the first invalid setting. The engine refuses to
// start on a bad config rather than limping with defaults.
func (c Config) Validate() error {
	if c.MaxMemoryItems <= 0 {
		return fmt.Errorf("cache: MaxMemoryItems must be > 0, got %d", c.MaxMemoryItems)
	}
	if c.DefaultTTL <= 0 {
		return fmt.Errorf("cache: DefaultTTL must be > 0, got %s", c.DefaultTTL)
	}
	if c.CompressionThreshold < 0 {
		return fmt.Errorf("cache: CompressionThreshold must be >= 0, got %d", c.CompressionThreshold)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Namespace == "" {
		c.Namespace = "tiercache"
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 60 * time.Second
	}
	return c
}
