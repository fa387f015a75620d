// Package config loads the tiercache binary's configuration from
// environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the binary needs to wire the engine.
type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	// UseMemoryStore swaps the Redis durable tier for an in-process
	// store; development only.
	UseMemoryStore bool `env:"USE_MEMORY_STORE" envDefault:"false"`

	Cache CacheConfig
}

// CacheConfig mirrors the engine's recognized options.
type CacheConfig struct {
	MaxMemoryItems       int           `env:"CACHE_MAX_ITEMS" envDefault:"1000"`
	DefaultTTL           time.Duration `env:"CACHE_DEFAULT_TTL" envDefault:"60s"`
	CompressionThreshold int           `env:"CACHE_COMPRESSION_THRESHOLD" envDefault:"1024"`
	EnableCompression    bool          `env:"CACHE_ENABLE_COMPRESSION" envDefault:"true"`
	EnableVersioning     bool          `env:"CACHE_ENABLE_VERSIONING" envDefault:"true"`
	Namespace            string        `env:"CACHE_NAMESPACE" envDefault:"tiercache"`
	CleanupInterval      time.Duration `env:"CACHE_CLEANUP_INTERVAL" envDefault:"60s"`
}

// Load parses the environment and validates the result. Invalid cache
// settings are fatal at startup, never papered over with defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine would refuse anyway, so
// the failure surfaces with the offending variable named.
func (c Config) Validate() error {
	if c.Cache.MaxMemoryItems <= 0 {
		return fmt.Errorf("CACHE_MAX_ITEMS must be > 0, got %d", c.Cache.MaxMemoryItems)
	}
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("CACHE_DEFAULT_TTL must be > 0, got %s", c.Cache.DefaultTTL)
	}
	if c.Cache.CompressionThreshold < 0 {
		return fmt.Errorf("CACHE_COMPRESSION_THRESHOLD must be >= 0, got %d", c.Cache.CompressionThreshold)
	}
	if !c.UseMemoryStore && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR must be set unless USE_MEMORY_STORE=true")
	}
	return nil
}
