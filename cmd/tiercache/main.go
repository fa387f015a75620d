// Command tiercache runs the cache engine behind a small HTTP server
// with a synthetic content source, useful for poking at the engine and
// watching its metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/contentops/tiercache/cache"
	"github.com/contentops/tiercache/internal/config"
	"github.com/contentops/tiercache/internal/http/routes"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store cache.Store
	if cfg.UseMemoryStore {
		logger.Warn().Msg("using in-process durable store; entries do not survive restarts")
		store = cache.NewMemoryStore()
	} else {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = client.Close() }()
		if err := client.Ping(ctx).Err(); err != nil {
			// The cache fail-opens on store errors, so a down Redis is
			// degraded service, not a startup failure.
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, continuing fail-open")
		}
		store = cache.NewRedisStore(client)
	}

	engine, err := cache.New(cache.Config{
		MaxMemoryItems:       cfg.Cache.MaxMemoryItems,
		DefaultTTL:           cfg.Cache.DefaultTTL,
		CompressionThreshold: cfg.Cache.CompressionThreshold,
		EnableCompression:    cfg.Cache.EnableCompression,
		EnableVersioning:     cfg.Cache.EnableVersioning,
		Namespace:            cfg.Cache.Namespace,
		CleanupInterval:      cfg.Cache.CleanupInterval,
	}, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("cache engine refused to start")
	}
	defer engine.Close()

	warmFrontPage(ctx, engine, logger)

	srv := routes.New(routes.ServerOptions{
		Cache:      engine,
		Source:     fetchContent,
		ContentTTL: cfg.Cache.DefaultTTL,
		Logger:     logger,
	})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Router}
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("tiercache listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}
}

// warmFrontPage pre-fills the keys the first page load will ask for.
func warmFrontPage(ctx context.Context, engine *cache.Cache, logger zerolog.Logger) {
	ids := []string{"home", "featured", "trending"}
	specs := make([]cache.WarmupSpec, 0, len(ids))
	for _, id := range ids {
		specs = append(specs, cache.WarmupSpec{
			Key:  "content:" + id,
			Tags: []string{"content", "content:" + id},
			Fetch: func(ctx context.Context) (any, error) {
				return json.RawMessage(syntheticContent(id)), nil
			},
		})
	}
	for _, fail := range engine.Warmup(ctx, specs, 3) {
		logger.Warn().Err(fail.Err).Str("key", fail.Key).Msg("warmup failed")
	}
}

// fetchContent stands in for the real content backend.
func fetchContent(_ *http.Request, id string) ([]byte, error) {
	return syntheticContent(id), nil
}

func syntheticContent(id string) []byte {
	doc := map[string]string{
		"id":        id,
		"revision":  uuid.NewString(),
		"generated": time.Now().UTC().Format(time.RFC3339),
	}
	b, _ := json.Marshal(doc)
	return b
}
