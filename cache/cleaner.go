package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// cleaner periodically purges expired memory-tier entries so keys that
// are written once and never read again don't pile up until capacity
// pressure forces them out. It goes through the same locked path as
// foreground calls.
//
// The facade owns the goroutine: Close cancels ctx and waits.
func (c *Cache) cleanerLoop(ctx context.Context, interval time.Duration, log zerolog.Logger) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := c.memory.purgeExpired(now); removed > 0 {
				log.Debug().Int("removed", removed).Msg("cleaner purged expired entries")
			}
		}
	}
}
