package lifecycle

import (
	"context"
	"time"

	"github.com/chainguard-dev/clog"
)

// DefaultSweepBatch is the number of stale rows reclaimed per pass.
const DefaultSweepBatch = 100

// Sweep deletes up to batch rows that are past their TTL or whose limits are
// spent, together with any ciphertext still stored for them. It repairs
// purges that failed during Retrieve and rows left by an interrupted Create.
func (s *Service) Sweep(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = DefaultSweepBatch
	}

	slugs, err := s.meta.ListStale(ctx, s.now().UTC(), batch)
	if err != nil {
		return 0, unavailable("list stale secrets", err)
	}

	removed := 0
	for _, slug := range slugs {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := s.blobs.Delete(ctx, slug); err != nil {
			return removed, unavailable("delete ciphertext", err)
		}
		if err := s.meta.Delete(ctx, slug); err != nil {
			return removed, unavailable("delete secret", err)
		}
		removed++
	}
	return removed, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration, batch int) {
	log := clog.FromContext(ctx).With("component", "sweeper")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("sweeper stopped")
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx, batch)
			if err != nil {
				log.Warn("sweep failed", "removed", n, "error", err)
				continue
			}
			if n > 0 {
				log.Info("swept stale secrets", "removed", n)
			}
		}
	}
}
