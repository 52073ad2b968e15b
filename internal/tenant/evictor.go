// evictor.go houses the optional sweep loop for MemoryStore.  Every
// interval it drops entries whose TTL has elapsed so idle domains do not
// hold memory until the next read.  Get still checks expiry on its own, so
// the loop is an optimisation, not a correctness requirement.
//
// Each pass that removes anything is logged at DEBUG; per-entry counts go
// to tenant_evict_total{reason="expired"} via the store's evict hook.
package tenant

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Sweeper is implemented by stores that benefit from a background sweep.
type Sweeper interface {
	Sweep(ctx context.Context) int
}

// RunSweeper blocks, sweeping s every interval until ctx is cancelled.
// A nil clock uses wall time.
func RunSweeper(ctx context.Context, s Sweeper, interval time.Duration, clk clock.Clock, log *zap.Logger) {
	if interval <= 0 {
		return
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.L()
	}
	t := clk.Ticker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Sweep(ctx); n > 0 {
				log.Debug("tenant cache sweep", zap.Int("expired", n))
			}
		}
	}
}
