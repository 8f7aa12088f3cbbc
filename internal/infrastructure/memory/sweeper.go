package memory

import (
	"context"
	"log/slog"
	"time"
)

// Sweepable is a store that can drop its own expired entries.
type Sweepable interface {
	Sweep() int
}

// StartSweeper calls Sweep on every store each interval until ctx is done.
// The returned channel is closed once the goroutine has exited.
func StartSweeper(ctx context.Context, interval time.Duration, stores ...Sweepable) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n := 0
				for _, s := range stores {
					n += s.Sweep()
				}
				if n > 0 {
					slog.Debug("swept expired entries", "count", n)
				}
			}
		}
	}()
	return done
}
