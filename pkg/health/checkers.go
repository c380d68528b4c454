package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// Pinger is anything with a context-aware Ping, such as a pgx pool or a
// redis client adapter.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck returns a CheckFunc that delegates to p.Ping. Use it as a
// readiness check for storage backends.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// GoroutineCountCheck returns a CheckFunc that fails when the goroutine count
// exceeds threshold. A liveness check for goroutine leaks.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		count := runtime.NumGoroutine()
		if count > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", count, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck returns a CheckFunc that fails when any recorded GC pause
// exceeds threshold. A liveness check for memory pressure.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(_ context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)

		for _, pause := range stats.Pause {
			if pause > threshold {
				return errors.Errorf("GC pause %s exceeds threshold %s", pause, threshold)
			}
		}
		return nil
	}
}
