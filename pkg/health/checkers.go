package health

import (
	"context"
	"runtime"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GoroutineCountCheck flags a goroutine leak once the count passes the
// threshold. Intended as a liveness check.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if count := runtime.NumGoroutine(); count > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", count, threshold)
		}
		return nil
	}
}

// DatabasePingCheck probes the connection pool. Intended as a readiness
// check; the order API cannot serve anything without its store.
func DatabasePingCheck(pool *pgxpool.Pool) CheckFunc {
	return func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping database")
		}
		return nil
	}
}

// StalenessCheck fails when the supplied timestamp source reports a value
// older than maxAge. Used to watch the outbox dispatcher: if no poll has
// completed recently, the side-effect queue is stalled.
func StalenessCheck(lastRun func() time.Time, maxAge time.Duration) CheckFunc {
	return func(_ context.Context) error {
		last := lastRun()
		if last.IsZero() {
			return nil
		}
		if age := time.Since(last); age > maxAge {
			return errors.Errorf("last run %s ago exceeds %s", age, maxAge)
		}
		return nil
	}
}
