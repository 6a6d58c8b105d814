package jobs

import (
	"context"
	"log/slog"
	"time"
)

// KeyCleaner is the slice of the idempotency store the job needs.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// RunIdempotencyCleanup deletes processed keys older than retention. Keys
// must outlive any plausible retry window before they go.
func RunIdempotencyCleanup(ctx context.Context, store KeyCleaner, retention time.Duration, logger *slog.Logger) error {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	removed, err := store.Cleanup(ctx, retention)
	if err != nil {
		return err
	}
	logger.Info("idempotency cleanup finished",
		slog.String("job", "idempotency_cleanup"),
		slog.Int64("removed", removed))
	return nil
}
