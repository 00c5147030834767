package aggregate

import (
	"context"
	"log"
	"time"

	"videoinsight/internal/store"
)

// flushOnce drains the in-memory partial sums and merges them into the
// store, then snapshots engagement. If the merge fails, the drained rows
// are folded back into the aggregator so the next tick retries them;
// addition being commutative makes the re-merge safe even while new
// events keep arriving.
func flushOnce(ctx context.Context, a *Aggregator, st store.Store) error {
	rows := a.DrainDeltas()
	if len(rows) > 0 {
		if err := st.MergeRetentionDeltas(ctx, rows); err != nil {
			a.Merge(rows)
			return err
		}
	}
	if eng := a.EngagementSnapshot(); len(eng) > 0 {
		if err := st.UpsertEngagement(ctx, eng); err != nil {
			return err
		}
	}
	return nil
}

// StartFlushWorker launches a background goroutine that flushes the
// aggregator into the store every interval, and once more on shutdown so
// the final partials are not lost. Errors are logged and retried on the
// next tick. The returned channel closes after the final flush.
func StartFlushWorker(ctx context.Context, a *Aggregator, st store.Store, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := flushOnce(ctx, a, st); err != nil {
					log.Printf("aggregate flush error: %v", err)
				}
			case <-ctx.Done():
				if err := flushOnce(context.Background(), a, st); err != nil {
					log.Printf("aggregate final flush error: %v", err)
				}
				return
			}
		}
	}()
	return done
}
