package batch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hywave/roll-hub/rollhub/config"
	"golang.org/x/sync/errgroup"
)

// ApplyFunc persists one entity's coalesced field updates.
type ApplyFunc func(ctx context.Context, entityKey string, fields map[string]any) error

// Batcher coalesces frequent low-urgency field updates per entity key and
// flushes them on a fixed interval. Updates that fail to apply are merged
// back for the next cycle instead of being dropped.
type Batcher struct {
	apply    ApplyFunc
	interval time.Duration

	mu      sync.Mutex
	pending map[string]map[string]any

	flushing atomic.Bool
}

func NewBatcher(apply ApplyFunc) *Batcher {
	return &Batcher{
		apply:    apply,
		interval: config.BatchFlushInterval,
		pending:  make(map[string]map[string]any),
	}
}

// QueueUpdate shallow-merges fields into the entity's pending update. Later
// values overwrite earlier ones for the same field name.
func (b *Batcher) QueueUpdate(entityKey string, fields map[string]any) {
	if len(fields) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	existing, ok := b.pending[entityKey]
	if !ok {
		existing = make(map[string]any, len(fields))
		b.pending[entityKey] = existing
	}
	for k, v := range fields {
		existing[k] = v
	}
}

// HasPendingUpdates reports whether any update is queued.
func (b *Batcher) HasPendingUpdates() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending) > 0
}

// Flush snapshots and clears the pending set, then applies all updates
// concurrently. It is a no-op while a previous flush is still in flight.
func (b *Batcher) Flush(ctx context.Context) error {
	if !b.flushing.CompareAndSwap(false, true) {
		return nil
	}
	defer b.flushing.Store(false)

	b.mu.Lock()
	snapshot := b.pending
	b.pending = make(map[string]map[string]any)
	b.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for key, fields := range snapshot {
		key, fields := key, fields
		g.Go(func() error {
			if err := b.apply(ctx, key, fields); err != nil {
				slog.Warn("Deferred update failed, re-queuing",
					slog.String("entity", key),
					slog.Any("error", err))
				b.requeue(key, fields)
			}
			return nil
		})
	}
	return g.Wait()
}

// requeue merges failed fields back under any updates queued since the
// snapshot. Newer queued values win.
func (b *Batcher) requeue(entityKey string, fields map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, ok := b.pending[entityKey]
	if !ok {
		b.pending[entityKey] = fields
		return
	}
	for k, v := range fields {
		if _, newer := existing[k]; !newer {
			existing[k] = v
		}
	}
}

// StartFlushRoutine flushes on a fixed interval until ctx is cancelled. A
// final flush runs on shutdown so queued updates are not lost.
func (b *Batcher) StartFlushRoutine(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := b.Flush(flushCtx); err != nil {
					slog.Error("Final batch flush failed", slog.Any("error", err))
				}
				cancel()
				return
			case <-ticker.C:
				if err := b.Flush(ctx); err != nil {
					slog.Error("Batch flush failed", slog.Any("error", err))
				}
			}
		}
	}()
}
