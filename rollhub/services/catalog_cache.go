package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hywave/roll-hub/rollhub/config"
	"github.com/hywave/roll-hub/rollhub/database/models"
	"golang.org/x/sync/singleflight"
)

// CatalogFetcher is the slice of the item repository the cache needs.
type CatalogFetcher interface {
	GetRollable(ctx context.Context) ([]models.Item, error)
}

// CatalogCache is a time-boxed read-through cache of rollable item
// definitions. Concurrent callers during a fetch share one in-flight request,
// and every successful fetch is persisted to the local snapshot store.
type CatalogCache struct {
	fetcher CatalogFetcher
	store   *SnapshotStore // nil disables persistence
	ttl     time.Duration

	mu        sync.RWMutex
	snapshot  []models.Item
	fetchedAt time.Time

	group singleflight.Group
}

func NewCatalogCache(fetcher CatalogFetcher, store *SnapshotStore) *CatalogCache {
	c := &CatalogCache{
		fetcher: fetcher,
		store:   store,
		ttl:     config.CatalogCacheTTL,
	}
	c.warmFromStore()
	return c
}

// warmFromStore seeds the in-memory snapshot from the local store when its
// persisted copy is still inside the freshness window.
func (c *CatalogCache) warmFromStore() {
	if c.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	items, fetchedAt, ok, err := c.store.Load(ctx)
	if err != nil {
		slog.Warn("Failed to load persisted catalog snapshot", slog.Any("error", err))
		return
	}
	if !ok || len(items) == 0 || time.Since(fetchedAt) >= c.ttl {
		return
	}

	c.snapshot = items
	c.fetchedAt = fetchedAt
	slog.Info("Catalog snapshot restored from local store",
		slog.Int("items", len(items)),
		slog.Time("fetched_at", fetchedAt))
}

// GetRollableItems returns the cached snapshot while it is younger than the
// freshness window and non-empty, fetching otherwise.
func (c *CatalogCache) GetRollableItems(ctx context.Context) ([]models.Item, error) {
	c.mu.RLock()
	if len(c.snapshot) > 0 && time.Since(c.fetchedAt) < c.ttl {
		items := c.snapshot
		c.mu.RUnlock()
		return items, nil
	}
	c.mu.RUnlock()

	return c.fetch(ctx)
}

// Refresh forces a re-fetch regardless of snapshot age.
func (c *CatalogCache) Refresh(ctx context.Context) ([]models.Item, error) {
	return c.fetch(ctx)
}

func (c *CatalogCache) fetch(ctx context.Context) ([]models.Item, error) {
	v, err, _ := c.group.Do("catalog", func() (interface{}, error) {
		items, err := c.fetcher.GetRollable(ctx)
		if err != nil {
			return nil, err
		}

		fetchedAt := time.Now()
		c.mu.Lock()
		c.snapshot = items
		c.fetchedAt = fetchedAt
		c.mu.Unlock()

		if c.store != nil {
			// Persistence is best-effort; a failed write never fails a roll.
			if err := c.store.Save(ctx, items, fetchedAt); err != nil {
				slog.Warn("Failed to persist catalog snapshot", slog.Any("error", err))
			}
		}

		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Item), nil
}

// RemoveItem optimistically evicts an item from the local snapshot so the
// next roll cannot re-select it before the next refresh. Used after a
// transaction discovers the item just sold out or expired. The eviction
// builds a fresh slice; slices already handed to callers keep their backing
// array untouched.
func (c *CatalogCache) RemoveItem(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.snapshot {
		if c.snapshot[i].ID == id {
			next := make([]models.Item, 0, len(c.snapshot)-1)
			next = append(next, c.snapshot[:i]...)
			next = append(next, c.snapshot[i+1:]...)
			c.snapshot = next
			return
		}
	}
}
