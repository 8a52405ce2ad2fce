package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hywave/roll-hub/rollhub/database/models"
)

type countingFetcher struct {
	mu    sync.Mutex
	calls int32
	items []models.Item
	err   error

	// When set, fetches block until released. Used to prove single-flight.
	gate chan struct{}
}

func (f *countingFetcher) GetRollable(_ context.Context) ([]models.Item, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items, f.err
}

func (f *countingFetcher) callCount() int32 {
	return atomic.LoadInt32(&f.calls)
}

func TestCatalogCacheServesFromSnapshot(t *testing.T) {
	fetcher := &countingFetcher{items: []models.Item{{ID: "a", Value: 100}}}
	cache := NewCatalogCache(fetcher, nil)

	for i := 0; i < 3; i++ {
		items, err := cache.GetRollableItems(context.Background())
		if err != nil {
			t.Fatalf("GetRollableItems() error = %v", err)
		}
		if len(items) != 1 || items[0].ID != "a" {
			t.Fatalf("unexpected snapshot: %+v", items)
		}
	}
	if got := fetcher.callCount(); got != 1 {
		t.Errorf("fetch count = %d, want 1 (snapshot should be reused)", got)
	}
}

func TestCatalogCacheRefetchesAfterTTL(t *testing.T) {
	fetcher := &countingFetcher{items: []models.Item{{ID: "a", Value: 100}}}
	cache := NewCatalogCache(fetcher, nil)

	if _, err := cache.GetRollableItems(context.Background()); err != nil {
		t.Fatalf("GetRollableItems() error = %v", err)
	}

	cache.mu.Lock()
	cache.fetchedAt = time.Now().Add(-cache.ttl - time.Second)
	cache.mu.Unlock()

	if _, err := cache.GetRollableItems(context.Background()); err != nil {
		t.Fatalf("GetRollableItems() error = %v", err)
	}
	if got := fetcher.callCount(); got != 2 {
		t.Errorf("fetch count = %d, want 2 (stale snapshot must refetch)", got)
	}
}

func TestCatalogCacheEmptySnapshotRefetches(t *testing.T) {
	fetcher := &countingFetcher{items: nil}
	cache := NewCatalogCache(fetcher, nil)

	// An empty result is never treated as a valid snapshot.
	for i := 0; i < 2; i++ {
		if _, err := cache.GetRollableItems(context.Background()); err != nil {
			t.Fatalf("GetRollableItems() error = %v", err)
		}
	}
	if got := fetcher.callCount(); got != 2 {
		t.Errorf("fetch count = %d, want 2", got)
	}
}

func TestCatalogCachePropagatesFetchError(t *testing.T) {
	wantErr := errors.New("store down")
	fetcher := &countingFetcher{err: wantErr}
	cache := NewCatalogCache(fetcher, nil)

	if _, err := cache.GetRollableItems(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("GetRollableItems() error = %v, want %v", err, wantErr)
	}
}

func TestCatalogCacheSingleFlight(t *testing.T) {
	fetcher := &countingFetcher{
		items: []models.Item{{ID: "a", Value: 100}},
		gate:  make(chan struct{}),
	}
	cache := NewCatalogCache(fetcher, nil)

	const callers = 10
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_, _ = cache.GetRollableItems(context.Background())
		}()
	}

	// Give the goroutines time to pile onto the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(fetcher.gate)
	wg.Wait()

	if got := fetcher.callCount(); got != 1 {
		t.Errorf("fetch count = %d, want 1 (concurrent callers must share one fetch)", got)
	}
}

func TestCatalogCacheRemoveItem(t *testing.T) {
	fetcher := &countingFetcher{items: []models.Item{
		{ID: "a", Value: 100},
		{ID: "b", Value: 200},
	}}
	cache := NewCatalogCache(fetcher, nil)

	if _, err := cache.GetRollableItems(context.Background()); err != nil {
		t.Fatalf("GetRollableItems() error = %v", err)
	}

	cache.RemoveItem("a")

	items, err := cache.GetRollableItems(context.Background())
	if err != nil {
		t.Fatalf("GetRollableItems() error = %v", err)
	}
	if len(items) != 1 || items[0].ID != "b" {
		t.Errorf("snapshot after eviction = %+v, want only b", items)
	}
	if got := fetcher.callCount(); got != 1 {
		t.Errorf("fetch count = %d, want 1 (eviction is local)", got)
	}
}

func TestCatalogCacheRemoveItemPreservesHeldSnapshots(t *testing.T) {
	fetcher := &countingFetcher{items: []models.Item{
		{ID: "a", Value: 100},
		{ID: "b", Value: 200},
		{ID: "c", Value: 300},
	}}
	cache := NewCatalogCache(fetcher, nil)

	held, err := cache.GetRollableItems(context.Background())
	if err != nil {
		t.Fatalf("GetRollableItems() error = %v", err)
	}

	// A roll mid-selection keeps reading its slice while the eviction lands.
	cache.RemoveItem("a")

	if len(held) != 3 {
		t.Fatalf("held snapshot length = %d, want 3", len(held))
	}
	for i, want := range []string{"a", "b", "c"} {
		if held[i].ID != want {
			t.Errorf("held[%d].ID = %q, want %q (eviction mutated a caller's slice)", i, held[i].ID, want)
		}
	}
}
