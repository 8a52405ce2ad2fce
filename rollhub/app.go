package rollhub

import (
	"context"
	"log/slog"

	"github.com/hywave/roll-hub/rollhub/batch"
	"github.com/hywave/roll-hub/rollhub/database"
	"github.com/hywave/roll-hub/rollhub/database/repositories"
	"github.com/hywave/roll-hub/rollhub/economy/liquidate"
	"github.com/hywave/roll-hub/rollhub/economy/roll"
	"github.com/hywave/roll-hub/rollhub/economy/trade"
	"github.com/hywave/roll-hub/rollhub/notifier"
	"github.com/hywave/roll-hub/rollhub/services"
)

func New(cfg Config, version string, commit string) *App {
	return &App{
		Cfg:     cfg,
		Version: version,
		Commit:  commit,
	}
}

// App aggregates every long-lived component of the service.
type App struct {
	Cfg     Config
	Version string
	Commit  string

	DB                  *database.DB
	AccountRepository   repositories.AccountRepository
	ItemRepository      repositories.ItemRepository
	TradeRepository     repositories.TradeRepository
	RollEventRepository repositories.RollEventRepository

	SnapshotStore *services.SnapshotStore
	CatalogCache  *services.CatalogCache
	TreasuryCache *services.TreasuryCache
	SpacesService *services.SpacesService
	Notifier      *notifier.Notifier
	Batcher       *batch.Batcher

	Allocator   *roll.Allocator
	Liquidator  *liquidate.Service
	TradeEngine *trade.Engine
}

// Close releases everything the app holds open.
func (a *App) Close(ctx context.Context) {
	if a.Batcher != nil && a.Batcher.HasPendingUpdates() {
		if err := a.Batcher.Flush(ctx); err != nil {
			slog.Error("Final batch flush failed", slog.Any("error", err))
		}
	}
	if a.SnapshotStore != nil {
		if err := a.SnapshotStore.Close(); err != nil {
			slog.Warn("Snapshot store close failed", slog.Any("error", err))
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
