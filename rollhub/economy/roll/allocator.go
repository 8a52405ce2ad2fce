package roll

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/hywave/roll-hub/rollhub/config"
	"github.com/hywave/roll-hub/rollhub/database"
	"github.com/hywave/roll-hub/rollhub/database/models"
	"github.com/hywave/roll-hub/rollhub/database/repositories"
	"github.com/hywave/roll-hub/rollhub/economy"
	"github.com/hywave/roll-hub/rollhub/services"
	"github.com/uptrace/bun"
)

var (
	ErrNoItemsAvailable = errors.New("no items available to roll")
	ErrItemNotFound     = errors.New("item no longer exists")
	ErrOffSale          = errors.New("item is off sale")
	ErrTimerExpired     = errors.New("item timer has expired")
	ErrOutOfStock       = errors.New("item is out of stock")
	ErrAccountBanned    = errors.New("account is banned")
)

// Notifier announces high-value rolls to the outward channel. Fire-and-forget.
type Notifier interface {
	AnnounceGlobalRoll(ctx context.Context, event *models.RollEvent, imageURL string)
}

// Result is the outcome of one roll.
type Result struct {
	Item         models.Item `json:"item"`
	Serial       *int64      `json:"serial,omitempty"`
	AutoSold     bool        `json:"auto_sold"`
	PlayerEarned int64       `json:"player_earned,omitempty"`
}

// Allocator selects an item by inverse-value weighting and settles the roll
// in a single store transaction.
type Allocator struct {
	db       database.TxRunner
	accounts repositories.AccountRepository
	items    repositories.ItemRepository
	events   repositories.RollEventRepository
	catalog  *services.CatalogCache
	treasury *services.TreasuryCache
	notifier Notifier
	assets   *services.SpacesService

	randFloat func() float64
}

func NewAllocator(
	db database.TxRunner,
	accounts repositories.AccountRepository,
	items repositories.ItemRepository,
	events repositories.RollEventRepository,
	catalog *services.CatalogCache,
	treasury *services.TreasuryCache,
) *Allocator {
	return &Allocator{
		db:        db,
		accounts:  accounts,
		items:     items,
		events:    events,
		catalog:   catalog,
		treasury:  treasury,
		randFloat: rand.Float64,
	}
}

// SetNotifier attaches the outward announcement channel.
func (a *Allocator) SetNotifier(n Notifier) {
	a.notifier = n
}

// SetAssets attaches the artwork resolver used in announcements.
func (a *Allocator) SetAssets(s *services.SpacesService) {
	a.assets = s
}

// PerformRoll rolls one item for the account. Weighted selection runs against
// the cached catalog snapshot; stock validation and every mutation happen
// against fresh state inside one transaction. Cache eviction and the global
// roll announcement stay outside the transaction body.
func (a *Allocator) PerformRoll(ctx context.Context, userID string) (*Result, error) {
	candidates, err := a.catalog.GetRollableItems(ctx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoItemsAvailable
	}

	selected := SelectWeighted(candidates, a.randFloat()*TotalWeight(candidates))

	treasuryID, err := a.treasury.GetTreasuryAccountID(ctx)
	if err != nil {
		return nil, err
	}

	var result Result
	err = a.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return a.settleRoll(ctx, tx, userID, treasuryID, selected.ID, &result)
	})

	// Non-idempotent follow-ups run only after the transaction resolved.
	if errors.Is(err, ErrOutOfStock) {
		a.catalog.RemoveItem(selected.ID)
		return nil, err
	}
	if errors.Is(err, ErrTimerExpired) {
		a.catalog.RemoveItem(selected.ID)
		if offSaleErr := a.items.SetOffSale(ctx, selected.ID); offSaleErr != nil {
			slog.Error("Failed to take expired item off sale",
				slog.String("item_id", selected.ID),
				slog.Any("error", offSaleErr))
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if result.Item.StockMode == models.StockLimited && result.Item.RemainingStock <= 0 {
		a.catalog.RemoveItem(result.Item.ID)
	}

	if result.Item.Value >= config.GlobalRollMinValue {
		a.recordGlobalRoll(userID, &result)
	}

	slog.Info("Roll settled",
		slog.String("user_id", userID),
		slog.String("item_id", result.Item.ID),
		slog.Bool("auto_sold", result.AutoSold))

	return &result, nil
}

// settleRoll is the retried transaction body. It must stay idempotent.
func (a *Allocator) settleRoll(ctx context.Context, tx bun.Tx, userID, treasuryID, itemID string, result *Result) error {
	account, err := a.accounts.GetByUserIDForUpdate(ctx, tx, userID)
	if err != nil {
		return err
	}
	if account.Ban.Active(time.Now()) {
		return ErrAccountBanned
	}

	// The cached snapshot may be minutes old; every check below runs against
	// the fresh row.
	item, err := a.items.GetByIDForUpdate(ctx, tx, itemID)
	if err != nil {
		if errors.Is(err, repositories.ErrItemNotFound) {
			return ErrItemNotFound
		}
		return err
	}
	if !item.OnSale {
		return ErrOffSale
	}

	var serial *int64
	switch item.StockMode {
	case models.StockLimited:
		if item.RemainingStock <= 0 {
			return ErrOutOfStock
		}
		// Serial 0 belongs to the treasury, players take 1..TotalStock.
		n := item.TotalStock - item.RemainingStock + 1
		serial = &n
		item.RemainingStock--
	case models.StockTimer:
		if !time.Now().Before(item.ExpiresAt) {
			return ErrTimerExpired
		}
		n := item.NextSerial
		serial = &n
		item.NextSerial++
	default:
		// Cumulative acquisition counter for unlimited items.
		item.Owners++
	}

	rarity := item.Rarity()
	autoSold := rarity.AutoSellable() && account.AutoSells(rarity)

	if item.Serialized() && !autoSold {
		hasMarker, err := a.items.HasMarker(ctx, tx, item.ID, userID)
		if err != nil {
			return err
		}
		if !hasMarker {
			if err := a.items.CreateMarker(ctx, tx, item.ID, userID); err != nil {
				return err
			}
			item.Owners++
		}
	}

	var playerEarned int64
	if autoSold {
		playerShare, treasuryShare := economy.SplitSale(item.Value)
		playerEarned = playerShare
		account.Balance += playerShare

		treasuryAccount, err := a.accounts.GetByUserIDForUpdate(ctx, tx, treasuryID)
		if err != nil {
			return err
		}
		treasuryAccount.Balance += treasuryShare
		if err := a.accounts.UpdateTx(ctx, tx, treasuryAccount); err != nil {
			return err
		}
	} else {
		if idx := stackTarget(account, item, serial); idx >= 0 {
			account.Holdings[idx].Amount++
		} else {
			account.Holdings = append(account.Holdings, models.Holding{
				ID:         uuid.NewString(),
				ItemID:     item.ID,
				Serial:     serial,
				Amount:     1,
				ObtainedAt: time.Now(),
			})
		}
	}

	account.RollCount++

	if err := a.items.UpdateTx(ctx, tx, item); err != nil {
		return err
	}
	if err := a.accounts.UpdateTx(ctx, tx, account); err != nil {
		return err
	}

	*result = Result{
		Item:         *item,
		Serial:       serial,
		AutoSold:     autoSold,
		PlayerEarned: playerEarned,
	}
	return nil
}

// stackTarget returns the index of the holding a new unserialized copy
// stacks onto, or -1 when a fresh holding is needed.
func stackTarget(account *models.Account, item *models.Item, serial *int64) int {
	if serial != nil {
		return -1
	}
	return account.UnserializedHolding(item.ID)
}

// recordGlobalRoll writes the public feed row and fires the outward
// announcement. Both are best-effort and happen outside the transaction.
func (a *Allocator) recordGlobalRoll(userID string, result *Result) {
	event := &models.RollEvent{
		AccountID: userID,
		ItemID:    result.Item.ID,
		ItemName:  result.Item.Name,
		Value:     result.Item.Value,
		Serial:    result.Serial,
		RolledAt:  time.Now(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), config.NotifyTimeout)
		defer cancel()

		if account, err := a.accounts.GetByUserID(ctx, userID); err == nil {
			event.Username = account.Username
		}

		if err := a.events.Create(ctx, event); err != nil {
			slog.Warn("Failed to record global roll event",
				slog.String("item_id", event.ItemID),
				slog.Any("error", err))
		}

		if a.notifier != nil {
			var imageURL string
			if a.assets != nil {
				imageURL = a.assets.ItemImageURL(result.Item.ImageKey)
			}
			a.notifier.AnnounceGlobalRoll(ctx, event, imageURL)
		}
	}()
}
