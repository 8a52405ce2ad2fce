package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hywave/roll-hub/rollhub/config"
	"github.com/hywave/roll-hub/rollhub/database/models"
	lru "github.com/hashicorp/golang-lru"
	"github.com/uptrace/bun"
)

var ErrItemNotFound = errors.New("item not found")

type ItemRepository interface {
	DB() *bun.DB
	Create(ctx context.Context, item *models.Item) error
	GetByID(ctx context.Context, id string) (*models.Item, error)
	GetAll(ctx context.Context) ([]models.Item, error)
	GetRollable(ctx context.Context) ([]models.Item, error)
	Update(ctx context.Context, item *models.Item) error
	SetOffSale(ctx context.Context, id string) error

	GetByIDForUpdate(ctx context.Context, tx bun.Tx, id string) (*models.Item, error)
	UpdateTx(ctx context.Context, tx bun.Tx, item *models.Item) error

	// Ownership markers for limited/timer items.
	HasMarker(ctx context.Context, tx bun.Tx, itemID, accountID string) (bool, error)
	CreateMarker(ctx context.Context, tx bun.Tx, itemID, accountID string) error
	DeleteMarker(ctx context.Context, tx bun.Tx, itemID, accountID string) error
}

type itemRepository struct {
	db    *bun.DB
	cache *lru.Cache
}

type cachedItem struct {
	item      *models.Item
	expiresAt time.Time
}

func NewItemRepository(db *bun.DB) ItemRepository {
	cache, _ := lru.New(config.ItemCacheSize)
	return &itemRepository{db: db, cache: cache}
}

func (r *itemRepository) DB() *bun.DB {
	return r.db
}

func (r *itemRepository) Create(ctx context.Context, item *models.Item) error {
	item.CreatedAt = time.Now()
	item.UpdatedAt = time.Now()
	if item.StockMode == models.StockLimited {
		item.RemainingStock = item.TotalStock
	}

	_, err := r.db.NewInsert().Model(item).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

func (r *itemRepository) GetByID(ctx context.Context, id string) (*models.Item, error) {
	if cached, ok := r.cache.Get(id); ok {
		entry := cached.(cachedItem)
		if time.Now().Before(entry.expiresAt) {
			return entry.item, nil
		}
		r.cache.Remove(id)
	}

	item := new(models.Item)
	err := r.db.NewSelect().
		Model(item).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	r.cache.Add(id, cachedItem{item: item, expiresAt: time.Now().Add(config.ItemCacheExpiration)})
	return item, nil
}

func (r *itemRepository) GetAll(ctx context.Context) ([]models.Item, error) {
	var items []models.Item
	err := r.db.NewSelect().
		Model(&items).
		Order("value ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	return items, nil
}

// GetRollable returns on-sale items that are unlimited, still in stock, or on
// an unexpired timer. The catalog cache is the only caller.
func (r *itemRepository) GetRollable(ctx context.Context) ([]models.Item, error) {
	var items []models.Item
	err := r.db.NewSelect().
		Model(&items).
		Where("on_sale = true").
		Where("(stock_mode = ?) OR (stock_mode = ? AND remaining_stock > 0) OR (stock_mode = ? AND expires_at > ?)",
			models.StockInfinite, models.StockLimited, models.StockTimer, time.Now()).
		Order("value ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get rollable items: %w", err)
	}
	return items, nil
}

func (r *itemRepository) Update(ctx context.Context, item *models.Item) error {
	item.UpdatedAt = time.Now()
	_, err := r.db.NewUpdate().
		Model(item).
		WherePK().
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	r.cache.Remove(item.ID)
	return nil
}

func (r *itemRepository) SetOffSale(ctx context.Context, id string) error {
	_, err := r.db.NewUpdate().
		Model((*models.Item)(nil)).
		Set("on_sale = false").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to take item off sale: %w", err)
	}
	r.cache.Remove(id)
	return nil
}

func (r *itemRepository) GetByIDForUpdate(ctx context.Context, tx bun.Tx, id string) (*models.Item, error) {
	item := new(models.Item)
	err := tx.NewSelect().
		Model(item).
		Where("id = ?", id).
		For("UPDATE").
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to lock item: %w", err)
	}
	return item, nil
}

func (r *itemRepository) UpdateTx(ctx context.Context, tx bun.Tx, item *models.Item) error {
	item.UpdatedAt = time.Now()
	_, err := tx.NewUpdate().
		Model(item).
		WherePK().
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	r.cache.Remove(item.ID)
	return nil
}

func (r *itemRepository) HasMarker(ctx context.Context, tx bun.Tx, itemID, accountID string) (bool, error) {
	exists, err := tx.NewSelect().
		Model((*models.OwnershipMarker)(nil)).
		Where("item_id = ? AND account_id = ?", itemID, accountID).
		Exists(ctx)

	if err != nil {
		return false, fmt.Errorf("failed to check ownership marker: %w", err)
	}
	return exists, nil
}

func (r *itemRepository) CreateMarker(ctx context.Context, tx bun.Tx, itemID, accountID string) error {
	marker := &models.OwnershipMarker{
		ItemID:    itemID,
		AccountID: accountID,
		CreatedAt: time.Now(),
	}
	_, err := tx.NewInsert().
		Model(marker).
		On("CONFLICT (item_id, account_id) DO NOTHING").
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to create ownership marker: %w", err)
	}
	return nil
}

func (r *itemRepository) DeleteMarker(ctx context.Context, tx bun.Tx, itemID, accountID string) error {
	_, err := tx.NewDelete().
		Model((*models.OwnershipMarker)(nil)).
		Where("item_id = ? AND account_id = ?", itemID, accountID).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to delete ownership marker: %w", err)
	}
	return nil
}
