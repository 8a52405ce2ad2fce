package liquidate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hywave/roll-hub/rollhub/database"
	"github.com/hywave/roll-hub/rollhub/database/models"
	"github.com/hywave/roll-hub/rollhub/database/repositories"
	"github.com/hywave/roll-hub/rollhub/economy"
	"github.com/uptrace/bun"
)

var (
	ErrNothingToSell     = errors.New("no holdings selected")
	ErrMixedItems        = errors.New("selected holdings reference different items")
	ErrInventoryMismatch = errors.New("inventory changed since the sale was prepared")
	ErrHoldingKept       = errors.New("holding is marked keep")
	ErrAccountBanned     = errors.New("account is banned")
	ErrTreasurySelfSale  = errors.New("treasury cannot liquidate holdings")
)

// Plan is a liquidation prepared against a snapshot of the inventory. The
// settlement re-validates everything against fresh rows.
type Plan struct {
	HoldingIDs []string
	ItemID     string
	UnitValue  int64
	Quantity   int64
}

// Result reports what one settled liquidation paid out.
type Result struct {
	ItemID        string `json:"item_id"`
	UnitsSold     int64  `json:"units_sold"`
	PlayerEarned  int64  `json:"player_earned"`
	TreasuryShare int64  `json:"treasury_share"`
	NewBalance    int64  `json:"new_balance"`
}

// Service converts holdings back into currency at the item's current value,
// splitting proceeds between the seller and the treasury.
type Service struct {
	db       database.TxRunner
	accounts repositories.AccountRepository
	items    repositories.ItemRepository
}

func NewService(db database.TxRunner, accounts repositories.AccountRepository, items repositories.ItemRepository) *Service {
	return &Service{db: db, accounts: accounts, items: items}
}

// SellHoldings prepares and settles a sale of the given holdings in one call.
func (s *Service) SellHoldings(ctx context.Context, userID, treasuryID string, holdingIDs []string) (*Result, error) {
	plan, err := s.Prepare(ctx, userID, holdingIDs)
	if err != nil {
		return nil, err
	}
	return s.Settle(ctx, userID, treasuryID, plan)
}

// Prepare builds a liquidation plan from the account's current inventory.
// Every selected holding must reference the same item and none may be marked
// keep. Quantity counts individual copies, so stacked holdings contribute
// their full amount.
func (s *Service) Prepare(ctx context.Context, userID string, holdingIDs []string) (*Plan, error) {
	if len(holdingIDs) == 0 {
		return nil, ErrNothingToSell
	}

	account, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var itemID string
	var quantity int64
	for _, hid := range holdingIDs {
		idx := account.HoldingByID(hid)
		if idx < 0 {
			return nil, fmt.Errorf("%w: holding %s not found", ErrInventoryMismatch, hid)
		}
		h := account.Holdings[idx]
		if h.Keep {
			return nil, ErrHoldingKept
		}
		if itemID == "" {
			itemID = h.ItemID
		} else if h.ItemID != itemID {
			return nil, ErrMixedItems
		}
		quantity += h.Amount
	}

	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	return &Plan{
		HoldingIDs: holdingIDs,
		ItemID:     itemID,
		UnitValue:  item.Value,
		Quantity:   quantity,
	}, nil
}

// Settle executes a prepared plan in one transaction. If the inventory no
// longer backs the plan's quantity the whole sale aborts; there are no
// partial payouts.
func (s *Service) Settle(ctx context.Context, userID, treasuryID string, plan *Plan) (*Result, error) {
	if plan.Quantity <= 0 {
		return nil, ErrNothingToSell
	}
	if userID == treasuryID {
		return nil, ErrTreasurySelfSale
	}

	var result Result
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return s.settle(ctx, tx, userID, treasuryID, plan, &result)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Liquidation settled",
		slog.String("user_id", userID),
		slog.String("item_id", result.ItemID),
		slog.Int64("units", result.UnitsSold),
		slog.Int64("earned", result.PlayerEarned))

	return &result, nil
}

func (s *Service) settle(ctx context.Context, tx bun.Tx, userID, treasuryID string, plan *Plan, result *Result) error {
	// Lock order is account before item everywhere copies and currency move
	// together.
	account, err := s.accounts.GetByUserIDForUpdate(ctx, tx, userID)
	if err != nil {
		return err
	}
	if account.Ban.Active(time.Now()) {
		return ErrAccountBanned
	}

	item, err := s.items.GetByIDForUpdate(ctx, tx, plan.ItemID)
	if err != nil {
		return err
	}

	// Re-count removable copies against the fresh row. The plan's quantity is
	// honored exactly or not at all.
	remaining := plan.Quantity
	removed := make([]int, 0, len(plan.HoldingIDs))
	for _, hid := range plan.HoldingIDs {
		if remaining == 0 {
			break
		}
		idx := account.HoldingByID(hid)
		if idx < 0 {
			return ErrInventoryMismatch
		}
		h := &account.Holdings[idx]
		if h.ItemID != plan.ItemID || h.Keep {
			return ErrInventoryMismatch
		}
		if h.Amount <= remaining {
			remaining -= h.Amount
			removed = append(removed, idx)
		} else {
			h.Amount -= remaining
			remaining = 0
		}
	}
	if remaining > 0 {
		return ErrInventoryMismatch
	}

	// Delete back-to-front so earlier indexes stay valid.
	for i := len(removed) - 1; i >= 0; i-- {
		account.RemoveHolding(removed[i])
	}

	total := plan.UnitValue * plan.Quantity
	playerShare, treasuryShare := economy.SplitSale(total)
	account.Balance += playerShare

	treasuryAccount, err := s.accounts.GetByUserIDForUpdate(ctx, tx, treasuryID)
	if err != nil {
		return err
	}
	treasuryAccount.Balance += treasuryShare

	if err := s.adjustOwnership(ctx, tx, account, item, plan.Quantity); err != nil {
		return err
	}

	if err := s.accounts.UpdateTx(ctx, tx, account); err != nil {
		return err
	}
	if err := s.accounts.UpdateTx(ctx, tx, treasuryAccount); err != nil {
		return err
	}
	if err := s.items.UpdateTx(ctx, tx, item); err != nil {
		return err
	}

	*result = Result{
		ItemID:        item.ID,
		UnitsSold:     plan.Quantity,
		PlayerEarned:  playerShare,
		TreasuryShare: treasuryShare,
		NewBalance:    account.Balance,
	}
	return nil
}

// adjustOwnership keeps the item's owner bookkeeping coherent after the sale.
// Serialized items track unique owners through markers; the marker drops only
// when the seller holds no copy at all afterwards.
func (s *Service) adjustOwnership(ctx context.Context, tx bun.Tx, account *models.Account, item *models.Item, units int64) error {
	if item.Serialized() {
		if account.OwnsItem(item.ID) {
			return nil
		}
		if err := s.items.DeleteMarker(ctx, tx, item.ID, account.UserID); err != nil {
			return err
		}
		if item.Owners > 0 {
			item.Owners--
		}
		return nil
	}

	item.Owners -= units
	if item.Owners < 0 {
		item.Owners = 0
	}
	return nil
}
