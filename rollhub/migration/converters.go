package migration

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hywave/roll-hub/rollhub/database/models"
)

// convertAccount maps a legacy player document onto an Account row. Holdings
// arrive separately and are attached by the import loop.
func convertAccount(ma MongoAccount) *models.Account {
	now := time.Now()
	account := &models.Account{
		UserID:     ma.UserID,
		Username:   cleanseString(ma.Username),
		Admin:      ma.Admin,
		Balance:    int64(ma.Balance),
		RollCount:  ma.Rolls,
		LastSeenAt: ma.LastSeen,
		CreatedAt:  ma.Joined,
		UpdatedAt:  now,
	}
	if account.Balance < 0 {
		account.Balance = 0
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}

	if ma.Ban != nil {
		switch ma.Ban.Kind {
		case "perm", "permanent":
			account.Ban = models.BanInfo{Kind: models.BanPermanent, Reason: ma.Ban.Reason}
		case "temp", "temporary":
			account.Ban = models.BanInfo{
				Kind:      models.BanTemporary,
				Reason:    ma.Ban.Reason,
				ExpiresAt: ma.Ban.Expires,
			}
		}
	}

	for _, tier := range ma.AutoSellTiers {
		r := models.Rarity(tier)
		if r >= models.RarityCommon && r.AutoSellable() {
			account.AutoSell = append(account.AutoSell, r)
		}
	}
	return account
}

// convertHolding maps a legacy inventory entry onto a Holding. Legacy rows
// have no stable ids, so each gets a fresh one.
func convertHolding(mh MongoHolding) models.Holding {
	amount := mh.Amount
	if amount < 1 {
		amount = 1
	}
	obtained := mh.Obtained
	if obtained.IsZero() {
		obtained = time.Now()
	}
	return models.Holding{
		ID:         uuid.NewString(),
		ItemID:     mh.ItemID,
		Serial:     mh.Serial,
		Amount:     amount,
		Keep:       mh.Locked,
		ObtainedAt: obtained,
	}
}

func convertItem(mi MongoItem) *models.Item {
	now := time.Now()
	item := &models.Item{
		ID:          mi.ID,
		Name:        cleanseString(mi.Name),
		Description: mi.Description,
		ImageKey:    mi.Image,
		Value:       int64(mi.Value),
		OnSale:      mi.OnSale,
		Owners:      mi.Owners,
		CreatedAt:   mi.Added,
		UpdatedAt:   now,
	}
	if item.Value < 1 {
		item.Value = 1
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}

	switch mi.StockType {
	case "limited":
		item.StockMode = models.StockLimited
		item.TotalStock = mi.TotalStock
		item.RemainingStock = mi.Remaining
		if item.RemainingStock > item.TotalStock {
			item.RemainingStock = item.TotalStock
		}
		if item.RemainingStock < 0 {
			item.RemainingStock = 0
		}
	case "timer":
		item.StockMode = models.StockTimer
		item.ExpiresAt = mi.Expires
		item.NextSerial = mi.NextSerial
		if item.NextSerial < 1 {
			item.NextSerial = 1
		}
	default:
		item.StockMode = models.StockInfinite
	}
	return item
}

// cleanseString strips characters postgres rejects in text columns.
func cleanseString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}
