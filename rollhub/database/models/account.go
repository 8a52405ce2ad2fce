package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TreasuryAccountID is the sequential id of the house account that absorbs
// the non-player share of sales and fees.
const TreasuryAccountID int64 = 1

type BanKind string

const (
	BanNone      BanKind = ""
	BanTemporary BanKind = "temporary"
	BanPermanent BanKind = "permanent"
)

type BanInfo struct {
	Kind      BanKind   `json:"kind"`
	Reason    string    `json:"reason,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Active reports whether the ban is currently in force.
func (b BanInfo) Active(now time.Time) bool {
	switch b.Kind {
	case BanPermanent:
		return true
	case BanTemporary:
		return now.Before(b.ExpiresAt)
	default:
		return false
	}
}

// Holding is one inventory entry. Non-serialized copies of the same item
// collapse into a single holding with Amount > 1; serialized copies stay
// discrete.
type Holding struct {
	ID         string    `json:"id"`
	ItemID     string    `json:"item_id"`
	Serial     *int64    `json:"serial,omitempty"`
	Amount     int64     `json:"amount"`
	Keep       bool      `json:"keep,omitempty"`
	ObtainedAt time.Time `json:"obtained_at"`
}

type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID       int64  `bun:"id,pk,autoincrement"`
	UserID   string `bun:"user_id,notnull,unique"`
	Username string `bun:"username,notnull"`

	Admin     bool    `bun:"admin,notnull,default:false"`
	Moderator bool    `bun:"moderator,notnull,default:false"`
	Ban       BanInfo `bun:"ban,type:jsonb"`

	Balance   int64 `bun:"balance,notnull,default:0"`
	RollCount int64 `bun:"roll_count,notnull,default:0"`

	// Inventory lives inside the account aggregate so a single row update
	// mutates it atomically with the balance.
	Holdings []Holding `bun:"holdings,type:jsonb"`

	// Rarities the account wants converted straight to cash on roll.
	AutoSell []Rarity `bun:"auto_sell,type:jsonb"`

	LastSeenAt time.Time `bun:"last_seen_at,nullzero"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

// HoldingByID returns the index of the holding with the given id, or -1.
func (a *Account) HoldingByID(id string) int {
	for i := range a.Holdings {
		if a.Holdings[i].ID == id {
			return i
		}
	}
	return -1
}

// UnserializedHolding returns the index of an existing unserialized holding
// of the item, or -1. Used for stacking.
func (a *Account) UnserializedHolding(itemID string) int {
	for i := range a.Holdings {
		if a.Holdings[i].ItemID == itemID && a.Holdings[i].Serial == nil {
			return i
		}
	}
	return -1
}

// OwnsItem reports whether any holding references the item.
func (a *Account) OwnsItem(itemID string) bool {
	for i := range a.Holdings {
		if a.Holdings[i].ItemID == itemID {
			return true
		}
	}
	return false
}

// AutoSells reports whether the account auto-sells rolls of the rarity.
func (a *Account) AutoSells(r Rarity) bool {
	for _, want := range a.AutoSell {
		if want == r {
			return true
		}
	}
	return false
}

// RemoveHolding deletes the holding at index i preserving order.
func (a *Account) RemoveHolding(i int) {
	a.Holdings = append(a.Holdings[:i], a.Holdings[i+1:]...)
}
