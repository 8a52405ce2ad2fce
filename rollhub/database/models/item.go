package models

import (
	"time"

	"github.com/uptrace/bun"
)

type StockMode string

const (
	StockInfinite StockMode = "infinite"
	StockLimited  StockMode = "limited"
	StockTimer    StockMode = "timer"
)

type Rarity int

const (
	RarityCommon Rarity = iota + 1
	RarityUncommon
	RarityRare
	RarityEpic
	RarityLegendary
	RarityMythical
	RarityGodly
	RarityInsane
)

var rarityNames = map[Rarity]string{
	RarityCommon:    "Common",
	RarityUncommon:  "Uncommon",
	RarityRare:      "Rare",
	RarityEpic:      "Epic",
	RarityLegendary: "Legendary",
	RarityMythical:  "Mythical",
	RarityGodly:     "Godly",
	RarityInsane:    "Insane",
}

func (r Rarity) String() string {
	if name, ok := rarityNames[r]; ok {
		return name
	}
	return "Unknown"
}

// AutoSellable reports whether a rarity may be converted to cash by the
// auto-sell rule. The two highest tiers are always kept.
func (r Rarity) AutoSellable() bool {
	return r < RarityGodly
}

// RarityForValue maps an item value onto the eight rarity tiers.
func RarityForValue(value int64) Rarity {
	switch {
	case value < 1_000:
		return RarityCommon
	case value < 5_000:
		return RarityUncommon
	case value < 25_000:
		return RarityRare
	case value < 100_000:
		return RarityEpic
	case value < 500_000:
		return RarityLegendary
	case value < 2_500_000:
		return RarityMythical
	case value < 10_000_000:
		return RarityGodly
	default:
		return RarityInsane
	}
}

type Item struct {
	bun.BaseModel `bun:"table:items,alias:i"`

	ID          string    `bun:"id,pk"`
	Name        string    `bun:"name,notnull"`
	Description string    `bun:"description"`
	ImageKey    string    `bun:"image_key"`
	Value       int64     `bun:"value,notnull"`
	OnSale      bool      `bun:"on_sale,notnull,default:true"`
	StockMode   StockMode `bun:"stock_mode,notnull"`

	// StockLimited only. RemainingStock excludes the treasury's serial 0.
	TotalStock     int64 `bun:"total_stock,notnull,default:0"`
	RemainingStock int64 `bun:"remaining_stock,notnull,default:0"`

	// StockTimer only.
	ExpiresAt  time.Time `bun:"expires_at,nullzero"`
	NextSerial int64     `bun:"next_serial,notnull,default:1"`

	// Unique owners for limited/timer items, cumulative acquisitions for
	// infinite ones.
	Owners int64 `bun:"owners,notnull,default:0"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Rarity derives the item's tier from its value.
func (i *Item) Rarity() Rarity {
	return RarityForValue(i.Value)
}

// Serialized reports whether copies of this item carry serial numbers.
func (i *Item) Serialized() bool {
	return i.StockMode == StockLimited || i.StockMode == StockTimer
}

// Rollable reports whether the item may appear in a catalog snapshot.
func (i *Item) Rollable(now time.Time) bool {
	if !i.OnSale {
		return false
	}
	switch i.StockMode {
	case StockLimited:
		return i.RemainingStock > 0
	case StockTimer:
		return now.Before(i.ExpiresAt)
	default:
		return true
	}
}
