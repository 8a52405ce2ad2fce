package models

import (
	"time"

	"github.com/uptrace/bun"
)

// RollEvent is a public feed entry written when a roll lands on a high-value
// item. It is recorded outside the roll transaction and is best-effort.
type RollEvent struct {
	bun.BaseModel `bun:"table:roll_events,alias:re"`

	ID        int64     `bun:"id,pk,autoincrement"`
	AccountID string    `bun:"account_id,notnull"`
	Username  string    `bun:"username,notnull"`
	ItemID    string    `bun:"item_id,notnull"`
	ItemName  string    `bun:"item_name,notnull"`
	Value     int64     `bun:"value,notnull"`
	Serial    *int64    `bun:"serial"`
	RolledAt  time.Time `bun:"rolled_at,notnull"`
}
