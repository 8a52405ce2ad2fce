package models

import (
	"time"

	"github.com/uptrace/bun"
)

// OwnershipMarker records that an account has owned at least one copy of a
// limited or timer item. Its existence distinguishes first-time ownership
// (owner count moves) from reacquisition (it does not). The marker is deleted
// when the account's last copy leaves its inventory.
type OwnershipMarker struct {
	bun.BaseModel `bun:"table:ownership_markers,alias:om"`

	ItemID    string    `bun:"item_id,pk"`
	AccountID string    `bun:"account_id,pk"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
