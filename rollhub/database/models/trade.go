package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradeAccepted  TradeStatus = "accepted"
	TradeDeclined  TradeStatus = "declined"
	TradeCancelled TradeStatus = "cancelled"
	TradeExpired   TradeStatus = "expired"
)

// Terminal reports whether the status permits no further transitions.
func (s TradeStatus) Terminal() bool {
	return s != TradePending
}

type Trade struct {
	bun.BaseModel `bun:"table:trades,alias:t"`

	ID          int64  `bun:"id,pk,autoincrement"`
	TradeID     string `bun:"trade_id,notnull,unique"`
	InitiatorID string `bun:"initiator_id,notnull"`
	RecipientID string `bun:"recipient_id,notnull"`

	// Offered holding ids reference entries inside each owner's inventory.
	InitiatorHoldings []string `bun:"initiator_holdings,type:jsonb"`
	InitiatorCash     int64    `bun:"initiator_cash,notnull,default:0"`
	RecipientHoldings []string `bun:"recipient_holdings,type:jsonb"`
	RecipientCash     int64    `bun:"recipient_cash,notnull,default:0"`

	Message string      `bun:"message"`
	Status  TradeStatus `bun:"status,notnull"`

	ExpiresAt time.Time `bun:"expires_at,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
