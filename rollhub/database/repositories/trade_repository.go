package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hywave/roll-hub/rollhub/config"
	"github.com/hywave/roll-hub/rollhub/database/models"
	"github.com/uptrace/bun"
)

var ErrTradeNotFound = errors.New("trade not found")

// TradeBox buckets trades the way the UI lists them.
type TradeBox string

const (
	BoxInbound   TradeBox = "inbound"
	BoxOutbound  TradeBox = "outbound"
	BoxCompleted TradeBox = "completed"
	BoxInactive  TradeBox = "inactive"
)

type TradeRepository interface {
	DB() *bun.DB
	Create(ctx context.Context, trade *models.Trade) error
	GetByTradeID(ctx context.Context, tradeID string) (*models.Trade, error)
	GetUserTrades(ctx context.Context, userID string, box TradeBox) ([]*models.Trade, error)
	UpdateStatus(ctx context.Context, tradeID string, status models.TradeStatus) error
	ExpireOldTrades(ctx context.Context) (int64, error)

	GetByTradeIDForUpdate(ctx context.Context, tx bun.Tx, tradeID string) (*models.Trade, error)
	UpdateStatusTx(ctx context.Context, tx bun.Tx, tradeID string, status models.TradeStatus) error
}

type tradeRepository struct {
	db *bun.DB
}

func NewTradeRepository(db *bun.DB) TradeRepository {
	return &tradeRepository{db: db}
}

func (r *tradeRepository) DB() *bun.DB {
	return r.db
}

func (r *tradeRepository) Create(ctx context.Context, trade *models.Trade) error {
	trade.CreatedAt = time.Now()
	trade.UpdatedAt = time.Now()
	trade.Status = models.TradePending
	trade.ExpiresAt = time.Now().Add(config.TradeTTL)

	_, err := r.db.NewInsert().Model(trade).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

func (r *tradeRepository) GetByTradeID(ctx context.Context, tradeID string) (*models.Trade, error) {
	trade := new(models.Trade)
	err := r.db.NewSelect().
		Model(trade).
		Where("trade_id = ?", tradeID).
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTradeNotFound
		}
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return trade, nil
}

func (r *tradeRepository) GetUserTrades(ctx context.Context, userID string, box TradeBox) ([]*models.Trade, error) {
	q := r.db.NewSelect().Model((*models.Trade)(nil))

	switch box {
	case BoxInbound:
		q = q.Where("recipient_id = ? AND status = ?", userID, models.TradePending)
	case BoxOutbound:
		q = q.Where("initiator_id = ? AND status = ?", userID, models.TradePending)
	case BoxCompleted:
		q = q.Where("(initiator_id = ? OR recipient_id = ?) AND status = ?",
			userID, userID, models.TradeAccepted)
	case BoxInactive:
		q = q.Where("(initiator_id = ? OR recipient_id = ?) AND status IN (?)",
			userID, userID, bun.In([]models.TradeStatus{models.TradeDeclined, models.TradeCancelled, models.TradeExpired}))
	default:
		q = q.Where("initiator_id = ? OR recipient_id = ?", userID, userID)
	}

	var trades []*models.Trade
	err := q.Model(&trades).
		Order("created_at DESC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get user trades: %w", err)
	}
	return trades, nil
}

func (r *tradeRepository) UpdateStatus(ctx context.Context, tradeID string, status models.TradeStatus) error {
	res, err := r.db.NewUpdate().
		Model((*models.Trade)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("trade_id = ? AND status = ?", tradeID, models.TradePending).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update trade status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrTradeNotFound
	}
	return nil
}

func (r *tradeRepository) ExpireOldTrades(ctx context.Context) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*models.Trade)(nil)).
		Set("status = ?", models.TradeExpired).
		Set("updated_at = ?", time.Now()).
		Where("status = ? AND expires_at <= ?", models.TradePending, time.Now()).
		Exec(ctx)

	if err != nil {
		return 0, fmt.Errorf("failed to expire old trades: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

func (r *tradeRepository) GetByTradeIDForUpdate(ctx context.Context, tx bun.Tx, tradeID string) (*models.Trade, error) {
	trade := new(models.Trade)
	err := tx.NewSelect().
		Model(trade).
		Where("trade_id = ?", tradeID).
		For("UPDATE").
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTradeNotFound
		}
		return nil, fmt.Errorf("failed to lock trade: %w", err)
	}
	return trade, nil
}

func (r *tradeRepository) UpdateStatusTx(ctx context.Context, tx bun.Tx, tradeID string, status models.TradeStatus) error {
	_, err := tx.NewUpdate().
		Model((*models.Trade)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("trade_id = ?", tradeID).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update trade status: %w", err)
	}
	return nil
}
