package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hywave/roll-hub/rollhub/config"
	"github.com/hywave/roll-hub/rollhub/database"
	"github.com/hywave/roll-hub/rollhub/database/models"
	"github.com/hywave/roll-hub/rollhub/database/repositories"
	"github.com/uptrace/bun"
)

var (
	ErrSelfTrade         = errors.New("cannot trade with yourself")
	ErrCashOnly          = errors.New("each side must offer at least one holding")
	ErrTooManyHoldings   = errors.New("too many holdings on one side")
	ErrInvalidCash       = errors.New("cash amount out of range")
	ErrNotRecipient      = errors.New("only the recipient may respond to a trade")
	ErrNotInitiator      = errors.New("only the initiator may cancel a trade")
	ErrTradeClosed       = errors.New("trade is no longer pending")
	ErrStaleOffer        = errors.New("an offered holding is no longer available")
	ErrInsufficientFunds = errors.New("insufficient balance to cover offered cash")
	ErrAccountBanned     = errors.New("account is banned")
	ErrHoldingKept       = errors.New("holding is marked keep")
)

// Offer is one side of a proposed trade.
type Offer struct {
	HoldingIDs []string `json:"holding_ids"`
	Cash       int64    `json:"cash"`
}

// Engine drives the trade lifecycle: creation, acceptance with atomic
// settlement, and the decline/cancel/expire transitions that only touch
// status.
type Engine struct {
	db       database.TxRunner
	accounts repositories.AccountRepository
	trades   repositories.TradeRepository
}

func NewEngine(db database.TxRunner, accounts repositories.AccountRepository, trades repositories.TradeRepository) *Engine {
	return &Engine{db: db, accounts: accounts, trades: trades}
}

// Create validates and records a pending trade. Ownership is checked against
// current inventories here but only guaranteed again at acceptance.
func (e *Engine) Create(ctx context.Context, initiatorID, recipientID string, offered, requested Offer, message string) (*models.Trade, error) {
	if initiatorID == recipientID {
		return nil, ErrSelfTrade
	}
	if err := validateOffer(offered); err != nil {
		return nil, err
	}
	if err := validateOffer(requested); err != nil {
		return nil, err
	}

	initiator, err := e.accounts.GetByUserID(ctx, initiatorID)
	if err != nil {
		return nil, err
	}
	if initiator.Ban.Active(time.Now()) {
		return nil, ErrAccountBanned
	}
	recipient, err := e.accounts.GetByUserID(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	if err := checkOwnership(initiator, offered.HoldingIDs); err != nil {
		return nil, err
	}
	if err := checkOwnership(recipient, requested.HoldingIDs); err != nil {
		return nil, err
	}

	trade := &models.Trade{
		TradeID:           uuid.NewString(),
		InitiatorID:       initiatorID,
		RecipientID:       recipientID,
		InitiatorHoldings: offered.HoldingIDs,
		InitiatorCash:     offered.Cash,
		RecipientHoldings: requested.HoldingIDs,
		RecipientCash:     requested.Cash,
		Message:           message,
	}
	if err := e.trades.Create(ctx, trade); err != nil {
		return nil, err
	}

	slog.Info("Trade created",
		slog.String("trade_id", trade.TradeID),
		slog.String("initiator", initiatorID),
		slog.String("recipient", recipientID))

	return trade, nil
}

// Accept settles the trade atomically: both inventories and balances move in
// one transaction or nothing moves at all.
func (e *Engine) Accept(ctx context.Context, tradeID, actorID string) (*models.Trade, error) {
	var settled *models.Trade
	err := e.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		trade, err := e.trades.GetByTradeIDForUpdate(ctx, tx, tradeID)
		if err != nil {
			return err
		}
		if trade.RecipientID != actorID {
			return ErrNotRecipient
		}
		if trade.Status.Terminal() {
			return ErrTradeClosed
		}
		if !time.Now().Before(trade.ExpiresAt) {
			// Returning the error rolls the transaction back, so writing the
			// expired status here would be undone; the sweeper owns that
			// transition.
			return ErrTradeClosed
		}

		if err := e.settle(ctx, tx, trade); err != nil {
			return err
		}
		if err := e.trades.UpdateStatusTx(ctx, tx, tradeID, models.TradeAccepted); err != nil {
			return err
		}
		trade.Status = models.TradeAccepted
		settled = trade
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Trade accepted",
		slog.String("trade_id", settled.TradeID),
		slog.String("initiator", settled.InitiatorID),
		slog.String("recipient", settled.RecipientID))

	return settled, nil
}

func (e *Engine) settle(ctx context.Context, tx bun.Tx, trade *models.Trade) error {
	// Deterministic lock order keeps concurrent accepts between the same pair
	// from deadlocking.
	firstID, secondID := trade.InitiatorID, trade.RecipientID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}
	first, err := e.accounts.GetByUserIDForUpdate(ctx, tx, firstID)
	if err != nil {
		return err
	}
	second, err := e.accounts.GetByUserIDForUpdate(ctx, tx, secondID)
	if err != nil {
		return err
	}

	initiator, recipient := first, second
	if initiator.UserID != trade.InitiatorID {
		initiator, recipient = second, first
	}

	if initiator.Ban.Active(time.Now()) || recipient.Ban.Active(time.Now()) {
		return ErrAccountBanned
	}
	if initiator.Balance < trade.InitiatorCash {
		return ErrInsufficientFunds
	}
	if recipient.Balance < trade.RecipientCash {
		return ErrInsufficientFunds
	}

	// Offers were validated against inventories that may have changed since.
	// Any missing holding invalidates the whole trade.
	if err := moveHoldings(initiator, recipient, trade.InitiatorHoldings); err != nil {
		return err
	}
	if err := moveHoldings(recipient, initiator, trade.RecipientHoldings); err != nil {
		return err
	}

	initiator.Balance = initiator.Balance - trade.InitiatorCash + trade.RecipientCash
	recipient.Balance = recipient.Balance - trade.RecipientCash + trade.InitiatorCash

	if err := e.accounts.UpdateTx(ctx, tx, initiator); err != nil {
		return err
	}
	return e.accounts.UpdateTx(ctx, tx, recipient)
}

// Decline rejects a pending trade. Recipient only, status-only transition.
func (e *Engine) Decline(ctx context.Context, tradeID, actorID string) error {
	return e.close(ctx, tradeID, actorID, models.TradeDeclined)
}

// Cancel withdraws a pending trade. Initiator only, status-only transition.
func (e *Engine) Cancel(ctx context.Context, tradeID, actorID string) error {
	return e.close(ctx, tradeID, actorID, models.TradeCancelled)
}

func (e *Engine) close(ctx context.Context, tradeID, actorID string, status models.TradeStatus) error {
	trade, err := e.trades.GetByTradeID(ctx, tradeID)
	if err != nil {
		return err
	}
	switch status {
	case models.TradeDeclined:
		if trade.RecipientID != actorID {
			return ErrNotRecipient
		}
	case models.TradeCancelled:
		if trade.InitiatorID != actorID {
			return ErrNotInitiator
		}
	}
	if trade.Status.Terminal() {
		return ErrTradeClosed
	}

	// The guarded update loses the race gracefully if the trade settled or
	// expired in between.
	if err := e.trades.UpdateStatus(ctx, tradeID, status); err != nil {
		if errors.Is(err, repositories.ErrTradeNotFound) {
			return ErrTradeClosed
		}
		return err
	}
	return nil
}

// ListForUser returns the user's trades for one box.
func (e *Engine) ListForUser(ctx context.Context, userID string, box repositories.TradeBox) ([]*models.Trade, error) {
	return e.trades.GetUserTrades(ctx, userID, box)
}

// Get returns a trade visible to the given user.
func (e *Engine) Get(ctx context.Context, tradeID, userID string) (*models.Trade, error) {
	trade, err := e.trades.GetByTradeID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if trade.InitiatorID != userID && trade.RecipientID != userID {
		return nil, repositories.ErrTradeNotFound
	}
	return trade, nil
}

// SweepExpired marks overdue pending trades expired.
func (e *Engine) SweepExpired(ctx context.Context) (int64, error) {
	return e.trades.ExpireOldTrades(ctx)
}

// StartSweepRoutine expires overdue trades on a ticker until ctx is done.
func (e *Engine) StartSweepRoutine(ctx context.Context) {
	ticker := time.NewTicker(config.TradeSweepEvery)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := e.SweepExpired(ctx)
				if err != nil {
					slog.Error("Trade sweep failed", slog.Any("error", err))
					continue
				}
				if n > 0 {
					slog.Info("Expired stale trades", slog.Int64("count", n))
				}
			}
		}
	}()
}

func validateOffer(o Offer) error {
	if len(o.HoldingIDs) == 0 {
		return ErrCashOnly
	}
	if len(o.HoldingIDs) > config.MaxTradeHoldings {
		return fmt.Errorf("%w: %d offered, max %d", ErrTooManyHoldings, len(o.HoldingIDs), config.MaxTradeHoldings)
	}
	if o.Cash < 0 || o.Cash > config.MaxTradeCash {
		return ErrInvalidCash
	}
	seen := make(map[string]struct{}, len(o.HoldingIDs))
	for _, id := range o.HoldingIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate holding %s", ErrStaleOffer, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func checkOwnership(account *models.Account, holdingIDs []string) error {
	for _, hid := range holdingIDs {
		idx := account.HoldingByID(hid)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrStaleOffer, hid)
		}
		if account.Holdings[idx].Keep {
			return ErrHoldingKept
		}
	}
	return nil
}

// moveHoldings transfers each listed holding from one inventory to the other.
// Holdings move discretely, serials intact; they never merge into the
// receiver's existing stacks.
func moveHoldings(from, to *models.Account, holdingIDs []string) error {
	now := time.Now()
	for _, hid := range holdingIDs {
		idx := from.HoldingByID(hid)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrStaleOffer, hid)
		}
		h := from.Holdings[idx]
		if h.Keep {
			return fmt.Errorf("%w: %s", ErrStaleOffer, hid)
		}
		from.RemoveHolding(idx)

		h.Keep = false
		h.ObtainedAt = now
		to.Holdings = append(to.Holdings, h)
	}
	return nil
}
