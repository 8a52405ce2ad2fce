package web

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hywave/roll-hub/rollhub/config"
	"github.com/hywave/roll-hub/rollhub/database/models"
	"github.com/hywave/roll-hub/rollhub/database/repositories"
	"github.com/hywave/roll-hub/rollhub/economy/liquidate"
	"github.com/hywave/roll-hub/rollhub/economy/roll"
	"github.com/hywave/roll-hub/rollhub/economy/trade"
	"github.com/hywave/roll-hub/rollhub/notifier"
	"github.com/hywave/roll-hub/rollhub/services"
)

// Handlers holds everything the HTTP surface needs.
type Handlers struct {
	accounts  repositories.AccountRepository
	items     repositories.ItemRepository
	events    repositories.RollEventRepository
	allocator *roll.Allocator
	sales     *liquidate.Service
	trades    *trade.Engine
	catalog   *services.CatalogCache
	treasury  *services.TreasuryCache
	notify    *notifier.Notifier
	assets    *services.SpacesService
	health    func(c *fiber.Ctx) error
}

func NewHandlers(
	accounts repositories.AccountRepository,
	items repositories.ItemRepository,
	events repositories.RollEventRepository,
	allocator *roll.Allocator,
	sales *liquidate.Service,
	trades *trade.Engine,
	catalog *services.CatalogCache,
	treasury *services.TreasuryCache,
	notify *notifier.Notifier,
	assets *services.SpacesService,
	health func(c *fiber.Ctx) error,
) *Handlers {
	return &Handlers{
		accounts:  accounts,
		items:     items,
		events:    events,
		allocator: allocator,
		sales:     sales,
		trades:    trades,
		catalog:   catalog,
		treasury:  treasury,
		notify:    notify,
		assets:    assets,
		health:    health,
	}
}

type createTradeRequest struct {
	RecipientID string      `json:"recipient_id"`
	Offered     trade.Offer `json:"offered"`
	Requested   trade.Offer `json:"requested"`
	Message     string      `json:"message"`
}

// CreateTrade handles POST /trades.
func (h *Handlers) CreateTrade(c *fiber.Ctx) error {
	identity, ok := CurrentIdentity(c)
	if !ok {
		return SendUnauthorized(c, "Authentication required")
	}

	var req createTradeRequest
	if err := c.BodyParser(&req); err != nil {
		return SendBadRequest(c, "Invalid request body")
	}
	if req.RecipientID == "" {
		return SendBadRequest(c, "recipient_id is required")
	}

	created, err := h.trades.Create(c.UserContext(), identity.UserID, req.RecipientID, req.Offered, req.Requested, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, trade.ErrSelfTrade),
			errors.Is(err, trade.ErrCashOnly),
			errors.Is(err, trade.ErrTooManyHoldings),
			errors.Is(err, trade.ErrInvalidCash),
			errors.Is(err, trade.ErrHoldingKept):
			return SendBadRequest(c, err.Error())
		case errors.Is(err, trade.ErrStaleOffer):
			return SendConflict(c, err.Error())
		case errors.Is(err, trade.ErrAccountBanned):
			return SendForbidden(c, err.Error())
		case errors.Is(err, repositories.ErrAccountNotFound):
			return SendNotFound(c, "Account not found")
		default:
			slog.Error("Trade creation failed", slog.Any("error", err))
			return SendInternalServerError(c, "Failed to create trade")
		}
	}
	return SendCreated(c, created, "Trade created")
}

// ListTrades handles GET /trades?userId=&box=.
func (h *Handlers) ListTrades(c *fiber.Ctx) error {
	identity, ok := CurrentIdentity(c)
	if !ok {
		return SendUnauthorized(c, "Authentication required")
	}

	userID := c.Query("userId", identity.UserID)
	if userID != identity.UserID {
		return SendForbidden(c, "Cannot list another account's trades")
	}

	box := repositories.TradeBox(c.Query("box"))
	switch box {
	case "", repositories.BoxInbound, repositories.BoxOutbound, repositories.BoxCompleted, repositories.BoxInactive:
	default:
		return SendBadRequest(c, "Unknown trade box")
	}

	trades, err := h.trades.ListForUser(c.UserContext(), userID, box)
	if err != nil {
		slog.Error("Trade listing failed", slog.Any("error", err))
		return SendInternalServerError(c, "Failed to list trades")
	}
	return SendSuccess(c, trades, "")
}

// AcceptTrade handles POST /trades/:id/accept.
func (h *Handlers) AcceptTrade(c *fiber.Ctx) error {
	identity, ok := CurrentIdentity(c)
	if !ok {
		return SendUnauthorized(c, "Authentication required")
	}

	settled, err := h.trades.Accept(c.UserContext(), c.Params("id"), identity.UserID)
	if err != nil {
		return h.tradeTransitionError(c, err)
	}
	return SendSuccess(c, settled, "Trade accepted")
}

// DeclineTrade handles POST /trades/:id/decline.
func (h *Handlers) DeclineTrade(c *fiber.Ctx) error {
	identity, ok := CurrentIdentity(c)
	if !ok {
		return SendUnauthorized(c, "Authentication required")
	}

	if err := h.trades.Decline(c.UserContext(), c.Params("id"), identity.UserID); err != nil {
		return h.tradeTransitionError(c, err)
	}
	return SendSuccess(c, nil, "Trade declined")
}

// CancelTrade handles POST /trades/:id/cancel.
func (h *Handlers) CancelTrade(c *fiber.Ctx) error {
	identity, ok := CurrentIdentity(c)
	if !ok {
		return SendUnauthorized(c, "Authentication required")
	}

	if err := h.trades.Cancel(c.UserContext(), c.Params("id"), identity.UserID); err != nil {
		return h.tradeTransitionError(c, err)
	}
	return SendSuccess(c, nil, "Trade cancelled")
}

func (h *Handlers) tradeTransitionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, repositories.ErrTradeNotFound):
		return SendNotFound(c, "Trade not found")
	case errors.Is(err, trade.ErrNotRecipient), errors.Is(err, trade.ErrNotInitiator):
		return SendForbidden(c, err.Error())
	case errors.Is(err, trade.ErrTradeClosed), errors.Is(err, trade.ErrStaleOffer):
		return SendConflict(c, err.Error())
	case errors.Is(err, trade.ErrInsufficientFunds):
		return SendConflict(c, err.Error())
	case errors.Is(err, trade.ErrAccountBanned):
		return SendForbidden(c, err.Error())
	default:
		slog.Error("Trade transition failed", slog.Any("error", err))
		return SendInternalServerError(c, "Failed to update trade")
	}
}

// PerformRoll handles POST /rolls.
func (h *Handlers) PerformRoll(c *fiber.Ctx) error {
	identity, ok := CurrentIdentity(c)
	if !ok {
		return SendUnauthorized(c, "Authentication required")
	}

	result, err := h.allocator.PerformRoll(c.UserContext(), identity.UserID)
	if err != nil {
		switch {
		case errors.Is(err, roll.ErrNoItemsAvailable),
			errors.Is(err, roll.ErrOutOfStock),
			errors.Is(err, roll.ErrTimerExpired),
			errors.Is(err, roll.ErrOffSale),
			errors.Is(err, roll.ErrItemNotFound):
			return SendConflict(c, err.Error())
		case errors.Is(err, roll.ErrAccountBanned):
			return SendForbidden(c, err.Error())
		case errors.Is(err, services.ErrTreasuryUnavailable):
			return SendServiceUnavailable(c, err.Error())
		case errors.Is(err, repositories.ErrAccountNotFound):
			return SendNotFound(c, "Account not found")
		default:
			slog.Error("Roll failed", slog.Any("error", err))
			return SendInternalServerError(c, "Failed to perform roll")
		}
	}
	return SendSuccess(c, result, "")
}

type sellRequest struct {
	HoldingIDs []string `json:"holding_ids"`
}

// SellHoldings handles POST /sales.
func (h *Handlers) SellHoldings(c *fiber.Ctx) error {
	identity, ok := CurrentIdentity(c)
	if !ok {
		return SendUnauthorized(c, "Authentication required")
	}

	var req sellRequest
	if err := c.BodyParser(&req); err != nil {
		return SendBadRequest(c, "Invalid request body")
	}

	treasuryID, err := h.treasury.GetTreasuryAccountID(c.UserContext())
	if err != nil {
		return SendServiceUnavailable(c, err.Error())
	}

	result, err := h.sales.SellHoldings(c.UserContext(), identity.UserID, treasuryID, req.HoldingIDs)
	if err != nil {
		switch {
		case errors.Is(err, liquidate.ErrNothingToSell),
			errors.Is(err, liquidate.ErrMixedItems),
			errors.Is(err, liquidate.ErrHoldingKept):
			return SendBadRequest(c, err.Error())
		case errors.Is(err, liquidate.ErrInventoryMismatch):
			return SendConflict(c, err.Error())
		case errors.Is(err, liquidate.ErrAccountBanned), errors.Is(err, liquidate.ErrTreasurySelfSale):
			return SendForbidden(c, err.Error())
		case errors.Is(err, repositories.ErrAccountNotFound):
			return SendNotFound(c, "Account not found")
		case errors.Is(err, repositories.ErrItemNotFound):
			return SendNotFound(c, "Item not found")
		default:
			slog.Error("Sale failed", slog.Any("error", err))
			return SendInternalServerError(c, "Failed to sell holdings")
		}
	}
	return SendSuccess(c, result, "")
}

// GlobalRolls handles GET /rolls/global.
func (h *Handlers) GlobalRolls(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	events, err := h.events.GetRecent(c.UserContext(), limit)
	if err != nil {
		slog.Error("Global roll feed failed", slog.Any("error", err))
		return SendInternalServerError(c, "Failed to load roll feed")
	}
	return SendSuccess(c, events, "")
}

type itemView struct {
	models.Item
	Rarity   string `json:"rarity"`
	ImageURL string `json:"image_url,omitempty"`
}

// ListItems handles GET /items?search=.
func (h *Handlers) ListItems(c *fiber.Ctx) error {
	items, err := h.items.GetAll(c.UserContext())
	if err != nil {
		slog.Error("Item listing failed", slog.Any("error", err))
		return SendInternalServerError(c, "Failed to list items")
	}

	if query := c.Query("search"); query != "" {
		items = services.SearchItems(items, query)
	}

	views := make([]itemView, len(items))
	for i, item := range items {
		views[i] = itemView{Item: item, Rarity: item.Rarity().String()}
		if h.assets != nil {
			views[i].ImageURL = h.assets.ItemImageURL(item.ImageKey)
		}
	}
	return SendSuccess(c, views, "")
}

type itemReleaseRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageKey    string `json:"image_key"`
	Value       int64  `json:"value"`
	StockMode   string `json:"stock_mode"`
	TotalStock  int64  `json:"total_stock"`
	ExpiresIn   int64  `json:"expires_in_seconds"`
}

// ItemRelease handles POST /webhooks/item-release. Admin only.
func (h *Handlers) ItemRelease(c *fiber.Ctx) error {
	var req itemReleaseRequest
	if err := c.BodyParser(&req); err != nil {
		return SendBadRequest(c, "Invalid request body")
	}
	if req.ID == "" || req.Name == "" || req.Value <= 0 {
		return SendBadRequest(c, "id, name and a positive value are required")
	}

	item := &models.Item{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		ImageKey:    req.ImageKey,
		Value:       req.Value,
		OnSale:      true,
		StockMode:   models.StockMode(req.StockMode),
		TotalStock:  req.TotalStock,
		NextSerial:  1,
	}
	switch item.StockMode {
	case models.StockInfinite, models.StockLimited:
	case models.StockTimer:
		if req.ExpiresIn <= 0 {
			return SendBadRequest(c, "expires_in_seconds is required for timer items")
		}
		item.ExpiresAt = time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
	default:
		return SendBadRequest(c, "Unknown stock mode")
	}

	if err := h.items.Create(c.UserContext(), item); err != nil {
		slog.Error("Item release failed", slog.String("item_id", req.ID), slog.Any("error", err))
		return SendInternalServerError(c, "Failed to release item")
	}

	// The next catalog refresh would pick it up anyway; refreshing now makes
	// the release immediately rollable.
	if _, err := h.catalog.Refresh(c.UserContext()); err != nil {
		slog.Warn("Catalog refresh after release failed", slog.Any("error", err))
	}

	if h.notify != nil {
		var imageURL string
		if h.assets != nil {
			imageURL = h.assets.ItemImageURL(item.ImageKey)
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), config.NotifyTimeout)
			defer cancel()
			h.notify.AnnounceItemRelease(ctx, item, imageURL)
		}()
	}

	return SendCreated(c, item, "Item released")
}

type adminLogRequest struct {
	Action string `json:"action"`
	Detail string `json:"detail"`
}

// AdminLog handles POST /webhooks/admin-log. Admin only.
func (h *Handlers) AdminLog(c *fiber.Ctx) error {
	identity, ok := CurrentIdentity(c)
	if !ok {
		return SendUnauthorized(c, "Authentication required")
	}

	var req adminLogRequest
	if err := c.BodyParser(&req); err != nil {
		return SendBadRequest(c, "Invalid request body")
	}
	if req.Action == "" {
		return SendBadRequest(c, "action is required")
	}

	if h.notify != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), config.NotifyTimeout)
			defer cancel()
			h.notify.AnnounceAdminLog(ctx, identity.UserID, req.Action, req.Detail)
		}()
	}
	return SendSuccess(c, nil, "Logged")
}

// Healthz handles GET /healthz.
func (h *Handlers) Healthz(c *fiber.Ctx) error {
	if h.health != nil {
		return h.health(c)
	}
	return SendSuccess(c, fiber.Map{"status": "ok"}, "")
}
