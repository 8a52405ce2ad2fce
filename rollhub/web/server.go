package web

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hywave/roll-hub/rollhub/batch"
	"github.com/hywave/roll-hub/rollhub/database/repositories"
	"github.com/hywave/roll-hub/rollhub/web/auth"
)

// NewServer builds the Fiber app with all routes wired.
func NewServer(h *Handlers, verifier auth.Verifier, accounts repositories.AccountRepository, presence *batch.Batcher) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "RollHub API",
		ServerHeader: "RollHub",
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(compress.New())
	app.Use(cors.New())

	app.Get("/healthz", h.Healthz)

	authed := app.Group("/", RequireAuth(verifier, presence))

	authed.Post("/trades", h.CreateTrade)
	authed.Get("/trades", h.ListTrades)
	authed.Post("/trades/:id/accept", h.AcceptTrade)
	authed.Post("/trades/:id/decline", h.DeclineTrade)
	authed.Post("/trades/:id/cancel", h.CancelTrade)

	authed.Post("/rolls", h.PerformRoll)
	authed.Get("/rolls/global", h.GlobalRolls)
	authed.Post("/sales", h.SellHoldings)
	authed.Get("/items", h.ListItems)

	admin := authed.Group("/webhooks", RequireAdmin(accounts))
	admin.Post("/item-release", h.ItemRelease)
	admin.Post("/admin-log", h.AdminLog)

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return SendError(c, fiberErr.Code, "HTTP_ERROR", fiberErr.Message)
	}

	slog.Error("Unhandled request error",
		slog.String("path", c.Path()),
		slog.Any("error", err))
	return SendInternalServerError(c, "Internal server error")
}
