package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hywave/roll-hub/rollhub"
	"github.com/hywave/roll-hub/rollhub/batch"
	"github.com/hywave/roll-hub/rollhub/database"
	"github.com/hywave/roll-hub/rollhub/database/repositories"
	"github.com/hywave/roll-hub/rollhub/economy/liquidate"
	"github.com/hywave/roll-hub/rollhub/economy/roll"
	"github.com/hywave/roll-hub/rollhub/economy/trade"
	"github.com/hywave/roll-hub/rollhub/logger"
	"github.com/hywave/roll-hub/rollhub/notifier"
	"github.com/hywave/roll-hub/rollhub/services"
	"github.com/hywave/roll-hub/rollhub/web"
	"github.com/hywave/roll-hub/rollhub/web/auth"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	customHandler := logger.NewHandler("RollHub")
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting RollHub",
		slog.String("version", version),
		slog.String("commit", commit))

	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := rollhub.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	customHandler.SetLevel(cfg.Log.Level)
	slog.Info("Configuration loaded successfully")

	slog.Info("Initializing database connection...")
	dbStartTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := database.New(ctx, database.DBConfig{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		Database: cfg.DB.Database,
		PoolSize: cfg.DB.PoolSize,
	})
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}

	slog.Info("Database connected successfully",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema", slog.Any("error", err))
		os.Exit(-1)
	}
	if err := db.EnsureTreasuryAccount(ctx); err != nil {
		slog.Error("Failed to ensure treasury account", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Database schema initialized successfully")

	app := rollhub.New(*cfg, version, commit)
	app.DB = db

	app.AccountRepository = repositories.NewAccountRepository(db.BunDB())
	app.ItemRepository = repositories.NewItemRepository(db.BunDB())
	app.TradeRepository = repositories.NewTradeRepository(db.BunDB())
	app.RollEventRepository = repositories.NewRollEventRepository(db.BunDB())

	snapshotPath := cfg.DB.SnapshotPath
	if snapshotPath == "" {
		snapshotPath = "catalog_snapshot.db"
	}
	snapshots, err := services.NewSnapshotStore(snapshotPath)
	if err != nil {
		slog.Warn("Catalog snapshot store unavailable, cache starts cold",
			slog.Any("error", err))
	}
	app.SnapshotStore = snapshots

	app.CatalogCache = services.NewCatalogCache(app.ItemRepository, snapshots)
	app.TreasuryCache = services.NewTreasuryCache(app.AccountRepository)

	if cfg.Spaces.Key != "" {
		spaces, err := services.NewSpacesService(
			cfg.Spaces.Key,
			cfg.Spaces.Secret,
			cfg.Spaces.Region,
			cfg.Spaces.Bucket,
			cfg.Spaces.ItemRoot,
		)
		if err != nil {
			slog.Error("Failed to initialize Spaces service", slog.Any("error", err))
			os.Exit(-1)
		}
		app.SpacesService = spaces
	}

	app.Notifier, err = notifier.New(cfg.Notify.GlobalRollWebhook, cfg.Notify.AdminLogWebhook)
	if err != nil {
		slog.Error("Failed to initialize notifier", slog.Any("error", err))
		os.Exit(-1)
	}

	app.Batcher = batch.NewBatcher(app.AccountRepository.ApplyPartial)

	app.Allocator = roll.NewAllocator(
		db,
		app.AccountRepository,
		app.ItemRepository,
		app.RollEventRepository,
		app.CatalogCache,
		app.TreasuryCache,
	)
	app.Allocator.SetNotifier(app.Notifier)
	app.Allocator.SetAssets(app.SpacesService)

	app.Liquidator = liquidate.NewService(db, app.AccountRepository, app.ItemRepository)
	app.TradeEngine = trade.NewEngine(db, app.AccountRepository, app.TradeRepository)

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	app.Batcher.StartFlushRoutine(runCtx)
	app.TradeEngine.StartSweepRoutine(runCtx)

	verifier := auth.NewStaticVerifier(cfg.Auth.StaticTokens)
	handlers := web.NewHandlers(
		app.AccountRepository,
		app.ItemRepository,
		app.RollEventRepository,
		app.Allocator,
		app.Liquidator,
		app.TradeEngine,
		app.CatalogCache,
		app.TreasuryCache,
		app.Notifier,
		app.SpacesService,
		func(c *fiber.Ctx) error {
			if err := db.Ping(c.UserContext()); err != nil {
				return web.SendServiceUnavailable(c, "database unreachable")
			}
			return web.SendSuccess(c, fiber.Map{"status": "ok", "version": version}, "")
		},
	)
	server := web.NewServer(handlers, verifier, app.AccountRepository, app.Batcher)

	go func() {
		if err := server.Listen(cfg.Server.Addr); err != nil {
			slog.Error("HTTP server stopped", slog.Any("error", err))
			stop()
		}
	}()

	slog.Info("RollHub is running. Press CTRL-C to exit.",
		slog.String("addr", cfg.Server.Addr))

	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-s:
	case <-runCtx.Done():
	}

	slog.Info("Shutting down...")
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", slog.Any("error", err))
	}
	app.Close(shutdownCtx)
}
