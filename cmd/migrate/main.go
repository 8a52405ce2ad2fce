package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/hywave/roll-hub/rollhub"
	"github.com/hywave/roll-hub/rollhub/database"
	"github.com/hywave/roll-hub/rollhub/logger"
	"github.com/hywave/roll-hub/rollhub/migration"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to config file")
	dataDir := flag.String("data", "data", "directory holding legacy BSON dumps")
	mongoURI := flag.String("mongo-uri", "", "read from a live MongoDB instead of dump files")
	mongoDB := flag.String("mongo-db", "rollhub", "MongoDB database name")
	batchSize := flag.Int("batch", 1000, "insert batch size")
	flag.Parse()

	slog.SetDefault(slog.New(logger.NewHandler("RollHub-Migrate")))

	cfg, err := rollhub.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
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
		slog.Error("Failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize schema", slog.Any("error", err))
		os.Exit(1)
	}

	migrator := migration.NewMigrator(db.BunDB(), *dataDir)
	migrator.SetBatchSize(*batchSize)

	if *mongoURI != "" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(*mongoURI))
		if err != nil {
			slog.Error("Failed to connect to MongoDB", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				slog.Warn("Mongo disconnect failed", slog.Any("error", err))
			}
		}()
		migrator.UseMongo(client, *mongoDB)
	}

	if err := migrator.MigrateAll(ctx); err != nil {
		slog.Error("Migration failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("Migration completed successfully")
}
