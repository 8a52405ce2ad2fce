package migration

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hywave/roll-hub/rollhub/database/models"
	"github.com/uptrace/bun"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Migrator imports a legacy deployment's data into the relational store. It
// reads BSON dump files by default and can pull from a live MongoDB instead.
type Migrator struct {
	pgDB      *bun.DB
	dataDir   string
	batchSize int
	stats     ImportStats

	mongoDB *mongo.Database
}

func NewMigrator(pgDB *bun.DB, dataDir string) *Migrator {
	return &Migrator{
		pgDB:      pgDB,
		dataDir:   dataDir,
		batchSize: 1000,
	}
}

// SetBatchSize overrides the default insert batch size.
func (m *Migrator) SetBatchSize(size int) {
	if size > 0 {
		m.batchSize = size
	}
}

// UseMongo switches the migrator to read from a live MongoDB database.
func (m *Migrator) UseMongo(client *mongo.Client, dbName string) {
	if client != nil && dbName != "" {
		m.mongoDB = client.Database(dbName)
	}
}

// MigrateAll imports items first, then accounts with their inventories, so
// every imported holding references an existing item.
func (m *Migrator) MigrateAll(ctx context.Context) error {
	m.stats.StartTime = time.Now()
	slog.Info("Starting legacy import",
		slog.String("data_dir", m.dataDir),
		slog.Bool("live_mongo", m.mongoDB != nil))

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"items", m.migrateItems},
		{"accounts", m.migrateAccounts},
	}
	for _, step := range steps {
		slog.Info("Starting import step", slog.String("step", step.name))
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("import failed at step %s: %w", step.name, err)
		}
		slog.Info("Completed import step", slog.String("step", step.name))
	}

	m.stats.EndTime = time.Now()
	m.logFinalStats()
	return nil
}

func (m *Migrator) migrateItems(ctx context.Context) error {
	stats := m.stats.table("items")

	var legacy []MongoItem
	if m.mongoDB != nil {
		cur, err := m.mongoDB.Collection("items").Find(ctx, bson.D{})
		if err != nil {
			return fmt.Errorf("failed to query items: %w", err)
		}
		defer cur.Close(ctx)
		for cur.Next(ctx) {
			var mi MongoItem
			if err := cur.Decode(&mi); err != nil {
				stats.Skipped++
				continue
			}
			legacy = append(legacy, mi)
		}
		if err := cur.Err(); err != nil {
			return err
		}
	} else {
		if err := readBSONFile(filepath.Join(m.dataDir, "items.bson"), &legacy); err != nil {
			return err
		}
	}
	stats.Read = int64(len(legacy))

	var batch []*models.Item
	seen := make(map[string]bool)
	for _, mi := range legacy {
		if mi.ID == "" || seen[mi.ID] {
			stats.Skipped++
			continue
		}
		seen[mi.ID] = true
		batch = append(batch, convertItem(mi))

		if len(batch) >= m.batchSize {
			if err := m.batchInsertItems(ctx, batch); err != nil {
				return err
			}
			stats.Imported += int64(len(batch))
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := m.batchInsertItems(ctx, batch); err != nil {
			return err
		}
		stats.Imported += int64(len(batch))
	}
	return nil
}

func (m *Migrator) migrateAccounts(ctx context.Context) error {
	stats := m.stats.table("accounts")

	var legacyAccounts []MongoAccount
	var legacyHoldings []MongoHolding
	if m.mongoDB != nil {
		if err := decodeCollection(ctx, m.mongoDB.Collection("users"), &legacyAccounts); err != nil {
			return fmt.Errorf("failed to query users: %w", err)
		}
		if err := decodeCollection(ctx, m.mongoDB.Collection("usercards"), &legacyHoldings); err != nil {
			return fmt.Errorf("failed to query usercards: %w", err)
		}
	} else {
		if err := readBSONFile(filepath.Join(m.dataDir, "users.bson"), &legacyAccounts); err != nil {
			return err
		}
		if err := readBSONFile(filepath.Join(m.dataDir, "usercards.bson"), &legacyHoldings); err != nil {
			return err
		}
	}
	stats.Read = int64(len(legacyAccounts))

	// Inventories attach to the account aggregate; only holdings whose item
	// survived the item step are kept.
	validItems := make(map[string]bool)
	var itemIDs []string
	if err := m.pgDB.NewSelect().
		Model((*models.Item)(nil)).
		Column("id").
		Scan(ctx, &itemIDs); err != nil {
		return fmt.Errorf("failed to get imported item ids: %w", err)
	}
	for _, id := range itemIDs {
		validItems[id] = true
	}

	holdingsByUser := make(map[string][]models.Holding)
	orphaned := 0
	for _, mh := range legacyHoldings {
		if mh.UserID == "" || !validItems[mh.ItemID] {
			orphaned++
			continue
		}
		holdingsByUser[mh.UserID] = append(holdingsByUser[mh.UserID], convertHolding(mh))
	}
	if orphaned > 0 {
		slog.Warn("Dropped holdings referencing missing items", slog.Int("count", orphaned))
	}

	// Last record wins on duplicate user ids, matching the legacy export's
	// ordering.
	byUserID := make(map[string]*models.Account)
	for _, ma := range legacyAccounts {
		if ma.UserID == "" {
			stats.Skipped++
			continue
		}
		account := convertAccount(ma)
		account.Holdings = holdingsByUser[ma.UserID]
		byUserID[ma.UserID] = account
	}

	accounts := make([]*models.Account, 0, len(byUserID))
	for _, a := range byUserID {
		accounts = append(accounts, a)
	}

	for i := 0; i < len(accounts); i += m.batchSize {
		end := i + m.batchSize
		if end > len(accounts) {
			end = len(accounts)
		}
		if err := m.batchInsertAccounts(ctx, accounts[i:end]); err != nil {
			return err
		}
		stats.Imported += int64(end - i)
		slog.Info("Imported account batch",
			slog.String("progress", fmt.Sprintf("%d/%d", end, len(accounts))))
	}

	return m.seedOwnershipMarkers(ctx, accounts)
}

// seedOwnershipMarkers rebuilds the unique-owner markers for serialized items
// from the imported inventories.
func (m *Migrator) seedOwnershipMarkers(ctx context.Context, accounts []*models.Account) error {
	serialized := make(map[string]bool)
	var items []models.Item
	if err := m.pgDB.NewSelect().
		Model(&items).
		Column("id", "stock_mode").
		Where("stock_mode IN (?)", bun.In([]models.StockMode{models.StockLimited, models.StockTimer})).
		Scan(ctx); err != nil {
		return fmt.Errorf("failed to list serialized items: %w", err)
	}
	for _, item := range items {
		serialized[item.ID] = true
	}

	var markers []*models.OwnershipMarker
	now := time.Now()
	for _, account := range accounts {
		seen := make(map[string]bool)
		for _, h := range account.Holdings {
			if !serialized[h.ItemID] || seen[h.ItemID] {
				continue
			}
			seen[h.ItemID] = true
			markers = append(markers, &models.OwnershipMarker{
				ItemID:    h.ItemID,
				AccountID: account.UserID,
				CreatedAt: now,
			})
		}
	}
	if len(markers) == 0 {
		return nil
	}

	for i := 0; i < len(markers); i += m.batchSize {
		end := i + m.batchSize
		if end > len(markers) {
			end = len(markers)
		}
		batch := markers[i:end]
		if _, err := m.pgDB.NewInsert().
			Model(&batch).
			On("CONFLICT (item_id, account_id) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert ownership markers: %w", err)
		}
	}
	return nil
}

func (m *Migrator) batchInsertItems(ctx context.Context, items []*models.Item) error {
	_, err := m.pgDB.NewInsert().
		Model(&items).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("description = EXCLUDED.description").
		Set("image_key = EXCLUDED.image_key").
		Set("value = EXCLUDED.value").
		Set("on_sale = EXCLUDED.on_sale").
		Set("stock_mode = EXCLUDED.stock_mode").
		Set("total_stock = EXCLUDED.total_stock").
		Set("remaining_stock = EXCLUDED.remaining_stock").
		Set("expires_at = EXCLUDED.expires_at").
		Set("next_serial = EXCLUDED.next_serial").
		Set("owners = EXCLUDED.owners").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert item batch: %w", err)
	}
	return nil
}

func (m *Migrator) batchInsertAccounts(ctx context.Context, accounts []*models.Account) error {
	_, err := m.pgDB.NewInsert().
		Model(&accounts).
		On("CONFLICT (user_id) DO UPDATE").
		Set("username = EXCLUDED.username").
		Set("admin = EXCLUDED.admin").
		Set("ban = EXCLUDED.ban").
		Set("balance = EXCLUDED.balance").
		Set("roll_count = EXCLUDED.roll_count").
		Set("holdings = EXCLUDED.holdings").
		Set("auto_sell = EXCLUDED.auto_sell").
		Set("last_seen_at = EXCLUDED.last_seen_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert account batch: %w", err)
	}
	return nil
}

func (m *Migrator) logFinalStats() {
	for name, t := range m.stats.Tables {
		slog.Info("Import table summary",
			slog.String("table", name),
			slog.Int64("read", t.Read),
			slog.Int64("imported", t.Imported),
			slog.Int64("skipped", t.Skipped))
	}
	slog.Info("Legacy import finished",
		slog.Duration("took", m.stats.EndTime.Sub(m.stats.StartTime)))
}

func decodeCollection[T any](ctx context.Context, col *mongo.Collection, out *[]T) error {
	cur, err := col.Find(ctx, bson.D{})
	if err != nil {
		return err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var doc T
		if err := cur.Decode(&doc); err != nil {
			continue
		}
		*out = append(*out, doc)
	}
	return cur.Err()
}

// readBSONFile streams a mongodump .bson file: each document is framed by its
// own little-endian int32 length.
func readBSONFile[T any](path string, out *[]T) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open BSON file: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	for {
		lengthBytes := make([]byte, 4)
		if _, err := io.ReadFull(reader, lengthBytes); err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("failed to read document length: %w", err)
		}

		length := int32(binary.LittleEndian.Uint32(lengthBytes))
		if length <= 4 {
			return fmt.Errorf("invalid document length: %d", length)
		}

		docBytes := make([]byte, length-4)
		if _, err := io.ReadFull(reader, docBytes); err != nil {
			return fmt.Errorf("failed to read document bytes: %w", err)
		}

		var doc T
		if err := bson.Unmarshal(append(lengthBytes, docBytes...), &doc); err != nil {
			return fmt.Errorf("failed to decode BSON document: %w", err)
		}
		*out = append(*out, doc)
	}
	return nil
}
