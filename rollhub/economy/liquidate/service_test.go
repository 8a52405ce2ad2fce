package liquidate

import (
	"context"
	"errors"
	"testing"

	"github.com/hywave/roll-hub/rollhub/database/models"
	"github.com/hywave/roll-hub/rollhub/database/repositories"
	"github.com/uptrace/bun"
)

// passthroughTx runs transaction bodies directly so settlement logic is
// exercised against the fakes.
type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(context.Context, bun.Tx) error) error {
	return fn(ctx, bun.Tx{})
}

type fakeAccounts struct {
	repositories.AccountRepository
	byUser map[string]*models.Account
}

func (f *fakeAccounts) GetByUserID(_ context.Context, userID string) (*models.Account, error) {
	account, ok := f.byUser[userID]
	if !ok {
		return nil, repositories.ErrAccountNotFound
	}
	return account, nil
}

// GetByUserIDForUpdate returns a copy, like a fresh row read; mutations only
// land in the store through UpdateTx.
func (f *fakeAccounts) GetByUserIDForUpdate(_ context.Context, _ bun.Tx, userID string) (*models.Account, error) {
	account, ok := f.byUser[userID]
	if !ok {
		return nil, repositories.ErrAccountNotFound
	}
	cp := *account
	cp.Holdings = append([]models.Holding(nil), account.Holdings...)
	return &cp, nil
}

func (f *fakeAccounts) UpdateTx(_ context.Context, _ bun.Tx, account *models.Account) error {
	f.byUser[account.UserID] = account
	return nil
}

type fakeItems struct {
	repositories.ItemRepository
	items          map[string]*models.Item
	deletedMarkers []string
}

func (f *fakeItems) GetByID(_ context.Context, id string) (*models.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, repositories.ErrItemNotFound
	}
	return item, nil
}

func (f *fakeItems) GetByIDForUpdate(_ context.Context, _ bun.Tx, id string) (*models.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, repositories.ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (f *fakeItems) UpdateTx(_ context.Context, _ bun.Tx, item *models.Item) error {
	f.items[item.ID] = item
	return nil
}

func (f *fakeItems) DeleteMarker(_ context.Context, _ bun.Tx, itemID, accountID string) error {
	f.deletedMarkers = append(f.deletedMarkers, itemID+"|"+accountID)
	return nil
}

func testService(account *models.Account, items map[string]*models.Item) *Service {
	byUser := map[string]*models.Account{}
	if account != nil {
		byUser[account.UserID] = account
	}
	return NewService(passthroughTx{}, &fakeAccounts{byUser: byUser}, &fakeItems{items: items})
}

func TestPrepareRejectsEmptySelection(t *testing.T) {
	s := testService(&models.Account{UserID: "alice"}, nil)
	if _, err := s.Prepare(context.Background(), "alice", nil); !errors.Is(err, ErrNothingToSell) {
		t.Errorf("Prepare() error = %v, want ErrNothingToSell", err)
	}
}

func TestPrepareRejectsMixedItems(t *testing.T) {
	account := &models.Account{
		UserID: "alice",
		Holdings: []models.Holding{
			{ID: "h1", ItemID: "sword", Amount: 1},
			{ID: "h2", ItemID: "shield", Amount: 1},
		},
	}
	s := testService(account, nil)
	_, err := s.Prepare(context.Background(), "alice", []string{"h1", "h2"})
	if !errors.Is(err, ErrMixedItems) {
		t.Errorf("Prepare() error = %v, want ErrMixedItems", err)
	}
}

func TestPrepareRejectsKeptHoldings(t *testing.T) {
	account := &models.Account{
		UserID:   "alice",
		Holdings: []models.Holding{{ID: "h1", ItemID: "sword", Amount: 1, Keep: true}},
	}
	s := testService(account, nil)
	_, err := s.Prepare(context.Background(), "alice", []string{"h1"})
	if !errors.Is(err, ErrHoldingKept) {
		t.Errorf("Prepare() error = %v, want ErrHoldingKept", err)
	}
}

func TestPrepareRejectsUnknownHolding(t *testing.T) {
	account := &models.Account{UserID: "alice"}
	s := testService(account, nil)
	_, err := s.Prepare(context.Background(), "alice", []string{"missing"})
	if !errors.Is(err, ErrInventoryMismatch) {
		t.Errorf("Prepare() error = %v, want ErrInventoryMismatch", err)
	}
}

func TestPrepareCountsStackedCopies(t *testing.T) {
	account := &models.Account{
		UserID: "alice",
		Holdings: []models.Holding{
			{ID: "h1", ItemID: "potion", Amount: 3},
			{ID: "h2", ItemID: "potion", Amount: 1},
		},
	}
	s := testService(account, map[string]*models.Item{
		"potion": {ID: "potion", Value: 250},
	})

	plan, err := s.Prepare(context.Background(), "alice", []string{"h1", "h2"})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if plan.ItemID != "potion" {
		t.Errorf("plan item = %s, want potion", plan.ItemID)
	}
	if plan.Quantity != 4 {
		t.Errorf("plan quantity = %d, want 4", plan.Quantity)
	}
	if plan.UnitValue != 250 {
		t.Errorf("plan unit value = %d, want 250", plan.UnitValue)
	}
}

func TestSettleRejectsEmptyPlan(t *testing.T) {
	s := testService(&models.Account{UserID: "alice"}, nil)
	_, err := s.Settle(context.Background(), "alice", "treasury", &Plan{})
	if !errors.Is(err, ErrNothingToSell) {
		t.Errorf("Settle() error = %v, want ErrNothingToSell", err)
	}
}

func TestSettleRejectsTreasurySelling(t *testing.T) {
	s := testService(&models.Account{UserID: "treasury"}, nil)
	_, err := s.Settle(context.Background(), "treasury", "treasury", &Plan{Quantity: 1})
	if !errors.Is(err, ErrTreasurySelfSale) {
		t.Errorf("Settle() error = %v, want ErrTreasurySelfSale", err)
	}
}

func settlementFixture(seller *models.Account, item *models.Item) (*Service, *fakeAccounts, *fakeItems) {
	accounts := &fakeAccounts{byUser: map[string]*models.Account{
		seller.UserID: seller,
		"treasury":    {UserID: "treasury"},
	}}
	items := &fakeItems{items: map[string]*models.Item{item.ID: item}}
	return NewService(passthroughTx{}, accounts, items), accounts, items
}

func TestSellHoldingsDropsMarkerWithLastCopy(t *testing.T) {
	serial := int64(3)
	seller := &models.Account{
		UserID:   "alice",
		Holdings: []models.Holding{{ID: "h1", ItemID: "blade", Serial: &serial, Amount: 1}},
	}
	s, accounts, items := settlementFixture(seller, &models.Item{
		ID:        "blade",
		Value:     1000,
		StockMode: models.StockLimited,
		Owners:    5,
	})

	result, err := s.SellHoldings(context.Background(), "alice", "treasury", []string{"h1"})
	if err != nil {
		t.Fatalf("SellHoldings() error = %v", err)
	}

	if result.PlayerEarned != 800 || result.TreasuryShare != 200 {
		t.Errorf("split = (%d, %d), want (800, 200)", result.PlayerEarned, result.TreasuryShare)
	}
	if got := accounts.byUser["alice"]; got.Balance != 800 || len(got.Holdings) != 0 {
		t.Errorf("seller balance = %d holdings = %d, want 800 and 0", got.Balance, len(got.Holdings))
	}
	if got := accounts.byUser["treasury"]; got.Balance != 200 {
		t.Errorf("treasury balance = %d, want 200", got.Balance)
	}
	if got := items.items["blade"].Owners; got != 4 {
		t.Errorf("owners = %d, want 4 (last copy left the account)", got)
	}
	if len(items.deletedMarkers) != 1 || items.deletedMarkers[0] != "blade|alice" {
		t.Errorf("deleted markers = %v, want [blade|alice]", items.deletedMarkers)
	}
}

func TestSellHoldingsKeepsMarkerWhileCopiesRemain(t *testing.T) {
	s1, s2 := int64(1), int64(2)
	seller := &models.Account{
		UserID: "alice",
		Holdings: []models.Holding{
			{ID: "h1", ItemID: "blade", Serial: &s1, Amount: 1},
			{ID: "h2", ItemID: "blade", Serial: &s2, Amount: 1},
		},
	}
	s, accounts, items := settlementFixture(seller, &models.Item{
		ID:        "blade",
		Value:     1000,
		StockMode: models.StockLimited,
		Owners:    5,
	})

	if _, err := s.SellHoldings(context.Background(), "alice", "treasury", []string{"h1"}); err != nil {
		t.Fatalf("SellHoldings() error = %v", err)
	}

	if got := len(accounts.byUser["alice"].Holdings); got != 1 {
		t.Errorf("seller holdings = %d, want 1", got)
	}
	if got := items.items["blade"].Owners; got != 5 {
		t.Errorf("owners = %d, want 5 (seller still owns a copy)", got)
	}
	if len(items.deletedMarkers) != 0 {
		t.Errorf("deleted markers = %v, want none", items.deletedMarkers)
	}
}

func TestSellHoldingsDecrementsOwnersPerUnit(t *testing.T) {
	seller := &models.Account{
		UserID:   "alice",
		Holdings: []models.Holding{{ID: "h1", ItemID: "potion", Amount: 4}},
	}
	s, accounts, items := settlementFixture(seller, &models.Item{
		ID:     "potion",
		Value:  99,
		Owners: 10,
	})

	result, err := s.SellHoldings(context.Background(), "alice", "treasury", []string{"h1"})
	if err != nil {
		t.Fatalf("SellHoldings() error = %v", err)
	}

	// 4 * 99 = 396 splits to 316/79 with the remainder dropped.
	if result.PlayerEarned != 316 || result.TreasuryShare != 79 {
		t.Errorf("split = (%d, %d), want (316, 79)", result.PlayerEarned, result.TreasuryShare)
	}
	if got := items.items["potion"].Owners; got != 6 {
		t.Errorf("owners = %d, want 6 (decremented per unit sold)", got)
	}
	if len(items.deletedMarkers) != 0 {
		t.Errorf("deleted markers = %v, want none for unserialized items", items.deletedMarkers)
	}
	if got := accounts.byUser["alice"]; got.Balance != 316 || len(got.Holdings) != 0 {
		t.Errorf("seller balance = %d holdings = %d, want 316 and 0", got.Balance, len(got.Holdings))
	}
}

func TestSettleAbortsWhenInventoryShrank(t *testing.T) {
	seller := &models.Account{
		UserID:   "alice",
		Balance:  50,
		Holdings: []models.Holding{{ID: "h1", ItemID: "potion", Amount: 2}},
	}
	s, accounts, _ := settlementFixture(seller, &models.Item{ID: "potion", Value: 100, Owners: 2})

	// The plan was prepared against a bigger stack than the account now holds.
	plan := &Plan{HoldingIDs: []string{"h1"}, ItemID: "potion", UnitValue: 100, Quantity: 5}
	_, err := s.Settle(context.Background(), "alice", "treasury", plan)
	if !errors.Is(err, ErrInventoryMismatch) {
		t.Fatalf("Settle() error = %v, want ErrInventoryMismatch", err)
	}

	// Nothing may have moved: no payout, no holdings removed.
	if got := accounts.byUser["alice"]; got.Balance != 50 || len(got.Holdings) != 1 || got.Holdings[0].Amount != 2 {
		t.Errorf("seller mutated on aborted settle: %+v", got)
	}
	if got := accounts.byUser["treasury"]; got.Balance != 0 {
		t.Errorf("treasury balance = %d, want 0", got.Balance)
	}
}
