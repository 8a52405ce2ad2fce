package models

import (
	"testing"
	"time"
)

func TestBanActive(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		ban  BanInfo
		want bool
	}{
		{name: "no ban", ban: BanInfo{}, want: false},
		{name: "permanent", ban: BanInfo{Kind: BanPermanent}, want: true},
		{
			name: "temporary in force",
			ban:  BanInfo{Kind: BanTemporary, ExpiresAt: now.Add(time.Hour)},
			want: true,
		},
		{
			name: "temporary lapsed",
			ban:  BanInfo{Kind: BanTemporary, ExpiresAt: now.Add(-time.Hour)},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ban.Active(now); got != tt.want {
				t.Errorf("Active() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccountHoldingLookups(t *testing.T) {
	serial := int64(3)
	account := &Account{
		Holdings: []Holding{
			{ID: "h1", ItemID: "sword", Serial: &serial, Amount: 1},
			{ID: "h2", ItemID: "potion", Amount: 5},
		},
	}

	if idx := account.HoldingByID("h2"); idx != 1 {
		t.Errorf("HoldingByID(h2) = %d, want 1", idx)
	}
	if idx := account.HoldingByID("missing"); idx != -1 {
		t.Errorf("HoldingByID(missing) = %d, want -1", idx)
	}

	// Serialized copies never stack, so only the potion qualifies.
	if idx := account.UnserializedHolding("sword"); idx != -1 {
		t.Errorf("UnserializedHolding(sword) = %d, want -1", idx)
	}
	if idx := account.UnserializedHolding("potion"); idx != 1 {
		t.Errorf("UnserializedHolding(potion) = %d, want 1", idx)
	}

	if !account.OwnsItem("sword") {
		t.Error("OwnsItem(sword) = false, want true")
	}
	if account.OwnsItem("shield") {
		t.Error("OwnsItem(shield) = true, want false")
	}

	account.RemoveHolding(0)
	if len(account.Holdings) != 1 || account.Holdings[0].ID != "h2" {
		t.Errorf("RemoveHolding left %+v", account.Holdings)
	}
}

func TestAccountAutoSells(t *testing.T) {
	account := &Account{AutoSell: []Rarity{RarityCommon, RarityRare}}
	if !account.AutoSells(RarityCommon) {
		t.Error("AutoSells(Common) = false, want true")
	}
	if account.AutoSells(RarityEpic) {
		t.Error("AutoSells(Epic) = true, want false")
	}
}
