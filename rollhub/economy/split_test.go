package economy

import "testing"

func TestSplitSale(t *testing.T) {
	tests := []struct {
		name         string
		total        int64
		wantPlayer   int64
		wantTreasury int64
	}{
		{name: "even split", total: 100, wantPlayer: 80, wantTreasury: 20},
		{name: "remainder dropped", total: 99, wantPlayer: 79, wantTreasury: 19},
		{name: "tiny sale", total: 1, wantPlayer: 0, wantTreasury: 0},
		{name: "zero", total: 0, wantPlayer: 0, wantTreasury: 0},
		{name: "large sale", total: 2_500_000, wantPlayer: 2_000_000, wantTreasury: 500_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			player, treasury := SplitSale(tt.total)
			if player != tt.wantPlayer || treasury != tt.wantTreasury {
				t.Errorf("SplitSale(%d) = (%d, %d), want (%d, %d)",
					tt.total, player, treasury, tt.wantPlayer, tt.wantTreasury)
			}
			if player+treasury > tt.total {
				t.Errorf("shares exceed total: %d + %d > %d", player, treasury, tt.total)
			}
		})
	}
}
