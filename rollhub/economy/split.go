// Package economy holds the value arithmetic shared by the roll allocator
// and the liquidation service.
package economy

import "github.com/hywave/roll-hub/rollhub/config"

// SplitSale divides a sale value between the selling account and the
// treasury. Both shares use floor division; any remainder is dropped rather
// than reconciled.
func SplitSale(total int64) (player int64, treasury int64) {
	player = total * config.PlayerSharePercent / 100
	treasury = total * config.TreasurySharePercent / 100
	return player, treasury
}
