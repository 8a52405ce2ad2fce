package config

import "time"

// Application-wide constants organized by domain

// Economy constants
const (
	// Share of a sale credited to the selling account; the rest goes to the
	// treasury. Both shares use floor division and any remainder is dropped.
	PlayerSharePercent   = 80
	TreasurySharePercent = 20

	// Rolls landing on items at or above this value emit a public roll event.
	GlobalRollMinValue = 250_000
)

// Trade constants
const (
	MaxTradeHoldings = 7
	MaxTradeCash     = 100_000_000
	TradeTTL         = 7 * 24 * time.Hour
	TradeSweepEvery  = time.Minute
)

// Cache and batching windows. Fixed by design, not runtime-tunable.
const (
	CatalogCacheTTL       = 5 * time.Minute
	TreasuryRetryCooldown = 30 * time.Second
	BatchFlushInterval    = time.Minute
	ItemCacheSize         = 10000
	ItemCacheExpiration   = 5 * time.Minute
)

// Timeouts
const (
	DefaultQueryTimeout = 30 * time.Second
	DefaultTxTimeout    = 10 * time.Second
	NetworkDialTimeout  = 5 * time.Second
	NotifyTimeout       = 10 * time.Second
)
