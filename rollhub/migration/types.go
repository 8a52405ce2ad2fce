package migration

import "time"

// MongoAccount mirrors the legacy player document.
type MongoAccount struct {
	UserID   string  `bson:"discord_id"`
	Username string  `bson:"username"`
	Balance  float64 `bson:"exp"`
	Rolls    int64   `bson:"rolls"`
	Admin    bool    `bson:"admin"`
	Ban      *struct {
		Kind    string    `bson:"type"`
		Reason  string    `bson:"reason"`
		Expires time.Time `bson:"expires"`
	} `bson:"ban"`
	AutoSellTiers []int     `bson:"autosell"`
	LastSeen      time.Time `bson:"last_msg"`
	Joined        time.Time `bson:"joined"`
}

// MongoHolding mirrors one legacy inventory entry.
type MongoHolding struct {
	UserID   string    `bson:"userid"`
	ItemID   string    `bson:"itemid"`
	Serial   *int64    `bson:"serial"`
	Amount   int64     `bson:"amount"`
	Locked   bool      `bson:"locked"`
	Obtained time.Time `bson:"obtained"`
}

// MongoItem mirrors the legacy item document.
type MongoItem struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	Description string    `bson:"desc"`
	Image       string    `bson:"image"`
	Value       float64   `bson:"eval"`
	OnSale      bool      `bson:"onsale"`
	StockType   string    `bson:"stocktype"`
	TotalStock  int64     `bson:"totalstock"`
	Remaining   int64     `bson:"remaining"`
	Expires     time.Time `bson:"expires"`
	NextSerial  int64     `bson:"nextserial"`
	Owners      int64     `bson:"owners"`
	Added       time.Time `bson:"added"`
}

// TableStats tracks per-table import counts.
type TableStats struct {
	Read     int64
	Imported int64
	Skipped  int64
}

// ImportStats aggregates the whole run.
type ImportStats struct {
	Tables    map[string]*TableStats
	StartTime time.Time
	EndTime   time.Time
}

func (s *ImportStats) table(name string) *TableStats {
	if s.Tables == nil {
		s.Tables = make(map[string]*TableStats)
	}
	if s.Tables[name] == nil {
		s.Tables[name] = &TableStats{}
	}
	return s.Tables[name]
}
