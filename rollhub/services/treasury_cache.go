package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hywave/roll-hub/rollhub/config"
	"github.com/hywave/roll-hub/rollhub/database/models"
	"golang.org/x/sync/singleflight"
)

var ErrTreasuryUnavailable = errors.New("treasury account not resolvable")

// TreasuryResolver is the slice of the account repository the cache needs.
type TreasuryResolver interface {
	GetByID(ctx context.Context, id int64) (*models.Account, error)
}

// TreasuryCache resolves and caches the identity reference of the house
// account. A failed resolution is retried only after a cooldown so a missing
// treasury row cannot turn every roll into a store read.
type TreasuryCache struct {
	resolver TreasuryResolver
	cooldown time.Duration

	mu          sync.Mutex
	userID      string
	initialized bool
	lastAttempt time.Time

	group singleflight.Group
}

func NewTreasuryCache(resolver TreasuryResolver) *TreasuryCache {
	return &TreasuryCache{
		resolver: resolver,
		cooldown: config.TreasuryRetryCooldown,
	}
}

// GetTreasuryAccountID returns the cached identity reference of the house
// account, resolving it on first use. Concurrent callers share one in-flight
// resolution.
func (c *TreasuryCache) GetTreasuryAccountID(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.initialized {
		id := c.userID
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("treasury", func() (interface{}, error) {
		// The cooldown gate lives inside the flight so callers arriving during
		// a resolution join it instead of bouncing off a just-set timestamp.
		c.mu.Lock()
		if c.initialized {
			id := c.userID
			c.mu.Unlock()
			return id, nil
		}
		if time.Since(c.lastAttempt) < c.cooldown {
			c.mu.Unlock()
			return "", ErrTreasuryUnavailable
		}
		c.mu.Unlock()

		account, err := c.resolver.GetByID(ctx, models.TreasuryAccountID)
		if err != nil {
			c.mu.Lock()
			c.lastAttempt = time.Now()
			c.mu.Unlock()
			return "", err
		}

		c.mu.Lock()
		c.userID = account.UserID
		c.initialized = true
		c.mu.Unlock()
		return account.UserID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
