package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/hywave/roll-hub/rollhub/database/models"
	"github.com/uptrace/bun"
)

type RollEventRepository interface {
	Create(ctx context.Context, event *models.RollEvent) error
	GetRecent(ctx context.Context, limit int) ([]*models.RollEvent, error)
}

type rollEventRepository struct {
	db *bun.DB
}

func NewRollEventRepository(db *bun.DB) RollEventRepository {
	return &rollEventRepository{db: db}
}

func (r *rollEventRepository) Create(ctx context.Context, event *models.RollEvent) error {
	if event.RolledAt.IsZero() {
		event.RolledAt = time.Now()
	}
	_, err := r.db.NewInsert().Model(event).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create roll event: %w", err)
	}
	return nil
}

func (r *rollEventRepository) GetRecent(ctx context.Context, limit int) ([]*models.RollEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var events []*models.RollEvent
	err := r.db.NewSelect().
		Model(&events).
		Order("rolled_at DESC").
		Limit(limit).
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get recent roll events: %w", err)
	}
	return events, nil
}
