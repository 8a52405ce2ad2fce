package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hywave/roll-hub/rollhub/database/models"
	"github.com/uptrace/bun"
)

var ErrAccountNotFound = errors.New("account not found")

type AccountRepository interface {
	DB() *bun.DB
	Create(ctx context.Context, account *models.Account) error
	GetByUserID(ctx context.Context, userID string) (*models.Account, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	GetBalance(ctx context.Context, userID string) (int64, error)
	ApplyPartial(ctx context.Context, userID string, fields map[string]any) error

	// Transactional variants used inside settlement bodies.
	GetByUserIDForUpdate(ctx context.Context, tx bun.Tx, userID string) (*models.Account, error)
	GetByIDForUpdate(ctx context.Context, tx bun.Tx, id int64) (*models.Account, error)
	UpdateTx(ctx context.Context, tx bun.Tx, account *models.Account) error
}

type accountRepository struct {
	db *bun.DB
}

func NewAccountRepository(db *bun.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) DB() *bun.DB {
	return r.db
}

func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	account.CreatedAt = time.Now()
	account.UpdatedAt = time.Now()
	if account.Holdings == nil {
		account.Holdings = []models.Holding{}
	}
	if account.AutoSell == nil {
		account.AutoSell = []models.Rarity{}
	}

	_, err := r.db.NewInsert().Model(account).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *accountRepository) GetByUserID(ctx context.Context, userID string) (*models.Account, error) {
	account := new(models.Account)
	err := r.db.NewSelect().
		Model(account).
		Where("user_id = ?", userID).
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	account := new(models.Account)
	err := r.db.NewSelect().
		Model(account).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func (r *accountRepository) Update(ctx context.Context, account *models.Account) error {
	account.UpdatedAt = time.Now()
	_, err := r.db.NewUpdate().
		Model(account).
		WherePK().
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

func (r *accountRepository) GetBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := r.db.NewSelect().
		Model((*models.Account)(nil)).
		Column("balance").
		Where("user_id = ?", userID).
		Scan(ctx, &balance)

	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// ApplyPartial writes a shallow set of column updates for one account. The
// deferred write batcher uses it to flush coalesced low-urgency mutations.
func (r *accountRepository) ApplyPartial(ctx context.Context, userID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	q := r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Where("user_id = ?", userID)
	for column, value := range fields {
		q = q.Set("? = ?", bun.Ident(column), value)
	}
	q = q.Set("updated_at = ?", time.Now())

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply partial update: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *accountRepository) GetByUserIDForUpdate(ctx context.Context, tx bun.Tx, userID string) (*models.Account, error) {
	account := new(models.Account)
	err := tx.NewSelect().
		Model(account).
		Where("user_id = ?", userID).
		For("UPDATE").
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	return account, nil
}

func (r *accountRepository) GetByIDForUpdate(ctx context.Context, tx bun.Tx, id int64) (*models.Account, error) {
	account := new(models.Account)
	err := tx.NewSelect().
		Model(account).
		Where("id = ?", id).
		For("UPDATE").
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	return account, nil
}

func (r *accountRepository) UpdateTx(ctx context.Context, tx bun.Tx, account *models.Account) error {
	account.UpdatedAt = time.Now()
	_, err := tx.NewUpdate().
		Model(account).
		WherePK().
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}
