package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/tejuiceB/FractionFi/internal/common"
)

// Postgres backs the store with a Postgres database through gorm.
// Schema management is an operator concern; the store assumes the
// tables exist.
type Postgres struct {
	db *gorm.DB
}

func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx := p.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("begin: %v: %w", tx.Error, common.ErrPersistenceFailure)
	}
	return &pgTx{tx: tx}, nil
}

func (p *Postgres) OpenOrders(ctx context.Context) ([]*common.Order, error) {
	var orders []*common.Order
	result := p.db.WithContext(ctx).
		Where("status IN ?", []common.OrderStatus{common.OrderOpen, common.OrderPartial}).
		Order("created_at ASC, id ASC").
		Find(&orders)
	if result.Error != nil {
		return nil, classify(result.Error)
	}
	return orders, nil
}

func (p *Postgres) Holdings(ctx context.Context) ([]*common.Holding, error) {
	var holdings []*common.Holding
	if result := p.db.WithContext(ctx).Find(&holdings); result.Error != nil {
		return nil, classify(result.Error)
	}
	return holdings, nil
}

func (p *Postgres) Bond(ctx context.Context, id string) (*common.Bond, error) {
	var bond common.Bond
	result := p.db.WithContext(ctx).Where("id = ?", id).First(&bond)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, classify(result.Error)
	}
	return &bond, nil
}

func (p *Postgres) User(ctx context.Context, id string) (*common.User, error) {
	var user common.User
	result := p.db.WithContext(ctx).Where("id = ?", id).First(&user)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, classify(result.Error)
	}
	return &user, nil
}

type pgTx struct {
	tx *gorm.DB
}

func (t *pgTx) InsertOrder(o *common.Order) error {
	return classify(t.tx.Create(o).Error)
}

func (t *pgTx) UpdateOrderFillAndStatus(o *common.Order) error {
	return classify(t.tx.Model(&common.Order{}).
		Where("id = ?", o.ID).
		Updates(map[string]any{
			"filled_quantity": o.Filled,
			"status":          o.Status,
			"updated_at":      o.UpdatedAt,
		}).Error)
}

func (t *pgTx) InsertTrade(tr *common.Trade) error {
	return classify(t.tx.Create(tr).Error)
}

func (t *pgTx) UpsertHolding(h *common.Holding) error {
	if h.ID == "" {
		h.ID = common.NewID()
	}
	if h.LastUpdated.IsZero() {
		h.LastUpdated = time.Now()
	}
	return classify(t.tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "bond_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "last_updated"}),
	}).Create(h).Error)
}

func (t *pgTx) DeleteHolding(userID, bondID string) error {
	return classify(t.tx.
		Where("user_id = ? AND bond_id = ?", userID, bondID).
		Delete(&common.Holding{}).Error)
}

func (t *pgTx) Commit() error {
	return classify(t.tx.Commit().Error)
}

func (t *pgTx) Rollback() error {
	return classify(t.tx.Rollback().Error)
}

// classify maps database errors onto the stable taxonomy: serialization
// and deadlock failures are retryable Conflicts, everything else is a
// PersistenceFailure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected.
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return fmt.Errorf("%v: %w", err, common.ErrConflict)
		}
	}
	return fmt.Errorf("%v: %w", err, common.ErrPersistenceFailure)
}
