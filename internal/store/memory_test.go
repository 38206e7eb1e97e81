package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejuiceB/FractionFi/internal/common"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newOrder(status common.OrderStatus, createdAt time.Time) *common.Order {
	return &common.Order{
		ID:        common.NewID(),
		UserID:    common.NewID(),
		BondID:    "b1",
		Side:      common.Buy,
		Type:      common.LimitOrder,
		Price:     dec("99.50"),
		Quantity:  dec("100"),
		Filled:    decimal.Zero,
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestCommitAppliesStagedWrites(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	order := newOrder(common.OrderOpen, time.Now())
	tx, err := m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertOrder(order))
	require.NoError(t, tx.InsertTrade(&common.Trade{ID: "t1", BondID: "b1", Price: dec("99.50"), Quantity: dec("10"), ExecutedAt: time.Now()}))
	require.NoError(t, tx.UpsertHolding(&common.Holding{UserID: "u1", BondID: "b1", Quantity: dec("10")}))

	// Nothing is visible until Commit.
	_, ok := m.Order(order.ID)
	assert.False(t, ok)

	require.NoError(t, tx.Commit())
	row, ok := m.Order(order.ID)
	require.True(t, ok)
	assert.Equal(t, common.OrderOpen, row.Status)
	h, ok := m.Holding("u1", "b1")
	require.True(t, ok)
	assert.True(t, h.Quantity.Equal(dec("10")))
	assert.Len(t, m.Trades(), 1)
}

func TestRollbackDiscardsEverything(t *testing.T) {
	m := NewMemory()
	tx, err := m.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.InsertOrder(newOrder(common.OrderOpen, time.Now())))
	require.NoError(t, tx.Rollback())

	orders, err := m.OpenOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestFailNextCommitRollsBack(t *testing.T) {
	m := NewMemory()
	m.FailNextCommit(errors.New("boom"))

	tx, _ := m.Begin(context.Background())
	require.NoError(t, tx.InsertOrder(newOrder(common.OrderOpen, time.Now())))
	err := tx.Commit()
	require.ErrorIs(t, err, common.ErrPersistenceFailure)

	orders, _ := m.OpenOrders(context.Background())
	assert.Empty(t, orders)

	// The failure is one-shot; the next transaction lands.
	tx, _ = m.Begin(context.Background())
	require.NoError(t, tx.InsertOrder(newOrder(common.OrderOpen, time.Now())))
	require.NoError(t, tx.Commit())
	orders, _ = m.OpenOrders(context.Background())
	assert.Len(t, orders, 1)
}

func TestUpsertThenDeleteHolding(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	tx, _ := m.Begin(ctx)
	require.NoError(t, tx.UpsertHolding(&common.Holding{UserID: "u1", BondID: "b1", Quantity: dec("10")}))
	require.NoError(t, tx.Commit())

	tx, _ = m.Begin(ctx)
	require.NoError(t, tx.UpsertHolding(&common.Holding{UserID: "u1", BondID: "b1", Quantity: dec("25")}))
	require.NoError(t, tx.Commit())
	h, ok := m.Holding("u1", "b1")
	require.True(t, ok)
	assert.True(t, h.Quantity.Equal(dec("25")), "upsert replaces the quantity")

	tx, _ = m.Begin(ctx)
	require.NoError(t, tx.DeleteHolding("u1", "b1"))
	require.NoError(t, tx.Commit())
	_, ok = m.Holding("u1", "b1")
	assert.False(t, ok)
}

func TestOpenOrdersFiltersAndSorts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now()

	older := newOrder(common.OrderOpen, base.Add(-time.Minute))
	newer := newOrder(common.OrderPartial, base)
	done := newOrder(common.OrderFilled, base.Add(-time.Hour))
	gone := newOrder(common.OrderCancelled, base.Add(-time.Hour))

	tx, _ := m.Begin(ctx)
	for _, o := range []*common.Order{newer, done, older, gone} {
		require.NoError(t, tx.InsertOrder(o))
	}
	require.NoError(t, tx.Commit())

	orders, err := m.OpenOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 2, "terminal orders are not restored")
	assert.Equal(t, older.ID, orders[0].ID, "creation order")
	assert.Equal(t, newer.ID, orders[1].ID)
}

func TestUpdateOrderFillAndStatus(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	order := newOrder(common.OrderOpen, time.Now())
	tx, _ := m.Begin(ctx)
	require.NoError(t, tx.InsertOrder(order))
	require.NoError(t, tx.Commit())

	order.ApplyFill(dec("40"), time.Now())
	tx, _ = m.Begin(ctx)
	require.NoError(t, tx.UpdateOrderFillAndStatus(order))
	require.NoError(t, tx.Commit())

	row, ok := m.Order(order.ID)
	require.True(t, ok)
	assert.Equal(t, common.OrderPartial, row.Status)
	assert.True(t, row.Filled.Equal(dec("40")))
	assert.True(t, row.Quantity.Equal(dec("100")), "original quantity untouched")
}
