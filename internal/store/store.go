// Package store is the narrow persistence boundary. The engine wraps
// every submission in a single Tx so an order, its counterparty
// updates, the trades and the holdings movement commit as one unit or
// not at all. Reads (book rebuild, registry lookups) go through the
// Store directly.
package store

import (
	"context"

	"github.com/tejuiceB/FractionFi/internal/common"
)

// Store opens transactions and serves the reads the core needs.
// Lookups return (nil, nil) when the row does not exist.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	// OpenOrders returns orders with status open or partial, ordered
	// by creation time, for rebuilding books at startup.
	OpenOrders(ctx context.Context) ([]*common.Order, error)
	Holdings(ctx context.Context) ([]*common.Holding, error)
	Bond(ctx context.Context, id string) (*common.Bond, error)
	User(ctx context.Context, id string) (*common.User, error)
}

// Tx is one atomic submission effect. Implementations map Commit
// failures to common.ErrPersistenceFailure and retryable contention to
// common.ErrConflict.
type Tx interface {
	InsertOrder(o *common.Order) error
	UpdateOrderFillAndStatus(o *common.Order) error
	InsertTrade(t *common.Trade) error
	UpsertHolding(h *common.Holding) error
	DeleteHolding(userID, bondID string) error
	Commit() error
	Rollback() error
}
