package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tejuiceB/FractionFi/internal/common"
	"github.com/tejuiceB/FractionFi/internal/metrics"
	"github.com/tejuiceB/FractionFi/internal/ws"
)

// Cancel removes the residual of a resting order. It succeeds only when
// the order exists, belongs to the requesting user and is still open or
// partial; every other case — including a repeat cancel — returns false
// with no state change.
func (e *Engine) Cancel(ctx context.Context, orderID, userID string) bool {
	bondID, ok := e.orderBonds.Load(orderID)
	if !ok {
		// Not resting anywhere: unknown, already filled or already
		// cancelled. Terminal states are immutable.
		return false
	}

	bs := e.state(bondID.(string))
	bs.mu.Lock()
	defer bs.mu.Unlock()

	order, ok := bs.book.Get(orderID)
	if !ok {
		return false
	}
	if order.UserID != userID {
		log.Warn().Str("order", orderID).Str("user", userID).Msg("cancel refused: not owner")
		return false
	}
	if order.Status.Terminal() {
		return false
	}

	now := time.Now()
	after := *order
	after.Status = common.OrderCancelled
	after.UpdatedAt = now

	tx, err := e.store.Begin(ctx)
	if err != nil {
		log.Error().Err(err).Str("order", orderID).Msg("cancel: begin failed")
		return false
	}
	if err := tx.UpdateOrderFillAndStatus(&after); err != nil {
		_ = tx.Rollback()
		log.Error().Err(err).Str("order", orderID).Msg("cancel: update failed")
		return false
	}
	if err := tx.Commit(); err != nil {
		log.Error().Err(err).Str("order", orderID).Msg("cancel: commit failed")
		return false
	}

	bs.book.Remove(orderID)
	e.orderBonds.Delete(orderID)
	order.Status = common.OrderCancelled
	order.UpdatedAt = now
	metrics.OrdersCancelled.Inc()

	// Cancellation never moves holdings, so no portfolio_update here:
	// just the book change and the owner's order state.
	e.pub.Publish(
		ws.Outbound{Room: ws.BondRoom(order.BondID), Event: e.snapshotLocked(bs.book)},
		ws.Outbound{Room: ws.UserRoom(order.UserID), Event: ws.Event{Type: ws.TypeOrderUpdate, Data: order}},
	)
	return true
}
