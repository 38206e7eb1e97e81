package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/tejuiceB/FractionFi/internal/common"
	"github.com/tejuiceB/FractionFi/internal/metrics"
	"github.com/tejuiceB/FractionFi/internal/store"
	"github.com/tejuiceB/FractionFi/internal/ws"
)

// plannedFill is one maker consumption decided during the read-only
// walk. Nothing is mutated until the transaction commits.
type plannedFill struct {
	maker *common.Order
	qty   decimal.Decimal
}

// Submit runs the full order lifecycle for one submission: validate,
// match against the opposite side, persist the whole effect atomically,
// then apply it to the book and ledger and publish the event batch.
// Validation failures return the taxonomy sentinels and leave no trace.
func (e *Engine) Submit(ctx context.Context, userID, bondID string, side common.Side, typ common.OrderType, price, quantity decimal.Decimal) (*common.Order, []*common.Trade, error) {
	bond, err := e.registry.Bond(ctx, bondID)
	if err != nil {
		return nil, nil, e.reject(err)
	}
	if !bond.Tradable() {
		return nil, nil, e.reject(fmt.Errorf("bond %s is %s: %w", bondID, bond.Status, common.ErrInstrumentNotTradable))
	}
	if _, err := e.registry.User(ctx, userID); err != nil {
		return nil, nil, e.reject(err)
	}
	if !quantity.IsPositive() {
		return nil, nil, e.reject(fmt.Errorf("quantity %s: %w", quantity, common.ErrBadQuantity))
	}
	if bond.MinUnit.IsPositive() && !quantity.Mod(bond.MinUnit).IsZero() {
		return nil, nil, e.reject(fmt.Errorf("quantity %s is not a multiple of min unit %s: %w", quantity, bond.MinUnit, common.ErrBadQuantity))
	}
	if typ == common.LimitOrder && !price.IsPositive() {
		return nil, nil, e.reject(fmt.Errorf("price %s: %w", price, common.ErrBadPrice))
	}
	if side == common.Sell && e.ledger.Get(userID, bondID).LessThan(quantity) {
		return nil, nil, e.reject(fmt.Errorf("sell %s of %s: %w", quantity, bondID, common.ErrInsufficientHoldings))
	}

	if typ == common.MarketOrder {
		// Market orders carry no limit; whatever was passed is ignored.
		price = decimal.Zero
	}

	bs := e.state(bondID)
	bs.mu.Lock()
	defer bs.mu.Unlock()

	now := time.Now()
	order := &common.Order{
		ID:        common.NewID(),
		UserID:    userID,
		BondID:    bondID,
		Side:      side,
		Type:      typ,
		Price:     price,
		Quantity:  quantity,
		Filled:    decimal.Zero,
		Status:    common.OrderOpen,
		TxHash:    common.NewTxHash(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	fills, deltas, remaining := e.plan(bs, order)

	trades := make([]*common.Trade, 0, len(fills))
	for _, f := range fills {
		order.ApplyFill(f.qty, now)
		trade := &common.Trade{
			ID:         common.NewID(),
			BondID:     bondID,
			Price:      f.maker.Price,
			Quantity:   f.qty,
			TxHash:     common.NewTxHash(),
			ExecutedAt: now,
		}
		if side == common.Buy {
			trade.BuyOrderID, trade.SellOrderID = order.ID, f.maker.ID
		} else {
			trade.BuyOrderID, trade.SellOrderID = f.maker.ID, order.ID
		}
		trades = append(trades, trade)
	}

	// Market residual is discarded, never rested: a market order that
	// traded at all ends filled, one that found nothing is cancelled.
	if typ == common.MarketOrder && remaining.IsPositive() {
		if len(fills) > 0 {
			order.Status = common.OrderFilled
		} else {
			order.Status = common.OrderCancelled
		}
	}

	if err := e.commit(ctx, order, fills, trades, deltas, now); err != nil {
		return nil, nil, e.reject(err)
	}

	// Commit succeeded; make the effect visible in book and ledger.
	for _, f := range fills {
		f.maker.ApplyFill(f.qty, now)
		if f.maker.Remaining().IsZero() {
			bs.book.Remove(f.maker.ID)
			e.orderBonds.Delete(f.maker.ID)
		}
	}
	if typ == common.LimitOrder && remaining.IsPositive() {
		bs.book.Insert(order)
		e.orderBonds.Store(order.ID, bondID)
	}
	e.ledger.Apply(bondID, deltas)

	metrics.OrdersSubmitted.Inc()
	metrics.TradesExecuted.Add(float64(len(trades)))
	if len(trades) > 0 {
		log.Info().
			Str("bond", bondID).
			Str("order", order.ID).
			Int("trades", len(trades)).
			Str("filled", order.Filled.String()).
			Msg("order matched")
	}

	e.pub.Publish(e.submissionEvents(bs, order, fills, trades, deltas)...)
	return order, trades, nil
}

// plan walks the opposite side in price-time priority and decides every
// fill without touching book state. Same-user makers are skipped in
// place, which leaves their queue position untouched — the
// skip-and-restore strategy with the restore made implicit. Sellers
// hold no reservation, so a maker on the sell side is consumed only up
// to the units its owner still has; a starved maker is skipped and
// stays resting.
func (e *Engine) plan(bs *bookState, incoming *common.Order) ([]plannedFill, map[string]decimal.Decimal, decimal.Decimal) {
	remaining := incoming.Quantity
	deltas := make(map[string]decimal.Decimal)
	var fills []plannedFill

	bs.book.Walk(incoming.Side.Opposite(), func(maker *common.Order) bool {
		if incoming.Type == common.LimitOrder && !crosses(incoming.Side, incoming.Price, maker.Price) {
			return false
		}
		if maker.UserID == incoming.UserID {
			return true
		}

		available := maker.Remaining()
		buyer, seller := incoming.UserID, maker.UserID
		if incoming.Side == common.Sell {
			buyer, seller = maker.UserID, incoming.UserID
		}
		if balance := e.ledger.Get(seller, incoming.BondID).Add(deltas[seller]); balance.LessThan(available) {
			available = balance
		}
		if !available.IsPositive() {
			return true
		}

		qty := decimal.Min(remaining, available)
		fills = append(fills, plannedFill{maker: maker, qty: qty})
		deltas[buyer] = deltas[buyer].Add(qty)
		deltas[seller] = deltas[seller].Sub(qty)
		remaining = remaining.Sub(qty)
		return remaining.IsPositive()
	})
	return fills, deltas, remaining
}

// crosses reports whether an incoming limit order at price can trade
// against a maker resting at makerPrice.
func crosses(side common.Side, price, makerPrice decimal.Decimal) bool {
	if side == common.Buy {
		return makerPrice.LessThanOrEqual(price)
	}
	return makerPrice.GreaterThanOrEqual(price)
}

// commit persists the whole submission as one transaction: the new
// order, every touched maker, the trades, and the resulting holdings
// rows. Conflicts are retried a bounded number of times; any other
// failure aborts the submission with no side effects.
func (e *Engine) commit(ctx context.Context, order *common.Order, fills []plannedFill, trades []*common.Trade, deltas map[string]decimal.Decimal, now time.Time) error {
	// Holdings rows are written in sorted user order so two concurrent
	// submissions touching the same users take row locks in the same
	// order.
	users := make([]string, 0, len(deltas))
	for u := range deltas {
		if !deltas[u].IsZero() {
			users = append(users, u)
		}
	}
	sort.Strings(users)

	for attempt := 1; ; attempt++ {
		tx, err := e.store.Begin(ctx)
		if err != nil {
			return err
		}
		err = e.writeTx(tx, order, fills, trades, users, deltas, now)
		if err == nil {
			return nil
		}
		_ = tx.Rollback()
		if errors.Is(err, common.ErrConflict) && attempt < maxCommitAttempts {
			metrics.CommitRetries.Inc()
			log.Warn().Int("attempt", attempt).Str("order", order.ID).Msg("commit conflict, retrying")
			continue
		}
		return err
	}
}

func (e *Engine) writeTx(tx store.Tx, order *common.Order, fills []plannedFill, trades []*common.Trade, users []string, deltas map[string]decimal.Decimal, now time.Time) error {
	if err := tx.InsertOrder(order); err != nil {
		return err
	}
	for _, f := range fills {
		after := *f.maker
		after.ApplyFill(f.qty, now)
		if err := tx.UpdateOrderFillAndStatus(&after); err != nil {
			return err
		}
	}
	for _, trade := range trades {
		if err := tx.InsertTrade(trade); err != nil {
			return err
		}
	}
	for _, user := range users {
		final := e.ledger.Get(user, order.BondID).Add(deltas[user])
		if final.IsZero() {
			if err := tx.DeleteHolding(user, order.BondID); err != nil {
				return err
			}
			continue
		}
		if err := tx.UpsertHolding(&common.Holding{
			UserID:      user,
			BondID:      order.BondID,
			Quantity:    final,
			LastUpdated: now,
		}); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// submissionEvents assembles the post-commit batch: trades first, then
// the terminal book snapshot, then order and portfolio notifications.
func (e *Engine) submissionEvents(bs *bookState, order *common.Order, fills []plannedFill, trades []*common.Trade, deltas map[string]decimal.Decimal) []ws.Outbound {
	room := ws.BondRoom(order.BondID)
	batch := make([]ws.Outbound, 0, len(trades)+len(fills)+len(deltas)+2)
	for _, trade := range trades {
		batch = append(batch, ws.Outbound{Room: room, Event: ws.Event{Type: ws.TypeTrade, Data: trade}})
	}
	batch = append(batch, ws.Outbound{Room: room, Event: e.snapshotLocked(bs.book)})
	batch = append(batch, ws.Outbound{Room: ws.UserRoom(order.UserID), Event: ws.Event{Type: ws.TypeOrderUpdate, Data: order}})
	for _, f := range fills {
		batch = append(batch, ws.Outbound{Room: ws.UserRoom(f.maker.UserID), Event: ws.Event{Type: ws.TypeOrderUpdate, Data: f.maker}})
	}
	users := make([]string, 0, len(deltas))
	for u := range deltas {
		if !deltas[u].IsZero() {
			users = append(users, u)
		}
	}
	sort.Strings(users)
	for _, u := range users {
		batch = append(batch, ws.Outbound{Room: ws.UserRoom(u), Event: ws.Event{Type: ws.TypePortfolioUpdate}})
	}
	return batch
}

// reject counts the rejection and passes the error through untouched.
func (e *Engine) reject(err error) error {
	metrics.OrdersRejected.WithLabelValues(common.CodeOf(err)).Inc()
	return err
}
