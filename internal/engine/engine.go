// Package engine is the matching core. It validates submissions, walks
// the opposite side of the book under strict price-time priority,
// records trades and holdings movement atomically through the store,
// and hands the resulting event batch to the broadcaster after commit.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tejuiceB/FractionFi/internal/book"
	"github.com/tejuiceB/FractionFi/internal/ledger"
	"github.com/tejuiceB/FractionFi/internal/registry"
	"github.com/tejuiceB/FractionFi/internal/store"
	"github.com/tejuiceB/FractionFi/internal/ws"
)

const (
	// maxCommitAttempts bounds retries when the store reports ledger
	// contention (Conflict) on commit.
	maxCommitAttempts = 3

	// maxSnapshotDepth caps how many levels a snapshot may request.
	maxSnapshotDepth = 50

	// eventDepth is how many levels orderbook_update frames carry.
	eventDepth = 10
)

// Publisher receives post-commit event batches. The hub implements it;
// the engine never blocks on subscriber sends.
type Publisher interface {
	Publish(batch ...ws.Outbound)
}

// Engine owns one book per bond. All submissions, cancels and snapshots
// for a bond serialize on that bond's lock, so within a bond matching
// is single-threaded; different bonds proceed in parallel. The holdings
// ledger is the only cross-bond state and carries its own locks.
type Engine struct {
	store    store.Store
	registry *registry.Registry
	ledger   *ledger.Ledger
	pub      Publisher

	mu    sync.RWMutex
	books map[string]*bookState

	// orderBonds maps resting order IDs to their bond so cancels can
	// find the right book without scanning.
	orderBonds sync.Map
}

type bookState struct {
	mu   sync.Mutex
	book *book.Book
}

func New(st store.Store, reg *registry.Registry, led *ledger.Ledger, pub Publisher) *Engine {
	return &Engine{
		store:    st,
		registry: reg,
		ledger:   led,
		pub:      pub,
		books:    make(map[string]*bookState),
	}
}

func (e *Engine) state(bondID string) *bookState {
	e.mu.RLock()
	bs, ok := e.books[bondID]
	e.mu.RUnlock()
	if ok {
		return bs
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if bs, ok = e.books[bondID]; !ok {
		bs = &bookState{book: book.New(bondID)}
		e.books[bondID] = bs
	}
	return bs
}

// Restore rebuilds every book and the holdings ledger from the store.
// Open orders arrive in creation order, so re-inserting them reassigns
// insertion sequences that preserve the original time priority and
// leave each counter past the maximum previously observed.
func (e *Engine) Restore(ctx context.Context) error {
	holdings, err := e.store.Holdings(ctx)
	if err != nil {
		return fmt.Errorf("restore holdings: %w", err)
	}
	e.ledger.Load(holdings)

	orders, err := e.store.OpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("restore orders: %w", err)
	}
	for _, o := range orders {
		bs := e.state(o.BondID)
		bs.mu.Lock()
		bs.book.Insert(o)
		bs.mu.Unlock()
		e.orderBonds.Store(o.ID, o.BondID)
	}
	log.Info().Int("orders", len(orders)).Int("holdings", len(holdings)).Msg("books restored")
	return nil
}

// Snapshot returns the top depth levels of each side. It reflects every
// submission accepted for the bond before the call and none after.
type Snapshot struct {
	BondID string         `json:"bond_id"`
	Bids   []book.Summary `json:"bids"`
	Asks   []book.Summary `json:"asks"`
}

func (e *Engine) Snapshot(ctx context.Context, bondID string, depth int) (*Snapshot, error) {
	if _, err := e.registry.Bond(ctx, bondID); err != nil {
		return nil, err
	}
	if depth <= 0 || depth > maxSnapshotDepth {
		depth = maxSnapshotDepth
	}
	bs := e.state(bondID)
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bids, asks := bs.book.Depth(depth)
	return &Snapshot{BondID: bondID, Bids: bids, Asks: asks}, nil
}

func (e *Engine) snapshotLocked(b *book.Book) ws.Event {
	bids, asks := b.Depth(eventDepth)
	return ws.Event{Type: ws.TypeOrderbookUpdate, Data: Snapshot{
		BondID: b.BondID,
		Bids:   bids,
		Asks:   asks,
	}}
}
