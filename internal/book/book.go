// Package book holds the per-bond price-time order book. The book is
// the single source of truth for unmatched remaining quantity; it is
// mutated only by the owning bond's matching serializer and carries no
// locking of its own.
package book

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"github.com/tejuiceB/FractionFi/internal/common"
)

// Level is one price level: a FIFO queue of resting orders at the same
// price. Orders are appended on insert, so slice order is time order.
type Level struct {
	Price  decimal.Decimal
	Orders []*common.Order
}

// remaining sums the unfilled quantity resting at this level.
func (l *Level) remaining() decimal.Decimal {
	total := decimal.Zero
	for _, o := range l.Orders {
		total = total.Add(o.Remaining())
	}
	return total
}

// Summary is one aggregated depth row.
type Summary struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Orders   int             `json:"orders_count"`
}

type Levels = btree.BTreeG[*Level]

// Book indexes resting orders for one bond: bids sorted best (highest)
// first, asks sorted best (lowest) first, ties within a level broken by
// the insertion counter.
type Book struct {
	BondID string

	bids *Levels
	asks *Levels
	byID map[string]*common.Order

	// seq is the strictly monotonic insertion counter. It tie-breaks
	// price-time priority even when wall-clock timestamps collide.
	seq uint64
}

func New(bondID string) *Book {
	// Sorted greatest first.
	bids := btree.NewBTreeG(func(a, b *Level) bool {
		return a.Price.GreaterThan(b.Price)
	})
	// Sorted least first.
	asks := btree.NewBTreeG(func(a, b *Level) bool {
		return a.Price.LessThan(b.Price)
	})
	return &Book{
		BondID: bondID,
		bids:   bids,
		asks:   asks,
		byID:   make(map[string]*common.Order),
	}
}

func (b *Book) side(s common.Side) *Levels {
	if s == common.Buy {
		return b.bids
	}
	return b.asks
}

// Insert rests the order at the tail of its price level, creating the
// level if needed, and stamps the insertion sequence.
func (b *Book) Insert(order *common.Order) {
	b.seq++
	order.Seq = b.seq

	levels := b.side(order.Side)
	if level, ok := levels.GetMut(&Level{Price: order.Price}); ok {
		level.Orders = append(level.Orders, order)
	} else {
		levels.Set(&Level{Price: order.Price, Orders: []*common.Order{order}})
	}
	b.byID[order.ID] = order
}

// Get returns the resting order with the given ID, if any.
func (b *Book) Get(id string) (*common.Order, bool) {
	o, ok := b.byID[id]
	return o, ok
}

// Remove takes the order out of the book, deleting its level if it was
// the last one resting there.
func (b *Book) Remove(id string) (*common.Order, bool) {
	order, ok := b.byID[id]
	if !ok {
		return nil, false
	}
	delete(b.byID, id)

	levels := b.side(order.Side)
	level, ok := levels.GetMut(&Level{Price: order.Price})
	if !ok {
		return order, true
	}
	for i, o := range level.Orders {
		if o.ID == id {
			level.Orders = append(level.Orders[:i], level.Orders[i+1:]...)
			break
		}
	}
	if len(level.Orders) == 0 {
		levels.Delete(level)
	}
	return order, true
}

// Walk visits resting orders on the given side in price-time priority
// (best price first, earliest sequence first within a level) until fn
// returns false. The callback must not mutate the book.
func (b *Book) Walk(s common.Side, fn func(o *common.Order) bool) {
	b.side(s).Scan(func(level *Level) bool {
		for _, o := range level.Orders {
			if !fn(o) {
				return false
			}
		}
		return true
	})
}

// Best returns the best price level on the given side.
func (b *Book) Best(s common.Side) (*Level, bool) {
	return b.side(s).MinMut()
}

// Depth aggregates up to topK levels per side into (price, remaining,
// order count) rows, best first.
func (b *Book) Depth(topK int) (bids, asks []Summary) {
	if topK <= 0 {
		return nil, nil
	}
	collect := func(levels *Levels) []Summary {
		out := make([]Summary, 0, topK)
		levels.Scan(func(level *Level) bool {
			out = append(out, Summary{
				Price:    level.Price,
				Quantity: level.remaining(),
				Orders:   len(level.Orders),
			})
			return len(out) < topK
		})
		return out
	}
	return collect(b.bids), collect(b.asks)
}

// Len is the number of resting orders across both sides.
func (b *Book) Len() int {
	return len(b.byID)
}
