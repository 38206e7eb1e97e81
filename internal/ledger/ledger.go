// Package ledger tracks per-(user, bond) unit balances. It is the only
// state shared across bonds, so mutations go through fine-grained locks
// keyed by user; when a trade touches two users their locks are taken
// in sorted user-ID order to rule out deadlock.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tejuiceB/FractionFi/internal/common"
)

type key struct {
	userID string
	bondID string
}

// Ledger is the in-memory view of holdings. The persistence adapter
// carries the same facts durably; the hot path reads only this view.
type Ledger struct {
	mu       sync.RWMutex // guards the maps themselves
	balances map[key]decimal.Decimal
	updated  map[key]time.Time

	locks sync.Map // userID -> *sync.Mutex
}

func New() *Ledger {
	return &Ledger{
		balances: make(map[key]decimal.Decimal),
		updated:  make(map[key]time.Time),
	}
}

// Load replaces the ledger contents, typically from the store at
// startup. Zero-quantity rows are ignored.
func (l *Ledger) Load(holdings []*common.Holding) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances = make(map[key]decimal.Decimal, len(holdings))
	l.updated = make(map[key]time.Time, len(holdings))
	for _, h := range holdings {
		if h.Quantity.IsPositive() {
			k := key{h.UserID, h.BondID}
			l.balances[k] = h.Quantity
			l.updated[k] = h.LastUpdated
		}
	}
}

func (l *Ledger) userLock(userID string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// lockUsers acquires the per-user locks in sorted order and returns the
// unlock function.
func (l *Ledger) lockUsers(userIDs ...string) func() {
	ids := append([]string(nil), userIDs...)
	sort.Strings(ids)
	held := make([]*sync.Mutex, 0, len(ids))
	var prev string
	for _, id := range ids {
		if id == prev {
			continue
		}
		prev = id
		mu := l.userLock(id)
		mu.Lock()
		held = append(held, mu)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// Get returns the user's balance for the bond; missing rows read zero.
func (l *Ledger) Get(userID, bondID string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[key{userID, bondID}]
}

func (l *Ledger) set(k key, qty decimal.Decimal, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setLocked(k, qty, at)
}

func (l *Ledger) setLocked(k key, qty decimal.Decimal, at time.Time) {
	if qty.IsZero() {
		delete(l.balances, k)
		delete(l.updated, k)
		return
	}
	l.balances[k] = qty
	l.updated[k] = at
}

// Credit adds qty to the user's balance, creating the row if absent.
func (l *Ledger) Credit(userID, bondID string, qty decimal.Decimal) {
	unlock := l.lockUsers(userID)
	defer unlock()
	l.set(key{userID, bondID}, l.Get(userID, bondID).Add(qty), time.Now())
}

// Debit removes qty from the user's balance. A debit that would go
// negative fails with ErrInsufficientHoldings; one that reaches zero
// deletes the row.
func (l *Ledger) Debit(userID, bondID string, qty decimal.Decimal) error {
	unlock := l.lockUsers(userID)
	defer unlock()
	next := l.Get(userID, bondID).Sub(qty)
	if next.IsNegative() {
		return fmt.Errorf("debit %s from %s: %w", qty, userID, common.ErrInsufficientHoldings)
	}
	l.set(key{userID, bondID}, next, time.Now())
	return nil
}

// Transfer moves qty of the bond from seller to buyer as one unit. The
// bond total is conserved: the debit and credit happen under both
// users' locks or not at all.
func (l *Ledger) Transfer(sellerID, buyerID, bondID string, qty decimal.Decimal) error {
	unlock := l.lockUsers(sellerID, buyerID)
	defer unlock()
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.balances[key{sellerID, bondID}].Sub(qty)
	if next.IsNegative() {
		return fmt.Errorf("transfer %s from %s: %w", qty, sellerID, common.ErrInsufficientHoldings)
	}
	now := time.Now()
	l.setLocked(key{sellerID, bondID}, next, now)
	l.setLocked(key{buyerID, bondID}, l.balances[key{buyerID, bondID}].Add(qty), now)
	return nil
}

// Apply folds a set of per-user deltas for one bond into the ledger
// under all affected users' locks. The engine uses it to make a whole
// submission's holdings movement visible at once, after commit.
func (l *Ledger) Apply(bondID string, deltas map[string]decimal.Decimal) {
	users := make([]string, 0, len(deltas))
	for u := range deltas {
		users = append(users, u)
	}
	unlock := l.lockUsers(users...)
	defer unlock()
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	for u, d := range deltas {
		if d.IsZero() {
			continue
		}
		k := key{u, bondID}
		l.setLocked(k, l.balances[k].Add(d), now)
	}
}

// Holdings snapshots every non-zero row, for persistence round-trips
// and invariant checks in tests.
func (l *Ledger) Holdings() []*common.Holding {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*common.Holding, 0, len(l.balances))
	for k, q := range l.balances {
		out = append(out, &common.Holding{
			UserID:      k.userID,
			BondID:      k.bondID,
			Quantity:    q,
			LastUpdated: l.updated[k],
		})
	}
	return out
}

// BondTotal sums all users' balances for one bond. Trades must leave it
// unchanged.
func (l *Ledger) BondTotal(bondID string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := decimal.Zero
	for k, q := range l.balances {
		if k.bondID == bondID {
			total = total.Add(q)
		}
	}
	return total
}
