package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tejuiceB/FractionFi/internal/common"
)

// Memory keeps everything in process. It backs the server when no
// database DSN is configured and every test that exercises the engine's
// transactional path. All operations copy values in and out so callers
// never alias store state.
type Memory struct {
	mu       sync.Mutex
	orders   map[string]common.Order
	trades   map[string]common.Trade
	holdings map[holdingKey]common.Holding
	bonds    map[string]common.Bond
	users    map[string]common.User

	// commitErr, when set, fails the next Commit. Used to exercise the
	// rollback path.
	commitErr error
}

type holdingKey struct {
	userID string
	bondID string
}

func NewMemory() *Memory {
	return &Memory{
		orders:   make(map[string]common.Order),
		trades:   make(map[string]common.Trade),
		holdings: make(map[holdingKey]common.Holding),
		bonds:    make(map[string]common.Bond),
		users:    make(map[string]common.User),
	}
}

// PutBond and PutUser install registry rows. Instrument and user
// lifecycle is managed outside the core; these are its stand-in.
func (m *Memory) PutBond(b common.Bond) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bonds[b.ID] = b
}

func (m *Memory) PutUser(u common.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// PutHolding installs a holding row directly, as issuance would.
func (m *Memory) PutHolding(h common.Holding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h.ID == "" {
		h.ID = common.NewID()
	}
	m.holdings[holdingKey{h.UserID, h.BondID}] = h
}

// FailNextCommit makes the next Commit fail after discarding the
// transaction's effects. err is returned as is when it already is
// ErrConflict or ErrPersistenceFailure; any other err is wrapped as
// ErrPersistenceFailure.
func (m *Memory) FailNextCommit(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitErr = err
}

func (m *Memory) Begin(ctx context.Context) (Tx, error) {
	return &memTx{store: m}, nil
}

func (m *Memory) OpenOrders(ctx context.Context) ([]*common.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*common.Order, 0)
	for _, o := range m.orders {
		if o.Status == common.OrderOpen || o.Status == common.OrderPartial {
			cp := o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) Holdings(ctx context.Context) ([]*common.Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*common.Holding, 0, len(m.holdings))
	for _, h := range m.holdings {
		cp := h
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) Bond(ctx context.Context, id string) (*common.Bond, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bonds[id]; ok {
		cp := b
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) User(ctx context.Context, id string) (*common.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := u
		return &cp, nil
	}
	return nil, nil
}

// Trades returns every recorded trade, for tests.
func (m *Memory) Trades() []common.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]common.Trade, 0, len(m.trades))
	for _, t := range m.trades {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutedAt.Before(out[j].ExecutedAt) })
	return out
}

// Order returns a copy of the stored order row, for tests.
func (m *Memory) Order(id string) (common.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	return o, ok
}

// Holding returns a copy of the stored holding row, for tests.
func (m *Memory) Holding(userID, bondID string) (common.Holding, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holdings[holdingKey{userID, bondID}]
	return h, ok
}

// memTx stages mutations and applies them under the store lock on
// Commit, so a rolled-back transaction leaves no trace.
type memTx struct {
	store *Memory
	ops   []func(m *Memory)
	done  bool
}

func (t *memTx) InsertOrder(o *common.Order) error {
	cp := *o
	t.ops = append(t.ops, func(m *Memory) { m.orders[cp.ID] = cp })
	return nil
}

func (t *memTx) UpdateOrderFillAndStatus(o *common.Order) error {
	cp := *o
	t.ops = append(t.ops, func(m *Memory) {
		row, ok := m.orders[cp.ID]
		if !ok {
			return
		}
		row.Filled = cp.Filled
		row.Status = cp.Status
		row.UpdatedAt = cp.UpdatedAt
		m.orders[cp.ID] = row
	})
	return nil
}

func (t *memTx) InsertTrade(tr *common.Trade) error {
	cp := *tr
	t.ops = append(t.ops, func(m *Memory) { m.trades[cp.ID] = cp })
	return nil
}

func (t *memTx) UpsertHolding(h *common.Holding) error {
	cp := *h
	if cp.ID == "" {
		cp.ID = common.NewID()
	}
	if cp.LastUpdated.IsZero() {
		cp.LastUpdated = time.Now()
	}
	t.ops = append(t.ops, func(m *Memory) {
		k := holdingKey{cp.UserID, cp.BondID}
		if row, ok := m.holdings[k]; ok {
			row.Quantity = cp.Quantity
			row.LastUpdated = cp.LastUpdated
			m.holdings[k] = row
			return
		}
		m.holdings[k] = cp
	})
	return nil
}

func (t *memTx) DeleteHolding(userID, bondID string) error {
	t.ops = append(t.ops, func(m *Memory) {
		delete(m.holdings, holdingKey{userID, bondID})
	})
	return nil
}

func (t *memTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if err := t.store.commitErr; err != nil {
		t.store.commitErr = nil
		t.ops = nil
		if errors.Is(err, common.ErrConflict) || errors.Is(err, common.ErrPersistenceFailure) {
			return err
		}
		return fmt.Errorf("%v: %w", err, common.ErrPersistenceFailure)
	}
	for _, op := range t.ops {
		op(t.store)
	}
	t.ops = nil
	return nil
}

func (t *memTx) Rollback() error {
	t.done = true
	t.ops = nil
	return nil
}
