package ledger

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejuiceB/FractionFi/internal/common"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreditAndGet(t *testing.T) {
	l := New()
	assert.True(t, l.Get("u1", "b1").IsZero(), "missing rows read zero")

	l.Credit("u1", "b1", dec("100"))
	l.Credit("u1", "b1", dec("50"))
	assert.True(t, l.Get("u1", "b1").Equal(dec("150")))
	assert.True(t, l.Get("u1", "b2").IsZero())
}

func TestDebitRejectsOverdraft(t *testing.T) {
	l := New()
	l.Credit("u1", "b1", dec("30"))

	err := l.Debit("u1", "b1", dec("40"))
	require.ErrorIs(t, err, common.ErrInsufficientHoldings)
	assert.True(t, l.Get("u1", "b1").Equal(dec("30")), "failed debit changes nothing")

	require.NoError(t, l.Debit("u1", "b1", dec("30")))
	assert.True(t, l.Get("u1", "b1").IsZero())
	assert.Empty(t, l.Holdings(), "zero balances are deleted, not kept")
}

func TestTransferConservesUnits(t *testing.T) {
	l := New()
	l.Credit("seller", "b1", dec("100"))

	require.NoError(t, l.Transfer("seller", "buyer", "b1", dec("40")))
	assert.True(t, l.Get("seller", "b1").Equal(dec("60")))
	assert.True(t, l.Get("buyer", "b1").Equal(dec("40")))
	assert.True(t, l.BondTotal("b1").Equal(dec("100")))

	err := l.Transfer("seller", "buyer", "b1", dec("61"))
	require.ErrorIs(t, err, common.ErrInsufficientHoldings)
	assert.True(t, l.BondTotal("b1").Equal(dec("100")))
}

func TestApplyFoldsDeltasAtomically(t *testing.T) {
	l := New()
	l.Credit("a", "b1", dec("100"))

	l.Apply("b1", map[string]decimal.Decimal{
		"a": dec("-100"),
		"b": dec("100"),
		"c": decimal.Zero,
	})
	assert.True(t, l.Get("a", "b1").IsZero())
	assert.True(t, l.Get("b", "b1").Equal(dec("100")))
	assert.Len(t, l.Holdings(), 1, "a's emptied row and c's zero delta leave no rows")
}

func TestLoadReplacesState(t *testing.T) {
	l := New()
	l.Credit("old", "b1", dec("5"))
	l.Load([]*common.Holding{
		{UserID: "u1", BondID: "b1", Quantity: dec("10")},
		{UserID: "u2", BondID: "b1", Quantity: decimal.Zero},
	})
	assert.True(t, l.Get("old", "b1").IsZero())
	assert.True(t, l.Get("u1", "b1").Equal(dec("10")))
	assert.Len(t, l.Holdings(), 1)
}

// Transfers between overlapping user pairs from many goroutines must
// neither deadlock nor create or destroy units.
func TestConcurrentTransfersConserve(t *testing.T) {
	l := New()
	users := []string{"u1", "u2", "u3", "u4"}
	for _, u := range users {
		l.Credit(u, "b1", dec("1000"))
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if i == j {
				continue
			}
			wg.Add(1)
			go func(from, to string) {
				defer wg.Done()
				for k := 0; k < 100; k++ {
					// Overdrafts are fine to hit here; they must just
					// fail cleanly.
					_ = l.Transfer(from, to, "b1", dec("3"))
				}
			}(users[i], users[j])
		}
	}
	wg.Wait()

	assert.True(t, l.BondTotal("b1").Equal(dec("4000")),
		"total units must be conserved, got %s", l.BondTotal("b1"))
	for _, h := range l.Holdings() {
		assert.False(t, h.Quantity.IsNegative())
	}
}
