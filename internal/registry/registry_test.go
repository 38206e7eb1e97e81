package registry

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejuiceB/FractionFi/internal/common"
	"github.com/tejuiceB/FractionFi/internal/store"
)

func TestBondLookup(t *testing.T) {
	st := store.NewMemory()
	st.PutBond(common.Bond{
		ID:         "b1",
		Name:       "Test Bond",
		CouponRate: decimal.RequireFromString("7.25"),
		MinUnit:    decimal.NewFromInt(1),
		Status:     common.BondActive,
	})
	reg := New(st)

	bond, err := reg.Bond(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "Test Bond", bond.Name)
	assert.True(t, bond.CouponRate.Equal(decimal.RequireFromString("7.25")))
	assert.True(t, bond.Tradable())

	_, err = reg.Bond(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrUnknownInstrument)
}

func TestUserLookup(t *testing.T) {
	st := store.NewMemory()
	st.PutUser(common.User{ID: "u1", Name: "Trader", Role: "investor"})
	reg := New(st)

	user, err := reg.User(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Trader", user.Name)
	assert.Equal(t, "investor", user.Role)

	_, err = reg.User(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrUnknownUser)
}

// A second lookup is served from cache: the registry keeps answering
// even when the backing row changes underneath, until invalidated.
func TestReadThroughCache(t *testing.T) {
	st := store.NewMemory()
	st.PutBond(common.Bond{ID: "b1", Status: common.BondActive})
	reg := New(st)

	_, err := reg.Bond(context.Background(), "b1")
	require.NoError(t, err)

	st.PutBond(common.Bond{ID: "b1", Status: common.BondMatured})
	bond, err := reg.Bond(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, common.BondActive, bond.Status, "served from cache")

	reg.Invalidate("b1")
	bond, err = reg.Bond(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, common.BondMatured, bond.Status, "fresh after invalidation")
}
