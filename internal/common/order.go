package common

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Order is a buy or sell instruction against one bond. While resting it
// is owned by that bond's book; trades reference it by ID only.
type Order struct {
	ID       string          `json:"id" gorm:"primaryKey;type:uuid"`
	UserID   string          `json:"user_id" gorm:"index;type:uuid"`
	BondID   string          `json:"bond_id" gorm:"index;type:uuid"`
	Side     Side            `json:"side" gorm:"index"`
	Type     OrderType       `json:"type"`
	Price    decimal.Decimal `json:"price" gorm:"type:numeric(20,2)"`
	Quantity decimal.Decimal `json:"quantity" gorm:"type:numeric(20,2)"`
	Filled   decimal.Decimal `json:"filled_quantity" gorm:"type:numeric(20,2)"`
	Status   OrderStatus     `json:"status" gorm:"index"`
	TxHash   string          `json:"tx_hash,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Seq is the book insertion counter used for time priority. It is
	// assigned when the order enters a book and rebuilt on restart, so
	// it is never persisted.
	Seq uint64 `json:"-" gorm:"-"`
}

// Remaining is the unmatched quantity still eligible to trade.
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.Filled)
}

// ApplyFill adds qty to the filled quantity and rolls the status
// forward. Quantity itself is immutable after submission.
func (o *Order) ApplyFill(qty decimal.Decimal, at time.Time) {
	o.Filled = o.Filled.Add(qty)
	if o.Filled.GreaterThanOrEqual(o.Quantity) {
		o.Status = OrderFilled
	} else {
		o.Status = OrderPartial
	}
	o.UpdatedAt = at
}

func (o *Order) String() string {
	return fmt.Sprintf("%s %s %s %s@%s filled=%s status=%s",
		o.ID, o.Side, o.Type, o.Quantity, o.Price, o.Filled, o.Status)
}
