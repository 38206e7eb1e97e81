package common

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade records one match between a buy and a sell order on the same
// bond. Trades are immutable once recorded; both orders are referenced
// by ID, never owned.
type Trade struct {
	ID          string          `json:"id" gorm:"primaryKey;type:uuid"`
	BuyOrderID  string          `json:"buy_order_id" gorm:"index;type:uuid"`
	SellOrderID string          `json:"sell_order_id" gorm:"index;type:uuid"`
	BondID      string          `json:"bond_id" gorm:"index;type:uuid"`
	Price       decimal.Decimal `json:"price" gorm:"type:numeric(20,2)"`
	Quantity    decimal.Decimal `json:"quantity" gorm:"type:numeric(20,2)"`
	TxHash      string          `json:"tx_hash,omitempty"`
	ExecutedAt  time.Time       `json:"executed_at"`
}
