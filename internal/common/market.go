package common

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bond is a tradable instrument. Lifecycle (draft -> active -> matured)
// is managed externally; the core only checks that a bond is active
// before accepting orders.
type Bond struct {
	ID           string          `json:"id" gorm:"primaryKey;type:uuid"`
	Name         string          `json:"name"`
	ISIN         string          `json:"isin" gorm:"uniqueIndex"`
	CouponRate   decimal.Decimal `json:"coupon_rate" gorm:"type:numeric(20,2)"`
	MaturityDate time.Time       `json:"maturity_date"`
	FaceValue    decimal.Decimal `json:"face_value" gorm:"type:numeric(20,2)"`
	// MinUnit is the smallest tradable increment. Order quantities must
	// be positive multiples of it.
	MinUnit decimal.Decimal `json:"min_unit" gorm:"type:numeric(20,2)"`
	Status  BondStatus      `json:"status"`
}

// Tradable reports whether the bond accepts new orders.
func (b *Bond) Tradable() bool {
	return b.Status == BondActive
}

// User identity is established by an external collaborator; the core
// only needs existence and the wallet identifier it stores opaquely.
type User struct {
	ID            string `json:"id" gorm:"primaryKey;type:uuid"`
	Name          string `json:"name"`
	Email         string `json:"email" gorm:"uniqueIndex"`
	Role          string `json:"role"`
	WalletAddress string `json:"wallet_address,omitempty" gorm:"uniqueIndex"`
}

// Holding is a per-(user, bond) unit balance. Rows with zero quantity
// are deleted rather than kept.
type Holding struct {
	ID          string          `json:"id" gorm:"primaryKey;type:uuid"`
	UserID      string          `json:"user_id" gorm:"index:idx_holdings_user_bond,unique;type:uuid"`
	BondID      string          `json:"bond_id" gorm:"index:idx_holdings_user_bond,unique;type:uuid"`
	Quantity    decimal.Decimal `json:"quantity" gorm:"type:numeric(20,2)"`
	LastUpdated time.Time       `json:"last_updated"`
}
