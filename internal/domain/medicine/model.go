package medicine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Medicine is one stocked formulary entry. Stock is guarded by the Version
// counter: every stock write bumps it, and a write carrying a stale version
// touches zero rows.
type Medicine struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	Code      string          `db:"code" json:"code"`
	Name      string          `db:"name" json:"name"`
	Spec      string          `db:"spec" json:"spec"`
	Unit      string          `db:"unit" json:"unit"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Stock     int             `db:"stock" json:"stock"`
	MinStock  int             `db:"min_stock" json:"min_stock"`
	Version   int             `db:"version" json:"version"`
	Deleted   bool            `db:"deleted" json:"-"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// StockMovement is one append-only inventory adjustment record.
type StockMovement struct {
	ID         uuid.UUID `db:"id" json:"id"`
	MedicineID uuid.UUID `db:"medicine_id" json:"medicine_id"`
	Delta      int       `db:"delta" json:"delta"`
	StockAfter int       `db:"stock_after" json:"stock_after"`
	Reason     string    `db:"reason" json:"reason"`
	OperatorID string    `db:"operator_id" json:"operator_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
