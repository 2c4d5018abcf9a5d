package medicine

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists medicines and their stock counters.
type Repository interface {
	Create(ctx context.Context, m *Medicine) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error)
	// AdjustStock applies delta to the stock counter guarded by the
	// version read by the caller, returning the number of rows changed.
	// Zero rows means a concurrent writer got there first.
	AdjustStock(ctx context.Context, id uuid.UUID, delta, version int) (int64, error)
	Search(ctx context.Context, keyword string, limit, offset int) ([]*Medicine, int, error)
	ListBelowMinStock(ctx context.Context) ([]*Medicine, error)
}

// MovementRepository appends and reads the inventory adjustment log.
type MovementRepository interface {
	Append(ctx context.Context, mv *StockMovement) error
	ListByMedicine(ctx context.Context, medicineID uuid.UUID, limit, offset int) ([]*StockMovement, int, error)
}
