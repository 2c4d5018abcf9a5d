package medicine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/apperr"
	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/auth"
	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/db"
)

type Service struct {
	meds      Repository
	movements MovementRepository
	tx        db.Transactor
}

func NewService(meds Repository, movements MovementRepository, tx db.Transactor) *Service {
	return &Service{meds: meds, movements: movements, tx: tx}
}

// Create adds a formulary entry.
func (s *Service) Create(ctx context.Context, m *Medicine) error {
	if m.Name == "" {
		return fmt.Errorf("%w: medicine name is required", apperr.ErrInvalidInput)
	}
	if m.Stock < 0 || m.MinStock < 0 {
		return fmt.Errorf("%w: stock counts must not be negative", apperr.ErrInvalidInput)
	}
	if m.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", apperr.ErrInvalidInput)
	}
	return s.meds.Create(ctx, m)
}

// AdjustStock applies one signed stock delta. Negative deltas require
// sufficient stock, checked inside the same transaction as the write.
// A version conflict surfaces as ErrConcurrentModification and is never
// retried here; the caller re-reads and decides.
func (s *Service) AdjustStock(ctx context.Context, medicineID uuid.UUID, delta int, reason string) error {
	if delta == 0 {
		return fmt.Errorf("%w: stock delta must be non-zero", apperr.ErrInvalidInput)
	}

	return s.tx.InTx(ctx, func(ctx context.Context) error {
		m, err := s.meds.GetByID(ctx, medicineID)
		if err != nil {
			return err
		}
		if delta < 0 && m.Stock < -delta {
			return &apperr.InsufficientStockError{
				MedicineID: medicineID.String(),
				Current:    m.Stock,
				Requested:  -delta,
			}
		}

		rows, err := s.meds.AdjustStock(ctx, medicineID, delta, m.Version)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: medicine %s stock changed concurrently", apperr.ErrConcurrentModification, medicineID)
		}

		return s.movements.Append(ctx, &StockMovement{
			MedicineID: medicineID,
			Delta:      delta,
			StockAfter: m.Stock + delta,
			Reason:     reason,
			OperatorID: auth.OperatorIDFromContext(ctx),
		})
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	m, err := s.meds.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Deleted {
		return nil, fmt.Errorf("%w: medicine %s", apperr.ErrNotFound, id)
	}
	return m, nil
}

func (s *Service) Search(ctx context.Context, keyword string, limit, offset int) ([]*Medicine, int, error) {
	return s.meds.Search(ctx, keyword, limit, offset)
}

// ListBelowMinStock lists entries whose stock has fallen under their
// minimum threshold, for restocking review.
func (s *Service) ListBelowMinStock(ctx context.Context) ([]*Medicine, error) {
	return s.meds.ListBelowMinStock(ctx)
}

func (s *Service) Movements(ctx context.Context, medicineID uuid.UUID, limit, offset int) ([]*StockMovement, int, error) {
	return s.movements.ListByMedicine(ctx, medicineID, limit, offset)
}
