package prescription

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists prescriptions and their line items.
type Repository interface {
	// Create inserts the prescription and all of its items together.
	Create(ctx context.Context, p *Prescription, items []*Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	GetItems(ctx context.Context, prescriptionID uuid.UUID) ([]*Item, error)
	// UpdateStatus moves the row from `from` to `to` guarded by the
	// persisted status, returning the number of rows changed. A non-nil
	// dispensedBy also stamps the dispense metadata.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, dispensedBy *string) (int64, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error)
}

// HistoryRepository appends and reads the immutable transition audit trail.
type HistoryRepository interface {
	Append(ctx context.Context, h *StatusHistory) error
	ListByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*StatusHistory, error)
}
