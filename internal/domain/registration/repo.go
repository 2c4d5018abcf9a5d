package registration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists registrations.
type Repository interface {
	Create(ctx context.Context, r *Registration) error
	GetByID(ctx context.Context, id uuid.UUID) (*Registration, error)
	// UpdateStatus moves the row from `from` to `to` guarded by the
	// persisted status, returning the number of rows changed. Zero rows
	// means the persisted status no longer matches `from`.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, cancelReason *string) (int64, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Registration, int, error)
	// NextQueueNo returns the next queue number for a department on a
	// visit date.
	NextQueueNo(ctx context.Context, departmentID uuid.UUID, visitDate time.Time) (int, error)
}

// HistoryRepository appends and reads the immutable transition audit trail.
type HistoryRepository interface {
	Append(ctx context.Context, h *StatusHistory) error
	ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]*StatusHistory, error)
}
