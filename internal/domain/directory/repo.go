package directory

import (
	"context"

	"github.com/google/uuid"
)

// Repository serves the read-only directory projections. Nothing here
// performs a state transition.
type Repository interface {
	ListDepartments(ctx context.Context) ([]*Department, error)
	ListDoctorsByDepartment(ctx context.Context, departmentID uuid.UUID) ([]*Doctor, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	SearchPatients(ctx context.Context, keyword string, limit, offset int) ([]*Patient, int, error)
}
