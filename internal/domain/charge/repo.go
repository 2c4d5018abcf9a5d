package charge

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository persists charges and their details.
type Repository interface {
	// Create inserts the charge and all of its details together.
	Create(ctx context.Context, c *Charge, details []*Detail) error
	GetByID(ctx context.Context, id uuid.UUID) (*Charge, error)
	GetDetails(ctx context.Context, chargeID uuid.UUID) ([]*Detail, error)
	// GetByTransactionNo looks a charge up by its idempotency key.
	GetByTransactionNo(ctx context.Context, transactionNo string) (*Charge, error)
	// ExistsActiveRegistrationFee reports whether an UNPAID or PAID
	// registration-fee charge already covers the registration.
	ExistsActiveRegistrationFee(ctx context.Context, registrationID uuid.UUID) (bool, error)
	// ExistsActiveForPrescription is the same check per prescription.
	ExistsActiveForPrescription(ctx context.Context, prescriptionID uuid.UUID) (bool, error)
	// FindPaidRegistrationFee returns the PAID registration-fee charge for
	// the registration, or ErrNotFound.
	FindPaidRegistrationFee(ctx context.Context, registrationID uuid.UUID) (*Charge, error)
	// MarkPaid moves an UNPAID charge to PAID, recording method,
	// transaction number, actual amount, and charge time. Zero rows means
	// the charge was not UNPAID anymore.
	MarkPaid(ctx context.Context, id uuid.UUID, method string, transactionNo *string, actualAmount decimal.Decimal) (int64, error)
	// MarkRefunded moves a PAID charge to REFUNDED, recording reason,
	// amount, and refund time. Zero rows means the charge was not PAID.
	MarkRefunded(ctx context.Context, id uuid.UUID, reason string, amount decimal.Decimal) (int64, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Charge, int, error)
	// SettlementSummary aggregates committed charges in [from, to).
	SettlementSummary(ctx context.Context, from, to time.Time) (*Settlement, error)
}
