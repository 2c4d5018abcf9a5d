package registration

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a registration.
type Status string

const (
	StatusWaiting        Status = "WAITING"
	StatusPaid           Status = "PAID_REGISTRATION"
	StatusInConsultation Status = "IN_CONSULTATION"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
	StatusRefunded       Status = "REFUNDED"
)

// Valid reports whether s is a known registration status.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusPaid, StatusInConsultation,
		StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Terminal reports whether s has no outgoing edges.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRefunded
}

// Registration is one patient visit attempt. Rows are never physically
// deleted; the Deleted flag marks logical removal, orthogonal to Status.
type Registration struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	RegNo        string          `db:"reg_no" json:"reg_no"`
	PatientID    uuid.UUID       `db:"patient_id" json:"patient_id"`
	DepartmentID uuid.UUID       `db:"department_id" json:"department_id"`
	DoctorID     uuid.UUID       `db:"doctor_id" json:"doctor_id"`
	Status       Status          `db:"status" json:"status"`
	Fee          decimal.Decimal `db:"fee" json:"fee"`
	VisitDate    time.Time       `db:"visit_date" json:"visit_date"`
	QueueNo      int             `db:"queue_no" json:"queue_no"`
	CancelReason *string         `db:"cancel_reason" json:"cancel_reason,omitempty"`
	Deleted      bool            `db:"deleted" json:"deleted"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// StatusHistory is one immutable audit record per successful transition.
// History rows are append-only and never edited or deleted.
type StatusHistory struct {
	ID             uuid.UUID `db:"id" json:"id"`
	RegistrationID uuid.UUID `db:"registration_id" json:"registration_id"`
	FromStatus     Status    `db:"from_status" json:"from_status"`
	ToStatus       Status    `db:"to_status" json:"to_status"`
	OperatorID     string    `db:"operator_id" json:"operator_id"`
	OperatorName   string    `db:"operator_name" json:"operator_name"`
	Reason         *string   `db:"reason" json:"reason,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
