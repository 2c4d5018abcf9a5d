package prescription

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the prescription lifecycle state.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusIssued    Status = "ISSUED"
	StatusReviewed  Status = "REVIEWED"
	StatusPaid      Status = "PAID"
	StatusDispensed Status = "DISPENSED"
	StatusRefunded  Status = "REFUNDED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusIssued, StatusReviewed, StatusPaid, StatusDispensed, StatusRefunded:
		return true
	}
	return false
}

// Terminal reports whether the status has no outgoing edges.
func (s Status) Terminal() bool {
	return s == StatusRefunded
}

// Prescription is one doctor order with immutable line items. TotalAmount is
// the sum of line subtotals, each rounded to two decimals before summation.
type Prescription struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	RxNo            string          `db:"rx_no" json:"rx_no"`
	PatientID       uuid.UUID       `db:"patient_id" json:"patient_id"`
	DoctorID        uuid.UUID       `db:"doctor_id" json:"doctor_id"`
	MedicalRecordID uuid.UUID       `db:"medical_record_id" json:"medical_record_id"`
	Status          Status          `db:"status" json:"status"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	ItemCount       int             `db:"item_count" json:"item_count"`
	DispensedAt     *time.Time      `db:"dispensed_at" json:"dispensed_at,omitempty"`
	DispensedBy     *string         `db:"dispensed_by" json:"dispensed_by,omitempty"`
	Deleted         bool            `db:"deleted" json:"-"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Item is one prescription line. Lines are write-once: after the
// prescription is saved they are never edited.
type Item struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	PrescriptionID uuid.UUID       `db:"prescription_id" json:"prescription_id"`
	MedicineID     uuid.UUID       `db:"medicine_id" json:"medicine_id"`
	MedicineName   string          `db:"medicine_name" json:"medicine_name"`
	UnitPrice      decimal.Decimal `db:"unit_price" json:"unit_price"`
	Quantity       int             `db:"quantity" json:"quantity"`
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	Dosage         string          `db:"dosage" json:"dosage,omitempty"`
}

// StatusHistory is one append-only transition record.
type StatusHistory struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PrescriptionID uuid.UUID `db:"prescription_id" json:"prescription_id"`
	FromStatus     Status    `db:"from_status" json:"from_status"`
	ToStatus       Status    `db:"to_status" json:"to_status"`
	OperatorID     string    `db:"operator_id" json:"operator_id"`
	OperatorName   string    `db:"operator_name" json:"operator_name"`
	Reason         *string   `db:"reason" json:"reason,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
