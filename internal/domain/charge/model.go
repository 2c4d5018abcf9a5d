package charge

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ChargeType says which obligations a charge covers.
type ChargeType string

const (
	TypeRegistrationOnly ChargeType = "REGISTRATION_ONLY"
	TypePrescriptionOnly ChargeType = "PRESCRIPTION_ONLY"
	TypeCombined         ChargeType = "COMBINED"
)

// Status is the charge lifecycle state. UNPAID -> PAID -> REFUNDED, each
// forward step exactly once; there are no other edges.
type Status string

const (
	StatusUnpaid   Status = "UNPAID"
	StatusPaid     Status = "PAID"
	StatusRefunded Status = "REFUNDED"
)

// ItemType tags a charge detail with the kind of obligation it settles.
type ItemType string

const (
	ItemRegistration ItemType = "REGISTRATION"
	ItemPrescription ItemType = "PRESCRIPTION"
)

// Charge is one billing transaction covering one or two obligations.
// TransactionNo is the caller-supplied idempotency key; the storage layer
// enforces its uniqueness so a concurrent duplicate submission fails
// deterministically instead of double-charging.
type Charge struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	ChargeNo       string          `db:"charge_no" json:"charge_no"`
	PatientID      uuid.UUID       `db:"patient_id" json:"patient_id"`
	RegistrationID uuid.UUID       `db:"registration_id" json:"registration_id"`
	ChargeType     ChargeType      `db:"charge_type" json:"charge_type"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	ActualAmount   decimal.Decimal `db:"actual_amount" json:"actual_amount"`
	Status         Status          `db:"status" json:"status"`
	PaymentMethod  *string         `db:"payment_method" json:"payment_method,omitempty"`
	TransactionNo  *string         `db:"transaction_no" json:"transaction_no,omitempty"`
	ChargeTime     *time.Time      `db:"charge_time" json:"charge_time,omitempty"`
	RefundReason   *string         `db:"refund_reason" json:"refund_reason,omitempty"`
	RefundTime     *time.Time      `db:"refund_time" json:"refund_time,omitempty"`
	RefundAmount   decimal.Decimal `db:"refund_amount" json:"refund_amount"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Detail is one line of a charge, settling exactly one obligation. Details
// are written once at charge creation and never mutated; their amounts sum
// to the charge's total by construction.
type Detail struct {
	ID       uuid.UUID       `db:"id" json:"id"`
	ChargeID uuid.UUID       `db:"charge_id" json:"charge_id"`
	ItemType ItemType        `db:"item_type" json:"item_type"`
	ItemID   uuid.UUID       `db:"item_id" json:"item_id"`
	Amount   decimal.Decimal `db:"amount" json:"amount"`
}

// MethodTotal is one payment-method bucket in a settlement summary.
type MethodTotal struct {
	Method string          `db:"method" json:"method"`
	Count  int             `db:"count" json:"count"`
	Amount decimal.Decimal `db:"amount" json:"amount"`
}

// Settlement aggregates committed charges in a time window. Because charge
// status commits atomically with its dependent entity transitions, the
// summary never counts a charge in a transient state.
type Settlement struct {
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	PaidCount      int             `json:"paid_count"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	RefundCount    int             `json:"refund_count"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	ByMethod       []MethodTotal   `json:"by_method"`
}
