package prescription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/apperr"
	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/db"
)

// StockAdjuster decrements or restores medicine stock. It is implemented by
// the medicine service and wired in at startup so this package does not
// import the inventory side.
type StockAdjuster interface {
	AdjustStock(ctx context.Context, medicineID uuid.UUID, delta int, reason string) error
}

type Service struct {
	rxs      Repository
	history  HistoryRepository
	tx       db.Transactor
	adjuster StockAdjuster
}

func NewService(rxs Repository, history HistoryRepository, tx db.Transactor) *Service {
	return &Service{rxs: rxs, history: history, tx: tx}
}

// SetStockAdjuster attaches the inventory adjuster used by Dispense.
func (s *Service) SetStockAdjuster(a StockAdjuster) {
	s.adjuster = a
}

// ItemInput is one line of a new prescription.
type ItemInput struct {
	MedicineID   uuid.UUID       `json:"medicine_id"`
	MedicineName string          `json:"medicine_name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
	Dosage       string          `json:"dosage"`
}

// CreateInput is the request to author a new prescription.
type CreateInput struct {
	PatientID       uuid.UUID   `json:"patient_id"`
	DoctorID        uuid.UUID   `json:"doctor_id"`
	MedicalRecordID uuid.UUID   `json:"medical_record_id"`
	Items           []ItemInput `json:"items"`
}

// Create authors a new DRAFT prescription. Each line subtotal is
// unit price x quantity rounded to two decimals; the total is the sum of
// the rounded subtotals.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Prescription, error) {
	if in.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", apperr.ErrInvalidInput)
	}
	if in.DoctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor_id is required", apperr.ErrInvalidInput)
	}
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: prescription needs at least one item", apperr.ErrInvalidInput)
	}

	total := decimal.Zero
	items := make([]*Item, 0, len(in.Items))
	for i, it := range in.Items {
		if it.MedicineID == uuid.Nil {
			return nil, fmt.Errorf("%w: item %d missing medicine_id", apperr.ErrInvalidInput, i)
		}
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d quantity must be positive", apperr.ErrInvalidInput, i)
		}
		if it.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: item %d unit price must not be negative", apperr.ErrInvalidInput, i)
		}
		subtotal := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2)
		total = total.Add(subtotal)
		items = append(items, &Item{
			MedicineID:   it.MedicineID,
			MedicineName: it.MedicineName,
			UnitPrice:    it.UnitPrice,
			Quantity:     it.Quantity,
			Subtotal:     subtotal,
			Dosage:       it.Dosage,
		})
	}

	rx := &Prescription{
		PatientID:       in.PatientID,
		DoctorID:        in.DoctorID,
		MedicalRecordID: in.MedicalRecordID,
		Status:          StatusDraft,
		TotalAmount:     total,
		ItemCount:       len(items),
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.rxs.Create(ctx, rx, items)
	})
	if err != nil {
		return nil, err
	}
	return rx, nil
}

// Transition validates and executes one status edge, guarding against stale
// reads with the persisted status, and appends one immutable history record.
// Edge validity is purely structural; stock and payment preconditions live
// with the callers.
func (s *Service) Transition(ctx context.Context, rxID uuid.UUID, from, to Status, operatorID, operatorName string, reason *string) (*Prescription, error) {
	if !from.Valid() || !to.Valid() {
		return nil, fmt.Errorf("%w: unknown prescription status", apperr.ErrInvalidInput)
	}
	if !CanTransition(from, to) {
		return nil, &apperr.InvalidTransitionError{Entity: "prescription", From: string(from), To: string(to)}
	}

	var updated *Prescription
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		rx, err := s.rxs.GetByID(ctx, rxID)
		if err != nil {
			return err
		}
		if rx.Deleted {
			return fmt.Errorf("%w: prescription %s", apperr.ErrNotFound, rxID)
		}
		if rx.Status != from {
			return &apperr.StatusMismatchError{
				Entity:   "prescription",
				Expected: string(from),
				Actual:   string(rx.Status),
			}
		}

		var dispensedBy *string
		if to == StatusDispensed {
			dispensedBy = &operatorName
		}
		rows, err := s.rxs.UpdateStatus(ctx, rxID, from, to, dispensedBy)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: prescription %s changed concurrently", apperr.ErrConcurrentModification, rxID)
		}

		if err := s.history.Append(ctx, &StatusHistory{
			PrescriptionID: rxID,
			FromStatus:     from,
			ToStatus:       to,
			OperatorID:     operatorID,
			OperatorName:   operatorName,
			Reason:         reason,
		}); err != nil {
			return err
		}

		rx.Status = to
		if dispensedBy != nil {
			now := time.Now()
			rx.DispensedAt = &now
			rx.DispensedBy = dispensedBy
		}
		updated = rx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Issue moves an authored prescription out of DRAFT.
func (s *Service) Issue(ctx context.Context, rxID uuid.UUID, operatorID, operatorName string) (*Prescription, error) {
	return s.Transition(ctx, rxID, StatusDraft, StatusIssued, operatorID, operatorName, nil)
}

// Review approves an issued prescription for billing.
func (s *Service) Review(ctx context.Context, rxID uuid.UUID, operatorID, operatorName string) (*Prescription, error) {
	return s.Transition(ctx, rxID, StatusIssued, StatusReviewed, operatorID, operatorName, nil)
}

// Dispense hands the medicines to the patient. It decrements stock for every
// line and moves PAID -> DISPENSED, all in one transaction; an insufficient
// or contended stock row aborts the whole dispense.
func (s *Service) Dispense(ctx context.Context, rxID uuid.UUID, operatorID, operatorName string) (*Prescription, error) {
	if s.adjuster == nil {
		return nil, fmt.Errorf("%w: no stock adjuster configured", apperr.ErrInfrastructure)
	}

	var updated *Prescription
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		rx, err := s.rxs.GetByID(ctx, rxID)
		if err != nil {
			return err
		}
		if rx.Status != StatusPaid {
			return &apperr.StatusMismatchError{
				Entity:   "prescription",
				Expected: string(StatusPaid),
				Actual:   string(rx.Status),
			}
		}

		items, err := s.rxs.GetItems(ctx, rxID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := s.adjuster.AdjustStock(ctx, it.MedicineID, -it.Quantity, "dispense "+rx.RxNo); err != nil {
				return err
			}
		}

		updated, err = s.Transition(ctx, rxID, StatusPaid, StatusDispensed, operatorID, operatorName, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	rx, err := s.rxs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rx.Deleted {
		return nil, fmt.Errorf("%w: prescription %s", apperr.ErrNotFound, id)
	}
	return rx, nil
}

func (s *Service) Items(ctx context.Context, rxID uuid.UUID) ([]*Item, error) {
	return s.rxs.GetItems(ctx, rxID)
}

func (s *Service) History(ctx context.Context, rxID uuid.UUID) ([]*StatusHistory, error) {
	return s.history.ListByPrescription(ctx, rxID)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return s.rxs.ListByPatient(ctx, patientID, limit, offset)
}
