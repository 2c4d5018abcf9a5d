package registration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/apperr"
	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/db"
)

// FeeRefunder reverses a paid registration fee. It is implemented by the
// charge orchestrator and wired in at startup, which keeps this package free
// of an import back into the billing side.
type FeeRefunder interface {
	RefundRegistrationFee(ctx context.Context, registrationID uuid.UUID, operatorID, operatorName, reason string) error
}

type Service struct {
	regs     Repository
	history  HistoryRepository
	tx       db.Transactor
	refunder FeeRefunder
}

func NewService(regs Repository, history HistoryRepository, tx db.Transactor) *Service {
	return &Service{regs: regs, history: history, tx: tx}
}

// SetFeeRefunder attaches the charge orchestrator used by Cancel.
func (s *Service) SetFeeRefunder(r FeeRefunder) {
	s.refunder = r
}

// RegisterInput is the request to open a new visit.
type RegisterInput struct {
	PatientID    uuid.UUID       `json:"patient_id"`
	DepartmentID uuid.UUID       `json:"department_id"`
	DoctorID     uuid.UUID       `json:"doctor_id"`
	Fee          decimal.Decimal `json:"fee"`
	VisitDate    time.Time       `json:"visit_date"`
}

// Register creates a new registration in WAITING with the next queue number
// for the department and visit date.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Registration, error) {
	if in.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", apperr.ErrInvalidInput)
	}
	if in.DepartmentID == uuid.Nil {
		return nil, fmt.Errorf("%w: department_id is required", apperr.ErrInvalidInput)
	}
	if in.DoctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor_id is required", apperr.ErrInvalidInput)
	}
	if in.Fee.IsNegative() {
		return nil, fmt.Errorf("%w: fee must not be negative", apperr.ErrInvalidInput)
	}
	if in.VisitDate.IsZero() {
		in.VisitDate = time.Now()
	}

	reg := &Registration{
		PatientID:    in.PatientID,
		DepartmentID: in.DepartmentID,
		DoctorID:     in.DoctorID,
		Status:       StatusWaiting,
		Fee:          in.Fee.Round(2),
		VisitDate:    in.VisitDate,
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		queueNo, err := s.regs.NextQueueNo(ctx, in.DepartmentID, in.VisitDate)
		if err != nil {
			return err
		}
		reg.QueueNo = queueNo
		return s.regs.Create(ctx, reg)
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// Transition validates and executes one status edge, guarding against stale
// reads with the persisted status, and appends one immutable history record.
func (s *Service) Transition(ctx context.Context, regID uuid.UUID, from, to Status, operatorID, operatorName string, reason *string) (*Registration, error) {
	if !from.Valid() || !to.Valid() {
		return nil, fmt.Errorf("%w: unknown registration status", apperr.ErrInvalidInput)
	}
	if !CanTransition(from, to) {
		return nil, &apperr.InvalidTransitionError{Entity: "registration", From: string(from), To: string(to)}
	}

	var updated *Registration
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		reg, err := s.regs.GetByID(ctx, regID)
		if err != nil {
			return err
		}
		if reg.Deleted {
			return fmt.Errorf("%w: registration %s", apperr.ErrNotFound, regID)
		}
		if reg.Status != from {
			return &apperr.StatusMismatchError{
				Entity:   "registration",
				Expected: string(from),
				Actual:   string(reg.Status),
			}
		}

		var cancelReason *string
		if to == StatusCancelled {
			cancelReason = reason
		}
		rows, err := s.regs.UpdateStatus(ctx, regID, from, to, cancelReason)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: registration %s changed concurrently", apperr.ErrConcurrentModification, regID)
		}

		if err := s.history.Append(ctx, &StatusHistory{
			RegistrationID: regID,
			FromStatus:     from,
			ToStatus:       to,
			OperatorID:     operatorID,
			OperatorName:   operatorName,
			Reason:         reason,
		}); err != nil {
			return err
		}

		reg.Status = to
		if cancelReason != nil {
			reg.CancelReason = cancelReason
		}
		updated = reg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Cancel ends a visit before completion. A WAITING registration cancels
// directly. A PAID_REGISTRATION one first refunds its paid fee charge; only
// when the refund succeeds does the status move, and the whole sequence is
// one transaction so a refund failure leaves the status untouched.
func (s *Service) Cancel(ctx context.Context, regID uuid.UUID, operatorID, operatorName, reason string) (*Registration, error) {
	var updated *Registration
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		reg, err := s.regs.GetByID(ctx, regID)
		if err != nil {
			return err
		}
		if reg.Deleted {
			return fmt.Errorf("%w: registration %s", apperr.ErrNotFound, regID)
		}

		switch reg.Status {
		case StatusWaiting:
			// No fee paid yet, cancel directly.
		case StatusPaid:
			if s.refunder == nil {
				return fmt.Errorf("%w: no fee refunder configured", apperr.ErrInfrastructure)
			}
			if err := s.refunder.RefundRegistrationFee(ctx, regID, operatorID, operatorName, reason); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: registration in status %s cannot be cancelled",
				apperr.ErrBusinessRule, reg.Status)
		}

		updated, err = s.Transition(ctx, regID, reg.Status, StatusCancelled, operatorID, operatorName, &reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// StartConsultation moves a registration into the consulting room.
func (s *Service) StartConsultation(ctx context.Context, regID uuid.UUID, operatorID, operatorName string) (*Registration, error) {
	reg, err := s.regs.GetByID(ctx, regID)
	if err != nil {
		return nil, err
	}
	return s.Transition(ctx, regID, reg.Status, StatusInConsultation, operatorID, operatorName, nil)
}

// Complete closes out a consultation.
func (s *Service) Complete(ctx context.Context, regID uuid.UUID, operatorID, operatorName string) (*Registration, error) {
	reg, err := s.regs.GetByID(ctx, regID)
	if err != nil {
		return nil, err
	}
	return s.Transition(ctx, regID, reg.Status, StatusCompleted, operatorID, operatorName, nil)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Registration, error) {
	reg, err := s.regs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.Deleted {
		return nil, fmt.Errorf("%w: registration %s", apperr.ErrNotFound, id)
	}
	return reg, nil
}

func (s *Service) History(ctx context.Context, regID uuid.UUID) ([]*StatusHistory, error) {
	return s.history.ListByRegistration(ctx, regID)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Registration, int, error) {
	return s.regs.ListByPatient(ctx, patientID, limit, offset)
}
