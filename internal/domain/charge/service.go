package charge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Bernardyao/HMS-backend-sub001/internal/domain/prescription"
	"github.com/Bernardyao/HMS-backend-sub001/internal/domain/registration"
	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/apperr"
	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/db"
)

// paymentTolerance is the maximum allowed deviation between a charge's
// total and the paid amount.
var paymentTolerance = decimal.NewFromFloat(0.01)

// StockAdjuster restores dispensed quantities during a refund. Implemented
// by the medicine service.
type StockAdjuster interface {
	AdjustStock(ctx context.Context, medicineID uuid.UUID, delta int, reason string) error
}

// Service is the charge orchestrator. It creates charges from registration
// and prescription fees, captures payment idempotently, and executes refunds
// with their cascading rollbacks, each call inside one transaction.
type Service struct {
	charges Repository
	regs    *registration.Service
	rxs     *prescription.Service
	stock   StockAdjuster
	tx      db.Transactor
}

func NewService(charges Repository, regs *registration.Service, rxs *prescription.Service, stock StockAdjuster, tx db.Transactor) *Service {
	return &Service{charges: charges, regs: regs, rxs: rxs, stock: stock, tx: tx}
}

// Create builds a new UNPAID charge for a registration and, optionally, a
// set of reviewed prescriptions. With prescriptions, an unpaid registration
// fee is folded in automatically (combined billing). Creation never touches
// registration or prescription status.
func (s *Service) Create(ctx context.Context, registrationID uuid.UUID, prescriptionIDs []uuid.UUID) (*Charge, error) {
	var created *Charge
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		reg, err := s.regs.Get(ctx, registrationID)
		if err != nil {
			return err
		}

		var obligations []obligation
		var chargeType ChargeType

		if len(prescriptionIDs) == 0 {
			switch reg.Status {
			case registration.StatusWaiting, registration.StatusPaid:
			default:
				return fmt.Errorf("%w: registration in status %s cannot be charged a registration fee",
					apperr.ErrBusinessRule, reg.Status)
			}
			exists, err := s.charges.ExistsActiveRegistrationFee(ctx, registrationID)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%w: registration fee already charged for %s",
					apperr.ErrBusinessRule, registrationID)
			}
			obligations = append(obligations, registrationFee{RegistrationID: registrationID, Amount: reg.Fee})
			chargeType = TypeRegistrationOnly
		} else {
			switch reg.Status {
			case registration.StatusWaiting, registration.StatusPaid, registration.StatusCompleted:
			default:
				return fmt.Errorf("%w: registration in status %s cannot be billed for prescriptions",
					apperr.ErrBusinessRule, reg.Status)
			}

			regFeePaid, err := s.charges.ExistsActiveRegistrationFee(ctx, registrationID)
			if err != nil {
				return err
			}
			if !regFeePaid {
				obligations = append(obligations, registrationFee{RegistrationID: registrationID, Amount: reg.Fee})
				chargeType = TypeCombined
			} else {
				chargeType = TypePrescriptionOnly
			}

			for _, rxID := range prescriptionIDs {
				rx, err := s.rxs.Get(ctx, rxID)
				if err != nil {
					return err
				}
				if rx.Status != prescription.StatusReviewed {
					return fmt.Errorf("%w: prescription %s is %s, only REVIEWED prescriptions can be charged",
						apperr.ErrBusinessRule, rxID, rx.Status)
				}
				exists, err := s.charges.ExistsActiveForPrescription(ctx, rxID)
				if err != nil {
					return err
				}
				if exists {
					return fmt.Errorf("%w: prescription %s already has an active charge",
						apperr.ErrBusinessRule, rxID)
				}
				obligations = append(obligations, prescriptionFee{PrescriptionID: rxID, Amount: rx.TotalAmount})
			}
		}

		total := decimal.Zero
		details := make([]*Detail, 0, len(obligations))
		for _, o := range obligations {
			d := o.detail()
			total = total.Add(d.Amount)
			details = append(details, d)
		}

		created = &Charge{
			PatientID:      reg.PatientID,
			RegistrationID: registrationID,
			ChargeType:     chargeType,
			TotalAmount:    total,
			ActualAmount:   total,
			Status:         StatusUnpaid,
		}
		return s.charges.Create(ctx, created, details)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Pay captures payment for an UNPAID charge and drives the dependent entity
// transitions, all in one transaction. A replay carrying a transaction
// number already recorded on a PAID charge returns that charge unchanged;
// the same number on a charge in any other status is an idempotency
// conflict.
func (s *Service) Pay(ctx context.Context, chargeID uuid.UUID, paidAmount decimal.Decimal, method string, transactionNo *string, operatorID, operatorName string) (*Charge, error) {
	if method == "" {
		return nil, fmt.Errorf("%w: payment method is required", apperr.ErrInvalidInput)
	}

	var result *Charge
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if transactionNo != nil {
			existing, err := s.charges.GetByTransactionNo(ctx, *transactionNo)
			switch {
			case err == nil:
				if existing.Status == StatusPaid {
					result = existing
					return nil
				}
				return fmt.Errorf("%w: transaction %s already recorded with status %s",
					apperr.ErrIdempotencyConflict, *transactionNo, existing.Status)
			case errors.Is(err, apperr.ErrNotFound):
				// First submission of this number.
			default:
				return err
			}
		}

		c, err := s.charges.GetByID(ctx, chargeID)
		if err != nil {
			return err
		}
		if c.Status != StatusUnpaid {
			return fmt.Errorf("%w: charge %s is %s, only UNPAID charges can be paid",
				apperr.ErrBusinessRule, chargeID, c.Status)
		}
		if c.TotalAmount.Sub(paidAmount).Abs().GreaterThan(paymentTolerance) {
			return &apperr.AmountMismatchError{
				Expected:  c.TotalAmount,
				Paid:      paidAmount,
				Tolerance: paymentTolerance,
			}
		}

		rows, err := s.charges.MarkPaid(ctx, chargeID, method, transactionNo, paidAmount)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: charge %s changed concurrently", apperr.ErrConcurrentModification, chargeID)
		}

		details, err := s.charges.GetDetails(ctx, chargeID)
		if err != nil {
			return err
		}
		op := operator{ID: operatorID, Name: operatorName}
		for _, d := range details {
			o, err := obligationFromDetail(d)
			if err != nil {
				return err
			}
			if err := o.onPaid(ctx, s, op); err != nil {
				return err
			}
		}

		now := time.Now()
		c.Status = StatusPaid
		c.PaymentMethod = &method
		c.TransactionNo = transactionNo
		c.ActualAmount = paidAmount
		c.ChargeTime = &now
		result = c
		return nil
	})
	if err != nil {
		// The loser of a concurrent first submission passes the pre-check
		// and then hits the unique index. Once the winner's commit is
		// visible, the same charge recorded PAID under this number is the
		// replay result; any other owner stays a conflict.
		if transactionNo != nil && errors.Is(err, apperr.ErrIdempotencyConflict) {
			existing, lookupErr := s.charges.GetByTransactionNo(ctx, *transactionNo)
			if lookupErr == nil && existing.ID == chargeID && existing.Status == StatusPaid {
				return existing, nil
			}
		}
		return nil, err
	}
	return result, nil
}

// Refund reverses a PAID charge in full and rolls back each obligation: a
// paid-only prescription returns to REVIEWED, a dispensed one becomes
// REFUNDED with its stock restored, and a registration fee is refunded
// without touching the registration. All effects share one transaction.
func (s *Service) Refund(ctx context.Context, chargeID uuid.UUID, reason, operatorID, operatorName string) (*Charge, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: refund reason is required", apperr.ErrInvalidInput)
	}

	var result *Charge
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.charges.GetByID(ctx, chargeID)
		if err != nil {
			return err
		}
		if c.Status != StatusPaid {
			return fmt.Errorf("%w: charge %s is %s, only PAID charges can be refunded",
				apperr.ErrBusinessRule, chargeID, c.Status)
		}

		rows, err := s.charges.MarkRefunded(ctx, chargeID, reason, c.ActualAmount)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: charge %s changed concurrently", apperr.ErrConcurrentModification, chargeID)
		}

		details, err := s.charges.GetDetails(ctx, chargeID)
		if err != nil {
			return err
		}
		op := operator{ID: operatorID, Name: operatorName}
		for _, d := range details {
			o, err := obligationFromDetail(d)
			if err != nil {
				return err
			}
			if err := o.onRefunded(ctx, s, op, reason); err != nil {
				return err
			}
		}

		now := time.Now()
		c.Status = StatusRefunded
		c.RefundReason = &reason
		c.RefundTime = &now
		c.RefundAmount = c.ActualAmount
		result = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RefundRegistrationFee refunds the PAID registration-fee charge for a
// registration. The registration cancel workflow calls this before moving
// the status; a paid registration without a paid charge is data corruption
// and surfaces as InconsistentState.
func (s *Service) RefundRegistrationFee(ctx context.Context, registrationID uuid.UUID, operatorID, operatorName, reason string) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.charges.FindPaidRegistrationFee(ctx, registrationID)
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("%w: registration %s is paid but has no paid fee charge",
				apperr.ErrInconsistentState, registrationID)
		}
		if err != nil {
			return err
		}
		_, err = s.Refund(ctx, c.ID, reason, operatorID, operatorName)
		return err
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Charge, error) {
	return s.charges.GetByID(ctx, id)
}

func (s *Service) Details(ctx context.Context, chargeID uuid.UUID) ([]*Detail, error) {
	return s.charges.GetDetails(ctx, chargeID)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Charge, int, error) {
	return s.charges.ListByPatient(ctx, patientID, limit, offset)
}

// Settlement aggregates committed charges in [from, to).
func (s *Service) Settlement(ctx context.Context, from, to time.Time) (*Settlement, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: settlement window must end after it starts", apperr.ErrInvalidInput)
	}
	return s.charges.SettlementSummary(ctx, from, to)
}
