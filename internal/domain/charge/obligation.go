package charge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Bernardyao/HMS-backend-sub001/internal/domain/prescription"
	"github.com/Bernardyao/HMS-backend-sub001/internal/domain/registration"
	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/apperr"
)

// operator identifies who executed a payment or refund, threaded into the
// status history of the entities a charge drives.
type operator struct {
	ID   string
	Name string
}

// obligation is one billable item a charge settles. Each variant knows its
// own detail row and which entity transition a payment or refund triggers,
// so the dispatch in Pay and Refund is exhaustive over the variants rather
// than a string switch.
type obligation interface {
	detail() *Detail
	// onPaid drives the owning entity's post-payment transition.
	onPaid(ctx context.Context, s *Service, op operator) error
	// onRefunded drives the owning entity's refund rollback.
	onRefunded(ctx context.Context, s *Service, op operator, reason string) error
}

// registrationFee settles a visit's registration fee.
type registrationFee struct {
	RegistrationID uuid.UUID
	Amount         decimal.Decimal
}

func (o registrationFee) detail() *Detail {
	return &Detail{ItemType: ItemRegistration, ItemID: o.RegistrationID, Amount: o.Amount}
}

// onPaid moves a WAITING registration to PAID_REGISTRATION. A registration
// already past WAITING is left alone: in combined billing the fee may have
// been paid by an earlier charge.
func (o registrationFee) onPaid(ctx context.Context, s *Service, op operator) error {
	reg, err := s.regs.Get(ctx, o.RegistrationID)
	if err != nil {
		return err
	}
	if reg.Status != registration.StatusWaiting {
		return nil
	}
	_, err = s.regs.Transition(ctx, o.RegistrationID,
		registration.StatusWaiting, registration.StatusPaid, op.ID, op.Name, nil)
	return err
}

// onRefunded is a no-op: the visit remains valid once registered, so a fee
// refund never rolls the registration status back.
func (o registrationFee) onRefunded(context.Context, *Service, operator, string) error {
	return nil
}

// prescriptionFee settles a prescription's medicine total.
type prescriptionFee struct {
	PrescriptionID uuid.UUID
	Amount         decimal.Decimal
}

func (o prescriptionFee) detail() *Detail {
	return &Detail{ItemType: ItemPrescription, ItemID: o.PrescriptionID, Amount: o.Amount}
}

func (o prescriptionFee) onPaid(ctx context.Context, s *Service, op operator) error {
	rx, err := s.rxs.Get(ctx, o.PrescriptionID)
	if err != nil {
		return err
	}
	if rx.Status != prescription.StatusReviewed {
		return nil
	}
	_, err = s.rxs.Transition(ctx, o.PrescriptionID,
		prescription.StatusReviewed, prescription.StatusPaid, op.ID, op.Name, nil)
	return err
}

// onRefunded reverses the fee. A PAID prescription rolls back to REVIEWED
// (re-payable); a DISPENSED one becomes REFUNDED and every dispensed line's
// quantity is restored to stock. Both effects commit together with the
// charge's own status change or not at all.
func (o prescriptionFee) onRefunded(ctx context.Context, s *Service, op operator, reason string) error {
	rx, err := s.rxs.Get(ctx, o.PrescriptionID)
	if err != nil {
		return err
	}
	switch rx.Status {
	case prescription.StatusPaid:
		_, err = s.rxs.Transition(ctx, o.PrescriptionID,
			prescription.StatusPaid, prescription.StatusReviewed, op.ID, op.Name, &reason)
		return err
	case prescription.StatusDispensed:
		items, err := s.rxs.Items(ctx, o.PrescriptionID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := s.stock.AdjustStock(ctx, it.MedicineID, it.Quantity, "refund "+rx.RxNo); err != nil {
				return err
			}
		}
		_, err = s.rxs.Transition(ctx, o.PrescriptionID,
			prescription.StatusDispensed, prescription.StatusRefunded, op.ID, op.Name, &reason)
		return err
	default:
		return fmt.Errorf("%w: prescription %s is %s during refund",
			apperr.ErrInconsistentState, o.PrescriptionID, rx.Status)
	}
}

// obligationFromDetail reconstructs the variant from a stored detail row.
func obligationFromDetail(d *Detail) (obligation, error) {
	switch d.ItemType {
	case ItemRegistration:
		return registrationFee{RegistrationID: d.ItemID, Amount: d.Amount}, nil
	case ItemPrescription:
		return prescriptionFee{PrescriptionID: d.ItemID, Amount: d.Amount}, nil
	default:
		return nil, fmt.Errorf("%w: unknown charge item type %q", apperr.ErrInconsistentState, d.ItemType)
	}
}
