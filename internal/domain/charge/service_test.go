package charge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Bernardyao/HMS-backend-sub001/internal/domain/prescription"
	"github.com/Bernardyao/HMS-backend-sub001/internal/domain/registration"
	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/apperr"
	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/db"
)

// -- Mock charge repository --

type mockChargeRepo struct {
	charges map[uuid.UUID]*Charge
	details map[uuid.UUID][]*Detail

	// losePayRace makes the next MarkPaid lose the transaction-number
	// unique-index race: the concurrent winner's commit becomes visible and
	// the call fails the way the storage layer reports a duplicate.
	losePayRace bool
}

func newMockChargeRepo() *mockChargeRepo {
	return &mockChargeRepo{
		charges: make(map[uuid.UUID]*Charge),
		details: make(map[uuid.UUID][]*Detail),
	}
}

func (m *mockChargeRepo) Create(_ context.Context, c *Charge, details []*Detail) error {
	c.ID = uuid.New()
	if c.ChargeNo == "" {
		c.ChargeNo = fmt.Sprintf("CHG%s%06d", time.Now().Format("20060102"), len(m.charges)+1)
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = time.Now()
	m.charges[c.ID] = c
	for _, d := range details {
		d.ID = uuid.New()
		d.ChargeID = c.ID
	}
	m.details[c.ID] = details
	return nil
}

func (m *mockChargeRepo) GetByID(_ context.Context, id uuid.UUID) (*Charge, error) {
	c, ok := m.charges[id]
	if !ok {
		return nil, fmt.Errorf("%w: charge", apperr.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *mockChargeRepo) GetDetails(_ context.Context, chargeID uuid.UUID) ([]*Detail, error) {
	return m.details[chargeID], nil
}

func (m *mockChargeRepo) GetByTransactionNo(_ context.Context, txNo string) (*Charge, error) {
	for _, c := range m.charges {
		if c.TransactionNo != nil && *c.TransactionNo == txNo {
			cp := *c
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: charge", apperr.ErrNotFound)
}

func (m *mockChargeRepo) existsActive(itemType ItemType, itemID uuid.UUID) bool {
	for cid, details := range m.details {
		c := m.charges[cid]
		if c.Status != StatusUnpaid && c.Status != StatusPaid {
			continue
		}
		for _, d := range details {
			if d.ItemType == itemType && d.ItemID == itemID {
				return true
			}
		}
	}
	return false
}

func (m *mockChargeRepo) ExistsActiveRegistrationFee(_ context.Context, regID uuid.UUID) (bool, error) {
	return m.existsActive(ItemRegistration, regID), nil
}

func (m *mockChargeRepo) ExistsActiveForPrescription(_ context.Context, rxID uuid.UUID) (bool, error) {
	return m.existsActive(ItemPrescription, rxID), nil
}

func (m *mockChargeRepo) FindPaidRegistrationFee(_ context.Context, regID uuid.UUID) (*Charge, error) {
	for cid, details := range m.details {
		c := m.charges[cid]
		if c.Status != StatusPaid {
			continue
		}
		for _, d := range details {
			if d.ItemType == ItemRegistration && d.ItemID == regID {
				cp := *c
				return &cp, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: charge", apperr.ErrNotFound)
}

func (m *mockChargeRepo) MarkPaid(_ context.Context, id uuid.UUID, method string, txNo *string, actual decimal.Decimal) (int64, error) {
	if m.losePayRace && txNo != nil {
		m.losePayRace = false
		if c, ok := m.charges[id]; ok && c.Status == StatusUnpaid {
			now := time.Now()
			c.Status = StatusPaid
			c.PaymentMethod = &method
			c.TransactionNo = txNo
			c.ActualAmount = actual
			c.ChargeTime = &now
		}
		return 0, fmt.Errorf("%w: transaction number already recorded", apperr.ErrIdempotencyConflict)
	}
	if txNo != nil {
		for cid, c := range m.charges {
			if cid != id && c.TransactionNo != nil && *c.TransactionNo == *txNo {
				return 0, fmt.Errorf("%w: transaction number already recorded", apperr.ErrIdempotencyConflict)
			}
		}
	}
	c, ok := m.charges[id]
	if !ok || c.Status != StatusUnpaid {
		return 0, nil
	}
	now := time.Now()
	c.Status = StatusPaid
	c.PaymentMethod = &method
	c.TransactionNo = txNo
	c.ActualAmount = actual
	c.ChargeTime = &now
	return 1, nil
}

func (m *mockChargeRepo) MarkRefunded(_ context.Context, id uuid.UUID, reason string, amount decimal.Decimal) (int64, error) {
	c, ok := m.charges[id]
	if !ok || c.Status != StatusPaid {
		return 0, nil
	}
	now := time.Now()
	c.Status = StatusRefunded
	c.RefundReason = &reason
	c.RefundAmount = amount
	c.RefundTime = &now
	return 1, nil
}

func (m *mockChargeRepo) ListByPatient(_ context.Context, patientID uuid.UUID, _, _ int) ([]*Charge, int, error) {
	var result []*Charge
	for _, c := range m.charges {
		if c.PatientID == patientID {
			result = append(result, c)
		}
	}
	return result, len(result), nil
}

func (m *mockChargeRepo) SettlementSummary(_ context.Context, from, to time.Time) (*Settlement, error) {
	s := &Settlement{From: from, To: to, PaidAmount: decimal.Zero, RefundedAmount: decimal.Zero}
	for _, c := range m.charges {
		if c.ChargeTime != nil && !c.ChargeTime.Before(from) && c.ChargeTime.Before(to) {
			s.PaidCount++
			s.PaidAmount = s.PaidAmount.Add(c.ActualAmount)
		}
		if c.RefundTime != nil && !c.RefundTime.Before(from) && c.RefundTime.Before(to) {
			s.RefundCount++
			s.RefundedAmount = s.RefundedAmount.Add(c.RefundAmount)
		}
	}
	return s, nil
}

// -- Mock registration repositories --

type mockRegRepo struct {
	regs map[uuid.UUID]*registration.Registration
}

func (m *mockRegRepo) Create(_ context.Context, r *registration.Registration) error {
	r.ID = uuid.New()
	r.RegNo = fmt.Sprintf("REG%06d", len(m.regs)+1)
	m.regs[r.ID] = r
	return nil
}

func (m *mockRegRepo) GetByID(_ context.Context, id uuid.UUID) (*registration.Registration, error) {
	r, ok := m.regs[id]
	if !ok {
		return nil, fmt.Errorf("%w: registration", apperr.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *mockRegRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to registration.Status, cancelReason *string) (int64, error) {
	r, ok := m.regs[id]
	if !ok || r.Status != from {
		return 0, nil
	}
	r.Status = to
	if cancelReason != nil {
		r.CancelReason = cancelReason
	}
	return 1, nil
}

func (m *mockRegRepo) ListByPatient(_ context.Context, _ uuid.UUID, _, _ int) ([]*registration.Registration, int, error) {
	return nil, 0, nil
}

func (m *mockRegRepo) NextQueueNo(_ context.Context, _ uuid.UUID, _ time.Time) (int, error) {
	return len(m.regs) + 1, nil
}

type mockRegHistory struct {
	entries []*registration.StatusHistory
}

func (m *mockRegHistory) Append(_ context.Context, h *registration.StatusHistory) error {
	m.entries = append(m.entries, h)
	return nil
}

func (m *mockRegHistory) ListByRegistration(_ context.Context, _ uuid.UUID) ([]*registration.StatusHistory, error) {
	return m.entries, nil
}

// -- Mock prescription repositories --

type mockRxRepo struct {
	rxs   map[uuid.UUID]*prescription.Prescription
	items map[uuid.UUID][]*prescription.Item
}

func (m *mockRxRepo) Create(_ context.Context, p *prescription.Prescription, items []*prescription.Item) error {
	p.ID = uuid.New()
	p.RxNo = fmt.Sprintf("RX%06d", len(m.rxs)+1)
	m.rxs[p.ID] = p
	m.items[p.ID] = items
	return nil
}

func (m *mockRxRepo) GetByID(_ context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	p, ok := m.rxs[id]
	if !ok {
		return nil, fmt.Errorf("%w: prescription", apperr.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *mockRxRepo) GetItems(_ context.Context, id uuid.UUID) ([]*prescription.Item, error) {
	return m.items[id], nil
}

func (m *mockRxRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to prescription.Status, dispensedBy *string) (int64, error) {
	p, ok := m.rxs[id]
	if !ok || p.Status != from {
		return 0, nil
	}
	p.Status = to
	if dispensedBy != nil {
		now := time.Now()
		p.DispensedBy = dispensedBy
		p.DispensedAt = &now
	}
	return 1, nil
}

func (m *mockRxRepo) ListByPatient(_ context.Context, _ uuid.UUID, _, _ int) ([]*prescription.Prescription, int, error) {
	return nil, 0, nil
}

type mockRxHistory struct {
	entries []*prescription.StatusHistory
}

func (m *mockRxHistory) Append(_ context.Context, h *prescription.StatusHistory) error {
	m.entries = append(m.entries, h)
	return nil
}

func (m *mockRxHistory) ListByPrescription(_ context.Context, _ uuid.UUID) ([]*prescription.StatusHistory, error) {
	return m.entries, nil
}

// -- Fake inventory --

type fakeStock struct {
	stocks map[uuid.UUID]int
}

func (f *fakeStock) AdjustStock(_ context.Context, medicineID uuid.UUID, delta int, _ string) error {
	current := f.stocks[medicineID]
	if delta < 0 && current < -delta {
		return &apperr.InsufficientStockError{MedicineID: medicineID.String(), Current: current, Requested: -delta}
	}
	f.stocks[medicineID] = current + delta
	return nil
}

// -- Harness --

type harness struct {
	chargeSvc  *Service
	chargeRepo *mockChargeRepo
	regSvc     *registration.Service
	regRepo    *mockRegRepo
	regHist    *mockRegHistory
	rxSvc      *prescription.Service
	rxRepo     *mockRxRepo
	stock      *fakeStock
}

func newHarness() *harness {
	regRepo := &mockRegRepo{regs: make(map[uuid.UUID]*registration.Registration)}
	regHist := &mockRegHistory{}
	regSvc := registration.NewService(regRepo, regHist, db.NopTransactor{})

	rxRepo := &mockRxRepo{
		rxs:   make(map[uuid.UUID]*prescription.Prescription),
		items: make(map[uuid.UUID][]*prescription.Item),
	}
	rxSvc := prescription.NewService(rxRepo, &mockRxHistory{}, db.NopTransactor{})

	stock := &fakeStock{stocks: make(map[uuid.UUID]int)}
	rxSvc.SetStockAdjuster(stock)

	chargeRepo := newMockChargeRepo()
	chargeSvc := NewService(chargeRepo, regSvc, rxSvc, stock, db.NopTransactor{})
	regSvc.SetFeeRefunder(chargeSvc)

	return &harness{
		chargeSvc:  chargeSvc,
		chargeRepo: chargeRepo,
		regSvc:     regSvc,
		regRepo:    regRepo,
		regHist:    regHist,
		rxSvc:      rxSvc,
		rxRepo:     rxRepo,
		stock:      stock,
	}
}

func (h *harness) newRegistration(t *testing.T, fee float64) *registration.Registration {
	t.Helper()
	reg, err := h.regSvc.Register(context.Background(), registration.RegisterInput{
		PatientID:    uuid.New(),
		DepartmentID: uuid.New(),
		DoctorID:     uuid.New(),
		Fee:          decimal.NewFromFloat(fee),
		VisitDate:    time.Now(),
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return reg
}

// newReviewedPrescription authors one prescription with a single line and
// walks it to REVIEWED, seeding the given starting stock.
func (h *harness) newReviewedPrescription(t *testing.T, patientID uuid.UUID, unitPrice float64, qty, startingStock int) *prescription.Prescription {
	t.Helper()
	medID := uuid.New()
	h.stock.stocks[medID] = startingStock
	rx, err := h.rxSvc.Create(context.Background(), prescription.CreateInput{
		PatientID:       patientID,
		DoctorID:        uuid.New(),
		MedicalRecordID: uuid.New(),
		Items: []prescription.ItemInput{
			{MedicineID: medID, MedicineName: "Test Med", UnitPrice: decimal.NewFromFloat(unitPrice), Quantity: qty},
		},
	})
	if err != nil {
		t.Fatalf("prescription Create failed: %v", err)
	}
	if _, err := h.rxSvc.Issue(context.Background(), rx.ID, "op-doc", "Dr. Chen"); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := h.rxSvc.Review(context.Background(), rx.ID, "op-ph", "Pharmacist Wu"); err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	return rx
}

func detailSum(details []*Detail) decimal.Decimal {
	sum := decimal.Zero
	for _, d := range details {
		sum = sum.Add(d.Amount)
	}
	return sum
}

// -- Create --

func TestCreateRegistrationOnly(t *testing.T) {
	h := newHarness()
	reg := h.newRegistration(t, 20.00)

	c, err := h.chargeSvc.Create(context.Background(), reg.ID, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if c.ChargeType != TypeRegistrationOnly {
		t.Errorf("charge type = %s, want %s", c.ChargeType, TypeRegistrationOnly)
	}
	if c.Status != StatusUnpaid {
		t.Errorf("status = %s, want %s", c.Status, StatusUnpaid)
	}
	if !c.TotalAmount.Equal(decimal.NewFromFloat(20.00)) {
		t.Errorf("total = %s, want 20.00", c.TotalAmount)
	}
	details := h.chargeRepo.details[c.ID]
	if len(details) != 1 || details[0].ItemType != ItemRegistration {
		t.Fatalf("expected one REGISTRATION detail, got %v", details)
	}
	if !detailSum(details).Equal(c.TotalAmount) {
		t.Error("detail amounts must sum to the charge total")
	}
	// Creation is purely additive.
	if h.regRepo.regs[reg.ID].Status != registration.StatusWaiting {
		t.Error("creating a charge must not touch registration status")
	}
}

func TestCreateCombined(t *testing.T) {
	h := newHarness()
	reg := h.newRegistration(t, 10.00)
	rx := h.newReviewedPrescription(t, reg.PatientID, 10.00, 5, 100)

	c, err := h.chargeSvc.Create(context.Background(), reg.ID, []uuid.UUID{rx.ID})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if c.ChargeType != TypeCombined {
		t.Errorf("charge type = %s, want %s", c.ChargeType, TypeCombined)
	}
	if !c.TotalAmount.Equal(decimal.NewFromFloat(60.00)) {
		t.Errorf("total = %s, want 60.00", c.TotalAmount)
	}
	if len(h.chargeRepo.details[c.ID]) != 2 {
		t.Errorf("details = %d, want 2", len(h.chargeRepo.details[c.ID]))
	}
}

func TestCreatePrescriptionOnlyWhenFeeAlreadyCharged(t *testing.T) {
	h := newHarness()
	reg := h.newRegistration(t, 10.00)
	regCharge, err := h.chargeSvc.Create(context.Background(), reg.ID, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := h.chargeSvc.Pay(context.Background(), regCharge.ID, decimal.NewFromFloat(10.00), "CASH", nil, "op-1", "Cashier"); err != nil {
		t.Fatalf("Pay failed: %v", err)
	}
	rx := h.newReviewedPrescription(t, reg.PatientID, 10.00, 5, 100)

	c, err := h.chargeSvc.Create(context.Background(), reg.ID, []uuid.UUID{rx.ID})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if c.ChargeType != TypePrescriptionOnly {
		t.Errorf("charge type = %s, want %s", c.ChargeType, TypePrescriptionOnly)
	}
	if !c.TotalAmount.Equal(decimal.NewFromFloat(50.00)) {
		t.Errorf("total = %s, want 50.00", c.TotalAmount)
	}
}

func TestCreateRejectsDuplicateRegistrationFee(t *testing.T) {
	h := newHarness()
	reg := h.newRegistration(t, 20.00)
	if _, err := h.chargeSvc.Create(context.Background(), reg.ID, nil); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	before := len(h.chargeRepo.charges)

	_, err := h.chargeSvc.Create(context.Background(), reg.ID, nil)
	if !errors.Is(err, apperr.ErrBusinessRule) {
		t.Errorf("expected ErrBusinessRule, got %v", err)
	}
	if len(h.chargeRepo.charges) != before {
		t.Error("rejected create must not write a charge")
	}
}

func TestCreateRejectsUnreviewedPrescription(t *testing.T) {
	h := newHarness()
	reg := h.newRegistration(t, 10.00)
	rx, err := h.rxSvc.Create(context.Background(), prescription.CreateInput{
		PatientID: reg.PatientID,
		DoctorID:  uuid.New(),
		Items: []prescription.ItemInput{
			{MedicineID: uuid.New(), MedicineName: "x", UnitPrice: decimal.NewFromFloat(1.00), Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("prescription Create failed: %v", err)
	}

	_, err = h.chargeSvc.Create(context.Background(), reg.ID, []uuid.UUID{rx.ID})
	if !errors.Is(err, apperr.ErrBusinessRule) {
		t.Errorf("expected ErrBusinessRule for DRAFT prescription, got %v", err)
	}
}

// -- Pay --

func TestPayRegistrationFee(t *testing.T) {
	h := newHarness()
	reg := h.newRegistration(t, 20.00)
	c, _ := h.chargeSvc.Create(context.Background(), reg.ID, nil)

	paid, err := h.chargeSvc.Pay(context.Background(), c.ID, decimal.NewFromFloat(20.00), "CASH", nil, "op-1", "Cashier")
	if err != nil {
		t.Fatalf("Pay failed: %v", err)
	}
	if paid.Status != StatusPaid {
		t.Errorf("charge status = %s, want %s", paid.Status, StatusPaid)
	}
	if !paid.ActualAmount.Equal(decimal.NewFromFloat(20.00)) {
		t.Errorf("actual amount = %s, want 20.00", paid.ActualAmount)
	}
	if h.regRepo.regs[reg.ID].Status != registration.StatusPaid {
		t.Errorf("registration status = %s, want %s", h.regRepo.regs[reg.ID].Status, registration.StatusPaid)
	}
}

func TestPayCombinedTransitionsBoth(t *testing.T) {
	h := newHarness()
	reg := h.newRegistration(t, 10.00)
	rx := h.newReviewedPrescription(t, reg.PatientID, 10.00, 5, 100)
	c, _ := h.chargeSvc.Create(context.Background(), reg.ID, []uuid.UUID{rx.ID})

	if _, err := h.chargeSvc.Pay(context.Background(), c.ID, decimal.NewFromFloat(60.00), "CARD", nil, "op-1", "Cashier"); err != nil {
		t.Fatalf("Pay failed: %v", err)
	}
	if h.regRepo.regs[reg.ID].Status != registration.StatusPaid {
		t.Errorf("registration status = %s, want %s", h.regRepo.regs[reg.ID].Status, registration.StatusPaid)
	}
	if h.rxRepo.rxs[rx.ID].Status != prescription.StatusPaid {
		t.Errorf("prescription status = %s, want %s", h.rxRepo.rxs[rx.ID].Status, prescription.StatusPaid)
	}
}

func TestPayAmountMismatch(t *testing.T) {
	h := newHarness()
	reg := h.newRegistration(t, 20.00)
	c, _ := h.chargeSvc.Create(context.Background(), reg.ID, nil)

	_, err := h.chargeSvc.Pay(context.Background(), c.ID, decimal.NewFromFloat(19.50), "CASH", nil, "op-1", "Cashier")
	if !errors.Is(err, apperr.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
	if h.chargeRepo.charges[c.ID].Status != StatusUnpaid {
		t.Error("failed payment must leave the charge UNPAID")
	}
	if h.regRepo.regs[reg.ID].Status != registration.StatusWaiting {
		t.Error("failed payment must not touch registration status")
	}
}

func TestPayWithinTolerance(t *testing.T) {
	h := newHarness()
	reg := h.newRegistration(t, 20.00)
	c, _ := h.chargeSvc.Create(context.Background(), reg.ID, nil)

	paid, err := h.chargeSvc.Pay(context.Background(), c.ID, decimal.NewFromFloat(20.01), "CASH", nil, "op-1", "Cashier")
	if err != nil {
		t.Fatalf("Pay within tolerance failed: %v", err)
	}
	if !paid.ActualAmount.Equal(decimal.NewFromFloat(20.01)) {
		t.Errorf("actual amount = %s, want 20.01", paid.ActualAmount)
	}
}

func TestPayIdempotentReplay(t *testing.T) {
	h := newHarness()
	reg := h.newRegistration(t, 20.00)
	c, _ := h.chargeSvc.Create(context.Background(), reg.ID, nil)
	txNo := "TXN-001"

	first, err := h.chargeSvc.Pay(context.Background(), c.ID, decimal.NewFromFloat(20.00), "CASH", &txNo, "op-1", "Cashier")
	if err != nil {
		t.Fatalf("first Pay failed: %v", err)
	}
	historyBefore := len(h.regHist.entries)

	// Replay with the same transaction number, even with a different amount.
	replay, err := h.chargeSvc.Pay(context.Background(), c.ID, decimal.NewFromFloat(99.99), "CARD", &txNo, "op-2", "Other")
	if err != nil {
		t.Fatalf("replay Pay failed: %v", err)
	}
	if replay.ID != first.ID || replay.Status != StatusPaid {
		t.Error("replay must return the existing PAID charge")
	}
	if !replay.ActualAmount.Equal(first.ActualAmount) {
		t.Errorf("replay changed actual amount: %s vs %s", replay.ActualAmount, first.ActualAmount)
	}
	if len(h.regHist.entries) != historyBefore {
		t.Error("replay must not re-execute side effects")
	}
}

func TestPayIdempotencyConflict(t *testing.T) {
	h := newHarness()
	regA := h.newRegistration(t, 20.00)
	cA, _ := h.chargeSvc.Create(context.Background(), regA.ID, nil)
	txNo := "TXN-002"
	if _, err := h.chargeSvc.Pay(context.Background(), cA.ID, decimal.NewFromFloat(20.00), "CASH", &txNo, "op-1", "Cashier"); err != nil {
		t.Fatalf("Pay failed: %v", err)
	}
	if _, err := h.chargeSvc.Refund(context.Background(), cA.ID, "test", "op-1", "Cashier"); err != nil {
		t.Fatalf("Refund failed: %v", err)
	}

	// Same number now points at a REFUNDED charge: conflict, not replay.
	regB := h.newRegistration(t, 20.00)
	cB, _ := h.chargeSvc.Create(context.Background(), regB.ID, nil)
	_, err := h.chargeSvc.Pay(context.Background(), cB.ID, decimal.NewFromFloat(20.00), "CASH", &txNo, "op-1", "Cashier")
	if !errors.Is(err, apperr.ErrIdempotencyConflict) {
		t.Errorf("expected ErrIdempotencyConflict, got %v", err)
	}
}

func TestPayConcurrentSubmissionLoserGetsWinner(t *testing.T) {
	h := newHarness()
	reg := h.newRegistration(t, 20.00)
	c, _ := h.chargeSvc.Create(context.Background(), reg.ID, nil)
	txNo := "TXN-RACE"
	historyBefore := len(h.regHist.entries)

	h.chargeRepo.losePayRace = true
	paid, err := h.chargeSvc.Pay(context.Background(), c.ID, decimal.NewFromFloat(20.00), "CASH", &txNo, "op-1", "Cashier")
	if err != nil {
		t.Fatalf("losing submission should resolve to the winner's charge, got %v", err)
	}
	if paid.ID != c.ID || paid.Status != StatusPaid {
		t.Error("expected the winner's PAID charge back")
	}
	if paid.TransactionNo == nil || *paid.TransactionNo != txNo {
		t.Errorf("expected transaction number %s on the returned charge", txNo)
	}
	if len(h.regHist.entries) != historyBefore {
		t.Error("the losing submission must not re-execute side effects")
	}
}

func TestPayRequiresUnpaid(t *testing.T) {
	h := newHarness()
	reg := h.newRegistration(t, 20.00)
	c, _ := h.chargeSvc.Create(context.Background(), reg.ID, nil)
	if _, err := h.chargeSvc.Pay(context.Background(), c.ID, decimal.NewFromFloat(20.00), "CASH", nil, "op-1", "Cashier"); err != nil {
		t.Fatalf("Pay failed: %v", err)
	}

	_, err := h.chargeSvc.Pay(context.Background(), c.ID, decimal.NewFromFloat(20.00), "CASH", nil, "op-1", "Cashier")
	if !errors.Is(err, apperr.ErrBusinessRule) {
		t.Errorf("expected ErrBusinessRule for second pay, got %v", err)
	}
	if apperr.IsRetryable(err) {
		t.Error("paying an already paid charge is not retryable")
	}
	if apperr.HTTPStatus(err) != 422 {
		t.Errorf("expected 422 for already paid charge, got %d", apperr.HTTPStatus(err))
	}
}

// -- Refund --

func TestRefundPaidPrescriptionRollsBackToReviewed(t *testing.T) {
	h := newHarness()
	reg := h.newRegistration(t, 10.00)
	rx := h.newReviewedPrescription(t, reg.PatientID, 10.00, 5, 100)
	c, _ := h.chargeSvc.Create(context.Background(), reg.ID, []uuid.UUID{rx.ID})
	if _, err := h.chargeSvc.Pay(context.Background(), c.ID, decimal.NewFromFloat(60.00), "CASH", nil, "op-1", "Cashier"); err != nil {
		t.Fatalf("Pay failed: %v", err)
	}
	medID := h.rxRepo.items[rx.ID][0].MedicineID

	refunded, err := h.chargeSvc.Refund(context.Background(), c.ID, "patient request", "op-1", "Cashier")
	if err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	if refunded.Status != StatusRefunded {
		t.Errorf("charge status = %s, want %s", refunded.Status, StatusRefunded)
	}
	if !refunded.RefundAmount.Equal(decimal.NewFromFloat(60.00)) {
		t.Errorf("refund amount = %s, want the full actual amount", refunded.RefundAmount)
	}
	if h.rxRepo.rxs[rx.ID].Status != prescription.StatusReviewed {
		t.Errorf("prescription status = %s, want %s", h.rxRepo.rxs[rx.ID].Status, prescription.StatusReviewed)
	}
	if h.stock.stocks[medID] != 100 {
		t.Errorf("stock = %d, want untouched 100", h.stock.stocks[medID])
	}
	// Registration status is never rolled back by a refund.
	if h.regRepo.regs[reg.ID].Status != registration.StatusPaid {
		t.Errorf("registration status = %s, want %s", h.regRepo.regs[reg.ID].Status, registration.StatusPaid)
	}
}

func TestDispenseThenRefundRestoresStock(t *testing.T) {
	h := newHarness()
	reg := h.newRegistration(t, 10.00)
	rx := h.newReviewedPrescription(t, reg.PatientID, 10.00, 5, 100)
	medID := h.rxRepo.items[rx.ID][0].MedicineID

	c, _ := h.chargeSvc.Create(context.Background(), reg.ID, []uuid.UUID{rx.ID})
	if _, err := h.chargeSvc.Pay(context.Background(), c.ID, decimal.NewFromFloat(60.00), "CASH", nil, "op-1", "Cashier"); err != nil {
		t.Fatalf("Pay failed: %v", err)
	}
	if _, err := h.rxSvc.Dispense(context.Background(), rx.ID, "op-ph", "Pharmacist Wu"); err != nil {
		t.Fatalf("Dispense failed: %v", err)
	}
	if h.stock.stocks[medID] != 95 {
		t.Fatalf("stock after dispense = %d, want 95", h.stock.stocks[medID])
	}

	if _, err := h.chargeSvc.Refund(context.Background(), c.ID, "adverse reaction", "op-1", "Cashier"); err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	if h.stock.stocks[medID] != 100 {
		t.Errorf("stock after refund = %d, want 100", h.stock.stocks[medID])
	}
	if h.rxRepo.rxs[rx.ID].Status != prescription.StatusRefunded {
		t.Errorf("prescription status = %s, want %s", h.rxRepo.rxs[rx.ID].Status, prescription.StatusRefunded)
	}
}

func TestRefundRequiresPaid(t *testing.T) {
	h := newHarness()
	reg := h.newRegistration(t, 20.00)
	c, _ := h.chargeSvc.Create(context.Background(), reg.ID, nil)

	_, err := h.chargeSvc.Refund(context.Background(), c.ID, "reason", "op-1", "Cashier")
	if !errors.Is(err, apperr.ErrBusinessRule) {
		t.Errorf("expected ErrBusinessRule for unpaid refund, got %v", err)
	}
}

// -- Cancellation protocol --

func TestCancelPaidRegistrationRefundsCharge(t *testing.T) {
	h := newHarness()
	reg := h.newRegistration(t, 20.00)
	c, _ := h.chargeSvc.Create(context.Background(), reg.ID, nil)
	if _, err := h.chargeSvc.Pay(context.Background(), c.ID, decimal.NewFromFloat(20.00), "CASH", nil, "op-1", "Cashier"); err != nil {
		t.Fatalf("Pay failed: %v", err)
	}

	if _, err := h.regSvc.Cancel(context.Background(), reg.ID, "op-1", "Front Desk", "patient left"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if h.regRepo.regs[reg.ID].Status != registration.StatusCancelled {
		t.Errorf("registration status = %s, want %s", h.regRepo.regs[reg.ID].Status, registration.StatusCancelled)
	}
	if h.chargeRepo.charges[c.ID].Status != StatusRefunded {
		t.Errorf("charge status = %s, want %s", h.chargeRepo.charges[c.ID].Status, StatusRefunded)
	}
}

func TestCancelPaidWithoutChargeIsInconsistent(t *testing.T) {
	h := newHarness()
	reg := h.newRegistration(t, 20.00)
	// Force PAID_REGISTRATION without any charge behind it.
	h.regRepo.regs[reg.ID].Status = registration.StatusPaid

	_, err := h.regSvc.Cancel(context.Background(), reg.ID, "op-1", "Front Desk", "x")
	if !errors.Is(err, apperr.ErrInconsistentState) {
		t.Errorf("expected ErrInconsistentState, got %v", err)
	}
	if h.regRepo.regs[reg.ID].Status != registration.StatusPaid {
		t.Error("failed cancel must leave registration status untouched")
	}
}

// -- Settlement --

func TestSettlementWindow(t *testing.T) {
	h := newHarness()
	reg := h.newRegistration(t, 20.00)
	c, _ := h.chargeSvc.Create(context.Background(), reg.ID, nil)
	if _, err := h.chargeSvc.Pay(context.Background(), c.ID, decimal.NewFromFloat(20.00), "CASH", nil, "op-1", "Cashier"); err != nil {
		t.Fatalf("Pay failed: %v", err)
	}

	from := time.Now().Add(-time.Hour)
	to := time.Now().Add(time.Hour)
	s, err := h.chargeSvc.Settlement(context.Background(), from, to)
	if err != nil {
		t.Fatalf("Settlement failed: %v", err)
	}
	if s.PaidCount != 1 || !s.PaidAmount.Equal(decimal.NewFromFloat(20.00)) {
		t.Errorf("paid count=%d amount=%s, want 1 and 20.00", s.PaidCount, s.PaidAmount)
	}
	if s.RefundCount != 0 {
		t.Errorf("refund count = %d, want 0", s.RefundCount)
	}
}

func TestSettlementRejectsInvertedWindow(t *testing.T) {
	h := newHarness()
	now := time.Now()

	_, err := h.chargeSvc.Settlement(context.Background(), now, now.Add(-time.Hour))
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
