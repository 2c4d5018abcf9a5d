package charge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/apperr"
	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const chargeCols = `id, charge_no, patient_id, registration_id, charge_type,
	total_amount, actual_amount, status, payment_method, transaction_no,
	charge_time, refund_reason, refund_time, refund_amount, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Charge, error) {
	var c Charge
	err := row.Scan(&c.ID, &c.ChargeNo, &c.PatientID, &c.RegistrationID, &c.ChargeType,
		&c.TotalAmount, &c.ActualAmount, &c.Status, &c.PaymentMethod, &c.TransactionNo,
		&c.ChargeTime, &c.RefundReason, &c.RefundTime, &c.RefundAmount, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: charge", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan charge: %v", apperr.ErrInfrastructure, err)
	}
	return &c, nil
}

func (r *repoPG) Create(ctx context.Context, c *Charge, details []*Detail) error {
	conn := r.conn(ctx)
	c.ID = uuid.New()
	if c.ChargeNo == "" {
		chargeNo, err := db.NextBusinessID(ctx, conn, "CHG", "charge_no_seq")
		if err != nil {
			return err
		}
		c.ChargeNo = chargeNo
	}
	_, err := conn.Exec(ctx, `
		INSERT INTO charges (id, charge_no, patient_id, registration_id, charge_type,
			total_amount, actual_amount, status, refund_amount)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0)`,
		c.ID, c.ChargeNo, c.PatientID, c.RegistrationID, c.ChargeType,
		c.TotalAmount, c.ActualAmount, c.Status)
	if err != nil {
		return fmt.Errorf("%w: insert charge: %v", apperr.ErrInfrastructure, err)
	}
	for _, d := range details {
		d.ID = uuid.New()
		d.ChargeID = c.ID
		_, err := conn.Exec(ctx, `
			INSERT INTO charge_details (id, charge_id, item_type, item_id, amount)
			VALUES ($1,$2,$3,$4,$5)`,
			d.ID, d.ChargeID, d.ItemType, d.ItemID, d.Amount)
		if err != nil {
			return fmt.Errorf("%w: insert charge detail: %v", apperr.ErrInfrastructure, err)
		}
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Charge, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+chargeCols+` FROM charges WHERE id = $1`, id))
}

func (r *repoPG) GetDetails(ctx context.Context, chargeID uuid.UUID) ([]*Detail, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, charge_id, item_type, item_id, amount
		FROM charge_details
		WHERE charge_id = $1
		ORDER BY item_type ASC`, chargeID)
	if err != nil {
		return nil, fmt.Errorf("%w: list charge details: %v", apperr.ErrInfrastructure, err)
	}
	defer rows.Close()
	var details []*Detail
	for rows.Next() {
		var d Detail
		if err := rows.Scan(&d.ID, &d.ChargeID, &d.ItemType, &d.ItemID, &d.Amount); err != nil {
			return nil, fmt.Errorf("%w: scan charge detail: %v", apperr.ErrInfrastructure, err)
		}
		details = append(details, &d)
	}
	return details, nil
}

func (r *repoPG) GetByTransactionNo(ctx context.Context, transactionNo string) (*Charge, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+chargeCols+` FROM charges WHERE transaction_no = $1`, transactionNo))
}

func (r *repoPG) ExistsActiveRegistrationFee(ctx context.Context, registrationID uuid.UUID) (bool, error) {
	return r.existsActive(ctx, ItemRegistration, registrationID)
}

func (r *repoPG) ExistsActiveForPrescription(ctx context.Context, prescriptionID uuid.UUID) (bool, error) {
	return r.existsActive(ctx, ItemPrescription, prescriptionID)
}

func (r *repoPG) existsActive(ctx context.Context, itemType ItemType, itemID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM charges c
			JOIN charge_details d ON d.charge_id = c.id
			WHERE d.item_type = $1 AND d.item_id = $2
			  AND c.status IN ('UNPAID', 'PAID')
		)`, itemType, itemID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: active charge existence check: %v", apperr.ErrInfrastructure, err)
	}
	return exists, nil
}

func (r *repoPG) FindPaidRegistrationFee(ctx context.Context, registrationID uuid.UUID) (*Charge, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `
		SELECT `+chargeColsPrefixed+` FROM charges c
		JOIN charge_details d ON d.charge_id = c.id
		WHERE d.item_type = 'REGISTRATION' AND d.item_id = $1 AND c.status = 'PAID'
		ORDER BY c.created_at DESC
		LIMIT 1`, registrationID))
}

const chargeColsPrefixed = `c.id, c.charge_no, c.patient_id, c.registration_id, c.charge_type,
	c.total_amount, c.actual_amount, c.status, c.payment_method, c.transaction_no,
	c.charge_time, c.refund_reason, c.refund_time, c.refund_amount, c.created_at, c.updated_at`

func (r *repoPG) MarkPaid(ctx context.Context, id uuid.UUID, method string, transactionNo *string, actualAmount decimal.Decimal) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE charges
		SET status = 'PAID', payment_method = $2, transaction_no = $3,
		    actual_amount = $4, charge_time = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'UNPAID'`,
		id, method, transactionNo, actualAmount)
	if err != nil {
		// The partial unique index on transaction_no turns a concurrent
		// duplicate submission into a deterministic failure here.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: transaction number already recorded", apperr.ErrIdempotencyConflict)
		}
		return 0, fmt.Errorf("%w: mark charge paid: %v", apperr.ErrInfrastructure, err)
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) MarkRefunded(ctx context.Context, id uuid.UUID, reason string, amount decimal.Decimal) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE charges
		SET status = 'REFUNDED', refund_reason = $2, refund_amount = $3,
		    refund_time = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'PAID'`,
		id, reason, amount)
	if err != nil {
		return 0, fmt.Errorf("%w: mark charge refunded: %v", apperr.ErrInfrastructure, err)
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Charge, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM charges WHERE patient_id = $1`,
		patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count charges: %v", apperr.ErrInfrastructure, err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+chargeCols+` FROM charges
		 WHERE patient_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list charges: %v", apperr.ErrInfrastructure, err)
	}
	defer rows.Close()
	var items []*Charge
	for rows.Next() {
		c, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, nil
}

func (r *repoPG) SettlementSummary(ctx context.Context, from, to time.Time) (*Settlement, error) {
	conn := r.conn(ctx)
	s := &Settlement{From: from, To: to, PaidAmount: decimal.Zero, RefundedAmount: decimal.Zero}

	err := conn.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(actual_amount), 0)
		FROM charges
		WHERE charge_time >= $1 AND charge_time < $2 AND status IN ('PAID', 'REFUNDED')`,
		from, to).Scan(&s.PaidCount, &s.PaidAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: settlement paid totals: %v", apperr.ErrInfrastructure, err)
	}

	err = conn.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(refund_amount), 0)
		FROM charges
		WHERE refund_time >= $1 AND refund_time < $2 AND status = 'REFUNDED'`,
		from, to).Scan(&s.RefundCount, &s.RefundedAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: settlement refund totals: %v", apperr.ErrInfrastructure, err)
	}

	rows, err := conn.Query(ctx, `
		SELECT payment_method, COUNT(*), COALESCE(SUM(actual_amount), 0)
		FROM charges
		WHERE charge_time >= $1 AND charge_time < $2 AND status IN ('PAID', 'REFUNDED')
		GROUP BY payment_method
		ORDER BY payment_method`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: settlement by method: %v", apperr.ErrInfrastructure, err)
	}
	defer rows.Close()
	for rows.Next() {
		var mt MethodTotal
		if err := rows.Scan(&mt.Method, &mt.Count, &mt.Amount); err != nil {
			return nil, fmt.Errorf("%w: scan settlement bucket: %v", apperr.ErrInfrastructure, err)
		}
		s.ByMethod = append(s.ByMethod, mt)
	}
	return s, nil
}
