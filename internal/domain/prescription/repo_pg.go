package prescription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

const rxCols = `id, rx_no, patient_id, doctor_id, medical_record_id, status,
	total_amount, item_count, dispensed_at, dispensed_by, deleted, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Prescription, error) {
	var rx Prescription
	err := row.Scan(&rx.ID, &rx.RxNo, &rx.PatientID, &rx.DoctorID, &rx.MedicalRecordID,
		&rx.Status, &rx.TotalAmount, &rx.ItemCount, &rx.DispensedAt, &rx.DispensedBy,
		&rx.Deleted, &rx.CreatedAt, &rx.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: prescription", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan prescription: %v", apperr.ErrInfrastructure, err)
	}
	return &rx, nil
}

func (r *repoPG) Create(ctx context.Context, p *Prescription, items []*Item) error {
	conn := r.conn(ctx)
	p.ID = uuid.New()
	if p.RxNo == "" {
		rxNo, err := db.NextBusinessID(ctx, conn, "RX", "prescription_no_seq")
		if err != nil {
			return err
		}
		p.RxNo = rxNo
	}
	_, err := conn.Exec(ctx, `
		INSERT INTO prescriptions (id, rx_no, patient_id, doctor_id, medical_record_id,
			status, total_amount, item_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.RxNo, p.PatientID, p.DoctorID, p.MedicalRecordID,
		p.Status, p.TotalAmount, p.ItemCount)
	if err != nil {
		return fmt.Errorf("%w: insert prescription: %v", apperr.ErrInfrastructure, err)
	}
	for _, it := range items {
		it.ID = uuid.New()
		it.PrescriptionID = p.ID
		_, err := conn.Exec(ctx, `
			INSERT INTO prescription_items
				(id, prescription_id, medicine_id, medicine_name, unit_price, quantity, subtotal, dosage)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			it.ID, it.PrescriptionID, it.MedicineID, it.MedicineName,
			it.UnitPrice, it.Quantity, it.Subtotal, it.Dosage)
		if err != nil {
			return fmt.Errorf("%w: insert prescription item: %v", apperr.ErrInfrastructure, err)
		}
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+rxCols+` FROM prescriptions WHERE id = $1`, id))
}

func (r *repoPG) GetItems(ctx context.Context, prescriptionID uuid.UUID) ([]*Item, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, prescription_id, medicine_id, medicine_name, unit_price, quantity, subtotal, dosage
		FROM prescription_items
		WHERE prescription_id = $1
		ORDER BY created_at ASC`, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("%w: list prescription items: %v", apperr.ErrInfrastructure, err)
	}
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.PrescriptionID, &it.MedicineID, &it.MedicineName,
			&it.UnitPrice, &it.Quantity, &it.Subtotal, &it.Dosage); err != nil {
			return nil, fmt.Errorf("%w: scan prescription item: %v", apperr.ErrInfrastructure, err)
		}
		items = append(items, &it)
	}
	return items, nil
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, dispensedBy *string) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescriptions
		SET status = $3,
		    dispensed_by = COALESCE($4, dispensed_by),
		    dispensed_at = CASE WHEN $4::text IS NOT NULL THEN NOW() ELSE dispensed_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2 AND NOT deleted`,
		id, from, to, dispensedBy)
	if err != nil {
		return 0, fmt.Errorf("%w: update prescription status: %v", apperr.ErrInfrastructure, err)
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM prescriptions WHERE patient_id = $1 AND NOT deleted`,
		patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count prescriptions: %v", apperr.ErrInfrastructure, err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+rxCols+` FROM prescriptions
		 WHERE patient_id = $1 AND NOT deleted
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list prescriptions: %v", apperr.ErrInfrastructure, err)
	}
	defer rows.Close()
	var items []*Prescription
	for rows.Next() {
		rx, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rx)
	}
	return items, total, nil
}

type historyRepoPG struct{ pool *pgxpool.Pool }

func NewHistoryRepoPG(pool *pgxpool.Pool) HistoryRepository { return &historyRepoPG{pool: pool} }

func (r *historyRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *historyRepoPG) Append(ctx context.Context, h *StatusHistory) error {
	h.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO prescription_status_history
			(id, prescription_id, from_status, to_status, operator_id, operator_name, reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		h.ID, h.PrescriptionID, h.FromStatus, h.ToStatus, h.OperatorID, h.OperatorName, h.Reason)
	if err != nil {
		return fmt.Errorf("%w: append prescription history: %v", apperr.ErrInfrastructure, err)
	}
	return nil
}

func (r *historyRepoPG) ListByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*StatusHistory, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, prescription_id, from_status, to_status, operator_id, operator_name, reason, created_at
		FROM prescription_status_history
		WHERE prescription_id = $1
		ORDER BY created_at ASC`, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("%w: list prescription history: %v", apperr.ErrInfrastructure, err)
	}
	defer rows.Close()
	var items []*StatusHistory
	for rows.Next() {
		var h StatusHistory
		if err := rows.Scan(&h.ID, &h.PrescriptionID, &h.FromStatus, &h.ToStatus,
			&h.OperatorID, &h.OperatorName, &h.Reason, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan prescription history: %v", apperr.ErrInfrastructure, err)
		}
		items = append(items, &h)
	}
	return items, nil
}
