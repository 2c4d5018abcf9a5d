package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

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

const regCols = `id, reg_no, patient_id, department_id, doctor_id, status, fee,
	visit_date, queue_no, cancel_reason, deleted, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Registration, error) {
	var reg Registration
	err := row.Scan(&reg.ID, &reg.RegNo, &reg.PatientID, &reg.DepartmentID, &reg.DoctorID,
		&reg.Status, &reg.Fee, &reg.VisitDate, &reg.QueueNo, &reg.CancelReason,
		&reg.Deleted, &reg.CreatedAt, &reg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: registration", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan registration: %v", apperr.ErrInfrastructure, err)
	}
	return &reg, nil
}

func (r *repoPG) Create(ctx context.Context, reg *Registration) error {
	reg.ID = uuid.New()
	if reg.RegNo == "" {
		regNo, err := db.NextBusinessID(ctx, r.conn(ctx), "REG", "registration_no_seq")
		if err != nil {
			return err
		}
		reg.RegNo = regNo
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO registrations (id, reg_no, patient_id, department_id, doctor_id,
			status, fee, visit_date, queue_no)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		reg.ID, reg.RegNo, reg.PatientID, reg.DepartmentID, reg.DoctorID,
		reg.Status, reg.Fee, reg.VisitDate, reg.QueueNo)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "uq_registrations_dept_day_queue" {
			return fmt.Errorf("%w: queue number %d already assigned for this department and day",
				apperr.ErrConcurrentModification, reg.QueueNo)
		}
		return fmt.Errorf("%w: insert registration: %v", apperr.ErrInfrastructure, err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Registration, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+regCols+` FROM registrations WHERE id = $1`, id))
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, cancelReason *string) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE registrations
		SET status = $3, cancel_reason = COALESCE($4, cancel_reason), updated_at = NOW()
		WHERE id = $1 AND status = $2 AND NOT deleted`,
		id, from, to, cancelReason)
	if err != nil {
		return 0, fmt.Errorf("%w: update registration status: %v", apperr.ErrInfrastructure, err)
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Registration, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE patient_id = $1 AND NOT deleted`,
		patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count registrations: %v", apperr.ErrInfrastructure, err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+regCols+` FROM registrations
		 WHERE patient_id = $1 AND NOT deleted
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list registrations: %v", apperr.ErrInfrastructure, err)
	}
	defer rows.Close()
	var items []*Registration
	for rows.Next() {
		reg, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, reg)
	}
	return items, total, nil
}

func (r *repoPG) NextQueueNo(ctx context.Context, departmentID uuid.UUID, visitDate time.Time) (int, error) {
	var next int
	// Day bucketing must match the unique queue index expression.
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(MAX(queue_no), 0) + 1 FROM registrations
		WHERE department_id = $1
		  AND (visit_date AT TIME ZONE 'UTC')::date = ($2::timestamptz AT TIME ZONE 'UTC')::date`,
		departmentID, visitDate).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("%w: next queue number: %v", apperr.ErrInfrastructure, err)
	}
	return next, nil
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
		INSERT INTO registration_status_history
			(id, registration_id, from_status, to_status, operator_id, operator_name, reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		h.ID, h.RegistrationID, h.FromStatus, h.ToStatus, h.OperatorID, h.OperatorName, h.Reason)
	if err != nil {
		return fmt.Errorf("%w: append registration history: %v", apperr.ErrInfrastructure, err)
	}
	return nil
}

func (r *historyRepoPG) ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]*StatusHistory, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, registration_id, from_status, to_status, operator_id, operator_name, reason, created_at
		FROM registration_status_history
		WHERE registration_id = $1
		ORDER BY created_at ASC`, registrationID)
	if err != nil {
		return nil, fmt.Errorf("%w: list registration history: %v", apperr.ErrInfrastructure, err)
	}
	defer rows.Close()
	var items []*StatusHistory
	for rows.Next() {
		var h StatusHistory
		if err := rows.Scan(&h.ID, &h.RegistrationID, &h.FromStatus, &h.ToStatus,
			&h.OperatorID, &h.OperatorName, &h.Reason, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan registration history: %v", apperr.ErrInfrastructure, err)
		}
		items = append(items, &h)
	}
	return items, nil
}
