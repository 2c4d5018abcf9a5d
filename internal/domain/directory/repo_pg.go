package directory

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

func (r *repoPG) ListDepartments(ctx context.Context) ([]*Department, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, code, name, location FROM departments ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list departments: %v", apperr.ErrInfrastructure, err)
	}
	defer rows.Close()
	var items []*Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.Code, &d.Name, &d.Location); err != nil {
			return nil, fmt.Errorf("%w: scan department: %v", apperr.ErrInfrastructure, err)
		}
		items = append(items, &d)
	}
	return items, nil
}

func (r *repoPG) ListDoctorsByDepartment(ctx context.Context, departmentID uuid.UUID) ([]*Doctor, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, name, title, department_id, fee
		FROM doctors WHERE department_id = $1 ORDER BY name ASC`, departmentID)
	if err != nil {
		return nil, fmt.Errorf("%w: list doctors: %v", apperr.ErrInfrastructure, err)
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(&d.ID, &d.Name, &d.Title, &d.DepartmentID, &d.Fee); err != nil {
			return nil, fmt.Errorf("%w: scan doctor: %v", apperr.ErrInfrastructure, err)
		}
		items = append(items, &d)
	}
	return items, nil
}

func (r *repoPG) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, mrn, name, gender, birth_date, phone, created_at
		FROM patients WHERE id = $1`, id).
		Scan(&p.ID, &p.MRN, &p.Name, &p.Gender, &p.BirthDate, &p.Phone, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: patient", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get patient: %v", apperr.ErrInfrastructure, err)
	}
	return &p, nil
}

func (r *repoPG) SearchPatients(ctx context.Context, keyword string, limit, offset int) ([]*Patient, int, error) {
	pattern := "%" + keyword + "%"
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM patients
		WHERE name ILIKE $1 OR mrn ILIKE $1 OR phone ILIKE $1`, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count patients: %v", apperr.ErrInfrastructure, err)
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, mrn, name, gender, birth_date, phone, created_at
		FROM patients
		WHERE name ILIKE $1 OR mrn ILIKE $1 OR phone ILIKE $1
		ORDER BY name ASC LIMIT $2 OFFSET $3`, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: search patients: %v", apperr.ErrInfrastructure, err)
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.MRN, &p.Name, &p.Gender, &p.BirthDate, &p.Phone, &p.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("%w: scan patient: %v", apperr.ErrInfrastructure, err)
		}
		items = append(items, &p)
	}
	return items, total, nil
}
