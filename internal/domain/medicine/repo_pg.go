package medicine

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

const medCols = `id, code, name, spec, unit, price, stock, min_stock, version,
	deleted, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Medicine, error) {
	var m Medicine
	err := row.Scan(&m.ID, &m.Code, &m.Name, &m.Spec, &m.Unit, &m.Price,
		&m.Stock, &m.MinStock, &m.Version, &m.Deleted, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: medicine", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan medicine: %v", apperr.ErrInfrastructure, err)
	}
	return &m, nil
}

func (r *repoPG) Create(ctx context.Context, m *Medicine) error {
	m.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medicines (id, code, name, spec, unit, price, stock, min_stock)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.Code, m.Name, m.Spec, m.Unit, m.Price, m.Stock, m.MinStock)
	if err != nil {
		return fmt.Errorf("%w: insert medicine: %v", apperr.ErrInfrastructure, err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+medCols+` FROM medicines WHERE id = $1`, id))
}

func (r *repoPG) AdjustStock(ctx context.Context, id uuid.UUID, delta, version int) (int64, error) {
	// The stock+delta guard keeps the non-negative invariant even if a
	// concurrent writer slipped between the service's read and this write.
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medicines
		SET stock = stock + $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $3 AND stock + $2 >= 0`,
		id, delta, version)
	if err != nil {
		return 0, fmt.Errorf("%w: adjust stock: %v", apperr.ErrInfrastructure, err)
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) Search(ctx context.Context, keyword string, limit, offset int) ([]*Medicine, int, error) {
	pattern := "%" + keyword + "%"
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM medicines
		WHERE NOT deleted AND (name ILIKE $1 OR code ILIKE $1)`, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count medicines: %v", apperr.ErrInfrastructure, err)
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+medCols+` FROM medicines
		WHERE NOT deleted AND (name ILIKE $1 OR code ILIKE $1)
		ORDER BY name ASC LIMIT $2 OFFSET $3`, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: search medicines: %v", apperr.ErrInfrastructure, err)
	}
	defer rows.Close()
	var items []*Medicine
	for rows.Next() {
		m, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, nil
}

func (r *repoPG) ListBelowMinStock(ctx context.Context) ([]*Medicine, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+medCols+` FROM medicines
		WHERE NOT deleted AND stock < min_stock
		ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list below min stock: %v", apperr.ErrInfrastructure, err)
	}
	defer rows.Close()
	var items []*Medicine
	for rows.Next() {
		m, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, nil
}

type movementRepoPG struct{ pool *pgxpool.Pool }

func NewMovementRepoPG(pool *pgxpool.Pool) MovementRepository { return &movementRepoPG{pool: pool} }

func (r *movementRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *movementRepoPG) Append(ctx context.Context, mv *StockMovement) error {
	mv.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO stock_movements (id, medicine_id, delta, stock_after, reason, operator_id)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		mv.ID, mv.MedicineID, mv.Delta, mv.StockAfter, mv.Reason, mv.OperatorID)
	if err != nil {
		return fmt.Errorf("%w: append stock movement: %v", apperr.ErrInfrastructure, err)
	}
	return nil
}

func (r *movementRepoPG) ListByMedicine(ctx context.Context, medicineID uuid.UUID, limit, offset int) ([]*StockMovement, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM stock_movements WHERE medicine_id = $1`,
		medicineID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count stock movements: %v", apperr.ErrInfrastructure, err)
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, medicine_id, delta, stock_after, reason, operator_id, created_at
		FROM stock_movements
		WHERE medicine_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, medicineID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list stock movements: %v", apperr.ErrInfrastructure, err)
	}
	defer rows.Close()
	var items []*StockMovement
	for rows.Next() {
		var mv StockMovement
		if err := rows.Scan(&mv.ID, &mv.MedicineID, &mv.Delta, &mv.StockAfter,
			&mv.Reason, &mv.OperatorID, &mv.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("%w: scan stock movement: %v", apperr.ErrInfrastructure, err)
		}
		items = append(items, &mv)
	}
	return items, total, nil
}
