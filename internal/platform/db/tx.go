package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

// DBTxKey holds the active transaction for the duration of one unit of work.
const DBTxKey contextKey = "db_tx"

// TxFromContext retrieves the active transaction from context, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx begins a transaction on the pool connection carried by ctx and
// returns a derived context carrying the transaction. The caller owns
// commit/rollback.
func WithTx(ctx context.Context) (context.Context, pgx.Tx, error) {
	conn := ConnFromContext(ctx)
	if conn == nil {
		return ctx, nil, fmt.Errorf("no database connection in context")
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		return ctx, nil, fmt.Errorf("begin transaction: %w", err)
	}
	return context.WithValue(ctx, DBTxKey, tx), tx, nil
}

// Transactor runs a function inside exactly one atomic unit of work. Every
// repository reached through the derived context joins the same transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopTransactor runs the function directly with no database transaction.
// Unit tests that substitute in-memory repositories use it.
type NopTransactor struct{}

func (NopTransactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type pgxTransactor struct {
	pool *pgxpool.Pool
}

// NewTransactor returns a Transactor backed by the connection pool.
func NewTransactor(pool *pgxpool.Pool) Transactor {
	return &pgxTransactor{pool: pool}
}

func (t *pgxTransactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	// Nested calls join the enclosing transaction.
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	var tx pgx.Tx
	var err error
	if conn := ConnFromContext(ctx); conn != nil {
		tx, err = conn.Begin(ctx)
	} else {
		tx, err = t.pool.Begin(ctx)
	}
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, DBTxKey, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
