package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/apperr"
)

// Queryer is the subset of pgx query methods the identifier generator needs.
// Both pgxpool.Pool and pgx.Tx satisfy it.
type Queryer interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// NextBusinessID produces a collision-free human-readable identifier such as
// "CHG20260831000042" from a Postgres sequence. Uniqueness under concurrent
// issuance is the database's job; a failure here is an infrastructure error
// the caller may retry, never a business error.
func NextBusinessID(ctx context.Context, q Queryer, prefix, sequence string) (string, error) {
	var n int64
	if err := q.QueryRow(ctx, `SELECT nextval($1)`, sequence).Scan(&n); err != nil {
		return "", fmt.Errorf("%w: next value of %s: %v", apperr.ErrInfrastructure, sequence, err)
	}
	return fmt.Sprintf("%s%s%06d", prefix, time.Now().Format("20060102"), n), nil
}
