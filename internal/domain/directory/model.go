package directory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Department is one clinical department patients register into.
type Department struct {
	ID       uuid.UUID `db:"id" json:"id"`
	Code     string    `db:"code" json:"code"`
	Name     string    `db:"name" json:"name"`
	Location string    `db:"location" json:"location"`
}

// Doctor is a practitioner available for registration.
type Doctor struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Title        string          `db:"title" json:"title"`
	DepartmentID uuid.UUID       `db:"department_id" json:"department_id"`
	Fee          decimal.Decimal `db:"fee" json:"fee"`
}

// Patient is the demographic record visits hang off.
type Patient struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	MRN       string     `db:"mrn" json:"mrn"`
	Name      string     `db:"name" json:"name"`
	Gender    string     `db:"gender" json:"gender"`
	BirthDate *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Phone     string     `db:"phone" json:"phone"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
