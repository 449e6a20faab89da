package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  MovementType = "ingreso"
	Expense MovementType = "egreso"
)

type (
	// MovementType distinguishes money coming in from money going out.
	MovementType string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Movement is one recorded income or expense event. Records are
	// immutable after creation; the only mutation is a hard delete.
	Movement struct {
		ID           string
		Date         Date
		Type         MovementType
		Amount       Money
		Category     string
		Observations string
		CreatedAt    time.Time
		// Year and Month are derived from CreatedAt exactly once, at
		// creation, and stored with the record so aggregation never
		// re-derives them.
		Year  int
		Month int
	}
)

// Category sets per movement type. The category of a movement must belong
// to the set of its type.
var (
	IncomeCategories  = []string{"sueldo", "ofrenda", "alquiler"}
	ExpenseCategories = []string{"salud", "supermercado", "impuestos", "mantenimiento", "traslado", "otros"}
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidType     = errors.New("invalid movement type")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidPageSize = errors.New("invalid page size")
	ErrInvalidCursor   = errors.New("invalid cursor")

	ErrObservationsTooLong = errors.New("observations too long (max 500 characters)")
)

// Validate reports whether t is one of the known movement types.
func (t MovementType) Validate() error {
	switch t {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidType
	}
}

// Sign is +1 for incomes and -1 for expenses. The balance delta of a
// movement is Sign()*Amount.Cents.
func (t MovementType) Sign() int64 {
	if t == Income {
		return 1
	}
	return -1
}

// CategoriesFor returns the category set of a movement type.
func CategoriesFor(t MovementType) []string {
	if t == Income {
		return IncomeCategories
	}
	return ExpenseCategories
}

// ValidCategory reports whether category belongs to the set of type t.
func ValidCategory(t MovementType, category string) bool {
	for _, c := range CategoriesFor(t) {
		if c == category {
			return true
		}
	}
	return false
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// NewDate creates a new Date from year, month, day (UTC, midnight).
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a calendar date in YYYY-MM-DD form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// PeriodKey formats a summary key as "{year}-{month}" with month 1-12 and
// no zero padding. Add and delete must map a movement through this same
// derivation so both touch the same summary record.
func PeriodKey(year, month int) string {
	return fmt.Sprintf("%d-%d", year, month)
}

// PeriodOf derives the summary period of a creation timestamp.
func PeriodOf(t time.Time) (year, month int) {
	return t.Year(), int(t.Month())
}

func (m Movement) Validate() error {
	if err := m.Date.Validate(); err != nil {
		return err
	}
	if err := m.Type.Validate(); err != nil {
		return err
	}
	if err := m.Amount.Validate(); err != nil {
		return err
	}
	if !ValidCategory(m.Type, m.Category) {
		return ErrInvalidCategory
	}
	if len(m.Observations) > 500 {
		return ErrObservationsTooLong
	}
	return nil
}

// BalanceDelta is the signed effect of the movement on the running balance.
func (m Movement) BalanceDelta() int64 {
	return m.Type.Sign() * m.Amount.Cents
}
