package core

import "time"

// CategoryAmount is an accumulated total for one category within a period.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// Summary holds the aggregate totals for one calendar month. Totals are
// unsigned magnitudes per type and per category; a net figure is never
// stored, consumers subtract ExpenseTotal from IncomeTotal themselves.
type Summary struct {
	Period       string // "{year}-{month}"
	Year         int
	Month        int // 1-12
	IncomeTotal  Money
	ExpenseTotal Money
	ByCategory   []CategoryAmount
	LastUpdated  time.Time
}

// CategoryTotal returns the accumulated total for a category, zero when the
// category never appeared in the period.
func (s Summary) CategoryTotal(name string) Money {
	for _, c := range s.ByCategory {
		if c.Name == name {
			return c.Amount
		}
	}
	return Money{}
}

// TypeTotal returns the accumulated magnitude for a movement type.
func (s Summary) TypeTotal(t MovementType) Money {
	if t == Income {
		return s.IncomeTotal
	}
	return s.ExpenseTotal
}
