package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"movimientos/internal/core"
)

// ListFilter narrows a movement listing. Zero values mean "not set"; all set
// predicates must hold (conjunction).
type ListFilter struct {
	DateFrom core.Date
	DateTo   core.Date
	Type     core.MovementType
	Category string
}

// Position anchors a page to the last record of the previous one. The query
// layer encodes it into an opaque cursor token; storage only needs the
// ordering key back.
type Position struct {
	CreatedAtNs int64
	ID          string
}

const movementColumns = "id, date, type, amount_cents, category, observations, created_at_ns, year, month"

func scanMovement(row interface{ Scan(...any) error }) (core.Movement, error) {
	var (
		m         core.Movement
		date      string
		createdNs int64
	)
	err := row.Scan(&m.ID, &date, &m.Type, &m.Amount.Cents, &m.Category, &m.Observations, &createdNs, &m.Year, &m.Month)
	if err != nil {
		return core.Movement{}, err
	}
	d, perr := core.ParseDate(date)
	if perr != nil {
		return core.Movement{}, fmt.Errorf("stored date %q: %w", date, perr)
	}
	m.Date = d
	m.CreatedAt = time.Unix(0, createdNs).UTC()
	return m, nil
}

// AppendMovement persists a new movement together with its effect on the
// balance register and the period summary of its month, as one atomic unit.
// It returns the balance after the movement. The balance row is created on
// first use; summary rows are created lazily per period. All totals move by
// SQL increment, never by a value computed outside the database.
func (s *Store) AppendMovement(ctx context.Context, m core.Movement) (int64, error) {
	var newBalance int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO movements (id, date, type, amount_cents, category, observations, created_at_ns, year, month)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.Date.Format("2006-01-02"), string(m.Type), m.Amount.Cents, m.Category,
			m.Observations, m.CreatedAt.UnixNano(), m.Year, m.Month)
		if err != nil {
			return fmt.Errorf("insert movement: %w", err)
		}

		delta := m.BalanceDelta()
		err = tx.QueryRowContext(ctx,
			`INSERT INTO balance (id, amount_cents) VALUES (1, ?)
			 ON CONFLICT(id) DO UPDATE SET amount_cents = amount_cents + excluded.amount_cents
			 RETURNING amount_cents`,
			delta).Scan(&newBalance)
		if err != nil {
			return fmt.Errorf("apply balance delta: %w", err)
		}

		if err := applySummaryDelta(ctx, tx, m, m.Amount.Cents); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// applySummaryDelta moves the per-type and per-category totals of the
// movement's period by deltaCents (positive on add, negative on delete).
// Summaries accumulate magnitudes per type, independent of the balance sign
// convention.
func applySummaryDelta(ctx context.Context, tx *sql.Tx, m core.Movement, deltaCents int64) error {
	period := core.PeriodKey(m.Year, m.Month)
	nowNs := time.Now().UnixNano()

	incomeDelta, expenseDelta := int64(0), int64(0)
	if m.Type == core.Income {
		incomeDelta = deltaCents
	} else {
		expenseDelta = deltaCents
	}

	if deltaCents > 0 {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO period_summaries (period, year, month, income_total, expense_total, last_updated_ns)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(period) DO UPDATE SET
			     income_total = income_total + excluded.income_total,
			     expense_total = expense_total + excluded.expense_total,
			     last_updated_ns = excluded.last_updated_ns`,
			period, m.Year, m.Month, incomeDelta, expenseDelta, nowNs)
		if err != nil {
			return fmt.Errorf("apply period summary delta: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO summary_categories (period, category, total_cents) VALUES (?, ?, ?)
			 ON CONFLICT(period, category) DO UPDATE SET total_cents = total_cents + excluded.total_cents`,
			period, m.Category, deltaCents)
		if err != nil {
			return fmt.Errorf("apply category summary delta: %w", err)
		}
		return nil
	}

	// Reversal: the rows were written by the add that wrote the movement,
	// so a missing row means prior corruption and is surfaced, not patched.
	res, err := tx.ExecContext(ctx,
		`UPDATE period_summaries
		 SET income_total = income_total + ?, expense_total = expense_total + ?, last_updated_ns = ?
		 WHERE period = ?`,
		incomeDelta, expenseDelta, nowNs, period)
	if err != nil {
		return fmt.Errorf("reverse period summary delta: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("reverse period summary delta: %w", err)
	} else if n == 0 {
		return fmt.Errorf("period %s: %w", period, core.ErrSummaryMissing)
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE summary_categories SET total_cents = total_cents + ? WHERE period = ? AND category = ?`,
		deltaCents, period, m.Category)
	if err != nil {
		return fmt.Errorf("reverse category summary delta: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("reverse category summary delta: %w", err)
	} else if n == 0 {
		return fmt.Errorf("period %s category %s: %w", period, m.Category, core.ErrSummaryMissing)
	}
	return nil
}

// DeleteMovement hard-deletes a movement and reverses its exact deltas on
// the balance and its period summary, atomically. It returns the deleted
// movement so callers can publish its payload. A second delete of the same
// identifier observes core.ErrMovementNotFound; the balance register must
// already exist or the unit fails with core.ErrBalanceMissing.
func (s *Store) DeleteMovement(ctx context.Context, id string) (core.Movement, error) {
	var deleted core.Movement
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+movementColumns+` FROM movements WHERE id = ?`, id)
		m, err := scanMovement(row)
		if err == sql.ErrNoRows {
			return core.ErrMovementNotFound
		}
		if err != nil {
			return fmt.Errorf("load movement: %w", err)
		}

		var balance int64
		err = tx.QueryRowContext(ctx, `SELECT amount_cents FROM balance WHERE id = 1`).Scan(&balance)
		if err == sql.ErrNoRows {
			return core.ErrBalanceMissing
		}
		if err != nil {
			return fmt.Errorf("load balance: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM movements WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete movement: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE balance SET amount_cents = amount_cents + ? WHERE id = 1`,
			-m.BalanceDelta()); err != nil {
			return fmt.Errorf("reverse balance delta: %w", err)
		}

		if err := applySummaryDelta(ctx, tx, m, -m.Amount.Cents); err != nil {
			return err
		}

		deleted = m
		return nil
	})
	if err != nil {
		return core.Movement{}, err
	}
	return deleted, nil
}

// GetMovement returns a single movement by identifier.
func (s *Store) GetMovement(ctx context.Context, id string) (core.Movement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+movementColumns+` FROM movements WHERE id = ?`, id)
	m, err := scanMovement(row)
	if err == sql.ErrNoRows {
		return core.Movement{}, core.ErrMovementNotFound
	}
	if err != nil {
		return core.Movement{}, fmt.Errorf("get movement: %w", err)
	}
	return m, nil
}

// ListMovements returns up to limit movements matching the filter, newest
// first (creation timestamp descending, identifier as tiebreak). When after
// is non-nil only records strictly older than that position are returned,
// which keeps pages stable while new movements arrive at the head.
func (s *Store) ListMovements(ctx context.Context, f ListFilter, limit int, after *Position) ([]core.Movement, error) {
	var (
		where []string
		args  []any
	)
	if !f.DateFrom.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.DateFrom.Format("2006-01-02"))
	}
	if !f.DateTo.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, f.DateTo.Format("2006-01-02"))
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if after != nil {
		where = append(where, "(created_at_ns < ? OR (created_at_ns = ? AND id < ?))")
		args = append(args, after.CreatedAtNs, after.CreatedAtNs, after.ID)
	}

	query := `SELECT ` + movementColumns + ` FROM movements`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at_ns DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	var out []core.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return out, nil
}

// GetBalance returns the current running balance in cents. A never-written
// register reads as zero, matching a ledger with no movements.
func (s *Store) GetBalance(ctx context.Context) (int64, error) {
	var cents int64
	err := s.db.QueryRowContext(ctx, `SELECT amount_cents FROM balance WHERE id = 1`).Scan(&cents)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return cents, nil
}

// GetSummary returns the summary for one period, or nil when no movement
// ever touched that month.
func (s *Store) GetSummary(ctx context.Context, year, month int) (*core.Summary, error) {
	period := core.PeriodKey(year, month)
	var (
		sum    core.Summary
		lastNs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT period, year, month, income_total, expense_total, last_updated_ns
		 FROM period_summaries WHERE period = ?`, period).
		Scan(&sum.Period, &sum.Year, &sum.Month, &sum.IncomeTotal.Cents, &sum.ExpenseTotal.Cents, &lastNs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	sum.LastUpdated = time.Unix(0, lastNs).UTC()

	rows, err := s.db.QueryContext(ctx,
		`SELECT category, total_cents FROM summary_categories WHERE period = ? ORDER BY category`, period)
	if err != nil {
		return nil, fmt.Errorf("get summary categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ca core.CategoryAmount
		if err := rows.Scan(&ca.Name, &ca.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan summary category: %w", err)
		}
		sum.ByCategory = append(sum.ByCategory, ca)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get summary categories: %w", err)
	}
	return &sum, nil
}

// GetRangeSummaries returns the summaries of every period overlapping the
// inclusive [from, to] date range, oldest first. Periods with no movements
// never created a summary and are simply absent.
func (s *Store) GetRangeSummaries(ctx context.Context, from, to core.Date) ([]core.Summary, error) {
	fromKey := from.Year()*100 + int(from.Month())
	toKey := to.Year()*100 + int(to.Month())

	rows, err := s.db.QueryContext(ctx,
		`SELECT period, year, month, income_total, expense_total, last_updated_ns
		 FROM period_summaries
		 WHERE year * 100 + month BETWEEN ? AND ?
		 ORDER BY year, month`, fromKey, toKey)
	if err != nil {
		return nil, fmt.Errorf("range summaries: %w", err)
	}
	defer rows.Close()

	var out []core.Summary
	index := make(map[string]int)
	for rows.Next() {
		var (
			sum    core.Summary
			lastNs int64
		)
		if err := rows.Scan(&sum.Period, &sum.Year, &sum.Month, &sum.IncomeTotal.Cents, &sum.ExpenseTotal.Cents, &lastNs); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sum.LastUpdated = time.Unix(0, lastNs).UTC()
		index[sum.Period] = len(out)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("range summaries: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}

	catRows, err := s.db.QueryContext(ctx,
		`SELECT sc.period, sc.category, sc.total_cents
		 FROM summary_categories sc
		 JOIN period_summaries ps ON ps.period = sc.period
		 WHERE ps.year * 100 + ps.month BETWEEN ? AND ?
		 ORDER BY sc.period, sc.category`, fromKey, toKey)
	if err != nil {
		return nil, fmt.Errorf("range summary categories: %w", err)
	}
	defer catRows.Close()
	for catRows.Next() {
		var (
			period string
			ca     core.CategoryAmount
		)
		if err := catRows.Scan(&period, &ca.Name, &ca.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan summary category: %w", err)
		}
		if i, ok := index[period]; ok {
			out[i].ByCategory = append(out[i].ByCategory, ca)
		}
	}
	if err := catRows.Err(); err != nil {
		return nil, fmt.Errorf("range summary categories: %w", err)
	}
	return out, nil
}
