// Package ledger is the single write path of the system. It validates
// movement input, derives the balance and summary deltas, and hands the
// whole unit to storage to be applied atomically. Nothing else mutates the
// movement store, the balance register or the period summaries.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"movimientos/internal/core"
)

// Store is the persistence contract the coordinator depends on. Both
// operations apply the movement write, the balance increment and the summary
// increments as one atomic unit, or fail with no effect.
type Store interface {
	AppendMovement(ctx context.Context, m core.Movement) (newBalanceCents int64, err error)
	DeleteMovement(ctx context.Context, id string) (core.Movement, error)
}

// EventPublisher notifies the export pipeline after a commit. Publishing is
// best effort: the ledger write already succeeded and is never rolled back
// for a lost event.
type EventPublisher interface {
	PublishMovementCreated(ctx context.Context, id string) error
	PublishMovementDeleted(ctx context.Context, m core.Movement) error
}

type Ledger struct {
	store  Store
	events EventPublisher // may be nil
	now    func() time.Time
}

func New(store Store, events EventPublisher) *Ledger {
	return &Ledger{
		store:  store,
		events: events,
		now:    time.Now,
	}
}

// AddInput carries the caller-supplied fields of a new movement. Amount is
// the raw decimal string as entered; it is parsed here, before any store is
// touched.
type AddInput struct {
	Date         string
	Type         core.MovementType
	Amount       string
	Category     string
	Observations string
}

// AddMovement validates the input, assigns an identifier and creation
// timestamp, derives the period key, and persists the movement together with
// the new balance and the updated period summary. Returns the persisted
// movement and the balance after it.
func (l *Ledger) AddMovement(ctx context.Context, in AddInput) (core.Movement, int64, error) {
	date, err := core.ParseDate(in.Date)
	if err != nil {
		return core.Movement{}, 0, err
	}
	cents, err := core.ParseDecimalToCents(in.Amount)
	if err != nil {
		return core.Movement{}, 0, err
	}

	createdAt := l.now().UTC()
	year, month := core.PeriodOf(createdAt)
	m := core.Movement{
		ID:           ulid.Make().String(),
		Date:         date,
		Type:         in.Type,
		Amount:       core.Money{Cents: cents},
		Category:     in.Category,
		Observations: in.Observations,
		CreatedAt:    createdAt,
		Year:         year,
		Month:        month,
	}
	if err := m.Validate(); err != nil {
		return core.Movement{}, 0, err
	}

	newBalance, err := l.store.AppendMovement(ctx, m)
	if err != nil {
		return core.Movement{}, 0, fmt.Errorf("append movement: %w", err)
	}

	slog.InfoContext(ctx, "Movement recorded",
		"id", m.ID,
		"type", m.Type,
		"amount_cents", m.Amount.Cents,
		"category", m.Category,
		"period", core.PeriodKey(m.Year, m.Month),
		"new_balance_cents", newBalance)

	if l.events != nil {
		if err := l.events.PublishMovementCreated(ctx, m.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to publish movement created event",
				"id", m.ID, "error", err)
		}
	}

	return m, newBalance, nil
}

// DeleteMovement removes a movement and reverses its exact effect on the
// balance and its period summary. A missing identifier fails with
// core.ErrMovementNotFound and a missing balance register with
// core.ErrBalanceMissing; in both cases no store is changed.
func (l *Ledger) DeleteMovement(ctx context.Context, id string) error {
	deleted, err := l.store.DeleteMovement(ctx, id)
	if err != nil {
		return fmt.Errorf("delete movement %s: %w", id, err)
	}

	slog.InfoContext(ctx, "Movement deleted",
		"id", deleted.ID,
		"type", deleted.Type,
		"amount_cents", deleted.Amount.Cents,
		"period", core.PeriodKey(deleted.Year, deleted.Month))

	if l.events != nil {
		if err := l.events.PublishMovementDeleted(ctx, deleted); err != nil {
			slog.ErrorContext(ctx, "Failed to publish movement deleted event",
				"id", deleted.ID, "error", err)
		}
	}

	return nil
}
