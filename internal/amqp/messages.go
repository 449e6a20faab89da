package amqp

import (
	"encoding/json"
	"time"

	"movimientos/internal/core"
)

// Event kinds carried on the movement events queue.
const (
	KindMovementCreated = "movement.created"
	KindMovementDeleted = "movement.deleted"
)

// MovementEvent is published after a ledger write commits. Created events
// carry only the identifier, the worker fetches the record; deleted events
// carry the full payload because the record is already gone.
type MovementEvent struct {
	Kind      string           `json:"kind"`
	ID        string           `json:"id"`
	Movement  *MovementPayload `json:"movement,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// MovementPayload is the wire form of a movement inside a deleted event.
type MovementPayload struct {
	ID           string    `json:"id"`
	Date         string    `json:"date"`
	Type         string    `json:"type"`
	AmountCents  int64     `json:"amount_cents"`
	Category     string    `json:"category"`
	Observations string    `json:"observations,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Year         int       `json:"year"`
	Month        int       `json:"month"`
}

// NewMovementCreatedEvent creates a created event referencing a stored movement.
func NewMovementCreatedEvent(id string) *MovementEvent {
	return &MovementEvent{
		Kind:      KindMovementCreated,
		ID:        id,
		Timestamp: time.Now(),
	}
}

// NewMovementDeletedEvent creates a deleted event carrying the removed record.
func NewMovementDeletedEvent(m core.Movement) *MovementEvent {
	return &MovementEvent{
		Kind:      KindMovementDeleted,
		ID:        m.ID,
		Movement:  PayloadFromMovement(m),
		Timestamp: time.Now(),
	}
}

// PayloadFromMovement converts a domain movement to its wire form.
func PayloadFromMovement(m core.Movement) *MovementPayload {
	return &MovementPayload{
		ID:           m.ID,
		Date:         m.Date.Format("2006-01-02"),
		Type:         string(m.Type),
		AmountCents:  m.Amount.Cents,
		Category:     m.Category,
		Observations: m.Observations,
		CreatedAt:    m.CreatedAt,
		Year:         m.Year,
		Month:        m.Month,
	}
}

// ToMovement converts the wire form back to a domain movement.
func (p *MovementPayload) ToMovement() (core.Movement, error) {
	date, err := core.ParseDate(p.Date)
	if err != nil {
		return core.Movement{}, err
	}
	return core.Movement{
		ID:           p.ID,
		Date:         date,
		Type:         core.MovementType(p.Type),
		Amount:       core.Money{Cents: p.AmountCents},
		Category:     p.Category,
		Observations: p.Observations,
		CreatedAt:    p.CreatedAt,
		Year:         p.Year,
		Month:        p.Month,
	}, nil
}

// ToJSON converts the event to JSON bytes.
func (e *MovementEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// MovementEventFromJSON creates an event from JSON bytes.
func MovementEventFromJSON(data []byte) (*MovementEvent, error) {
	var e MovementEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
