package amqp

import (
	"testing"
	"time"

	"movimientos/internal/core"
)

func TestMovementEventRoundTrip(t *testing.T) {
	m := core.Movement{
		ID:           "01HV5ZX0TEST",
		Date:         core.NewDate(2024, 1, 15),
		Type:         core.Expense,
		Amount:       core.Money{Cents: 30_000},
		Category:     "salud",
		Observations: "consulta",
		CreatedAt:    time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Year:         2024,
		Month:        1,
	}

	body, err := NewMovementDeletedEvent(m).ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	event, err := MovementEventFromJSON(body)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.Kind != KindMovementDeleted || event.ID != m.ID {
		t.Fatalf("envelope = %s/%s, want %s/%s", event.Kind, event.ID, KindMovementDeleted, m.ID)
	}
	if event.Movement == nil {
		t.Fatal("deleted event must carry the payload")
	}
	got, err := event.Movement.ToMovement()
	if err != nil {
		t.Fatalf("payload to movement: %v", err)
	}
	if got.ID != m.ID || got.Type != m.Type || got.Amount != m.Amount || got.Category != m.Category {
		t.Fatalf("payload mismatch: %+v", got)
	}
	if !got.Date.Equal(m.Date.Time) {
		t.Fatalf("date = %v, want %v", got.Date, m.Date)
	}
}

func TestCreatedEventCarriesNoPayload(t *testing.T) {
	body, err := NewMovementCreatedEvent("abc").ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	event, err := MovementEventFromJSON(body)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.Kind != KindMovementCreated || event.ID != "abc" {
		t.Fatalf("envelope = %s/%s", event.Kind, event.ID)
	}
	if event.Movement != nil {
		t.Fatal("created event should reference the record by id only")
	}
}

func TestMovementEventFromJSONRejectsGarbage(t *testing.T) {
	if _, err := MovementEventFromJSON([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed body")
	}
}
