// Package worker mirrors committed ledger movements to the audit sheet.
// The worker consumes movement events from the queue and also runs a
// periodic backup scan over unexported rows, so a lost message delays the
// mirror instead of losing it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"movimientos/internal/amqp"
	"movimientos/internal/core"
	"movimientos/internal/sheets"
)

// MovementStore is the slice of the storage layer the worker needs.
type MovementStore interface {
	GetMovement(ctx context.Context, id string) (core.Movement, error)
	GetPendingExportMovements(ctx context.Context, limit int) ([]string, error)
	MarkExported(ctx context.Context, id string) error
	MarkExportError(ctx context.Context, id string) error
}

// ExportWorker mirrors movements from SQLite to the audit sheet.
type ExportWorker struct {
	store     MovementStore
	mirror    sheets.MovementMirror
	batchSize int
}

func NewExportWorker(store MovementStore, mirror sheets.MovementMirror, batchSize int) *ExportWorker {
	return &ExportWorker{
		store:     store,
		mirror:    mirror,
		batchSize: batchSize,
	}
}

// HandleMovementEvent processes a single movement event from the queue.
// Created events reference the stored record by id; deleted events carry
// the full payload because the row is already gone.
func (w *ExportWorker) HandleMovementEvent(ctx context.Context, event *amqp.MovementEvent) error {
	slog.InfoContext(ctx, "Processing movement event",
		"kind", event.Kind,
		"id", event.ID)

	switch event.Kind {
	case amqp.KindMovementCreated:
		return w.exportByID(ctx, event.ID)
	case amqp.KindMovementDeleted:
		if event.Movement == nil {
			return fmt.Errorf("deleted event %s has no payload", event.ID)
		}
		m, err := event.Movement.ToMovement()
		if err != nil {
			return fmt.Errorf("decode deleted movement %s: %w", event.ID, err)
		}
		ref, err := w.mirror.AppendReversal(ctx, m)
		if err != nil {
			return fmt.Errorf("append reversal to mirror: %w", err)
		}
		slog.InfoContext(ctx, "Reversal mirrored", "id", m.ID, "sheet_ref", ref)
		return nil
	default:
		return fmt.Errorf("unknown event kind %q", event.Kind)
	}
}

// ProcessPendingMovements mirrors movements that have no export mark yet.
// This is a backup mechanism in case queue messages are lost.
func (w *ExportWorker) ProcessPendingMovements(ctx context.Context) error {
	ids, err := w.store.GetPendingExportMovements(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending movements: %w", err)
	}

	if len(ids) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending movements", "count", len(ids))

	for _, id := range ids {
		if err := w.exportByID(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror pending movement", "id", id, "error", err)
			continue
		}
	}

	return nil
}

// StartupCheck mirrors any backlog left from missed messages or worker
// downtime. It scans a larger batch than the periodic pass.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	ids, err := w.store.GetPendingExportMovements(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending movements for startup check: %w", err)
	}

	if len(ids) == 0 {
		slog.InfoContext(ctx, "No pending movements found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending movements on startup, processing...",
		"count", len(ids))

	exported := 0
	failed := 0
	for _, id := range ids {
		if err := w.exportByID(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror movement during startup",
				"id", id, "error", err)
			failed++
			continue
		}
		exported++
	}

	slog.InfoContext(ctx, "Startup export completed",
		"total", len(ids),
		"exported", exported,
		"errors", failed)

	return nil
}

func (w *ExportWorker) exportByID(ctx context.Context, id string) error {
	m, err := w.store.GetMovement(ctx, id)
	if err != nil {
		// The movement may have been deleted between the event and the
		// fetch. The deleted event carries the reversal, nothing to do.
		if errors.Is(err, core.ErrMovementNotFound) {
			slog.WarnContext(ctx, "Movement gone before mirroring, skipping", "id", id)
			return nil
		}
		return fmt.Errorf("get movement %s: %w", id, err)
	}

	ref, err := w.mirror.AppendMovement(ctx, m)
	if err != nil {
		if markErr := w.store.MarkExportError(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "id", id, "error", markErr)
		}
		return fmt.Errorf("append to mirror: %w", err)
	}

	if err := w.store.MarkExported(ctx, id); err != nil {
		// The mirror write succeeded, the mark will be retried by the
		// backup scan. Appending twice is visible on the sheet but never
		// affects ledger state.
		slog.ErrorContext(ctx, "Failed to mark as exported", "id", id, "error", err)
	}

	slog.InfoContext(ctx, "Movement mirrored",
		"id", id,
		"sheet_ref", ref,
		"amount_cents", m.Amount.Cents)

	return nil
}
