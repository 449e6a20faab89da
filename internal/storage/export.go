package storage

import (
	"context"
	"fmt"
	"log/slog"
)

// GetPendingExportMovements returns movements not yet mirrored to the audit
// sheet, oldest first. Used by the worker as a backup scan for lost queue
// messages.
func (s *Store) GetPendingExportMovements(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM movements WHERE exported = 0 ORDER BY created_at_ns LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending export movements: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending export id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get pending export movements: %w", err)
	}
	return ids, nil
}

// MarkExported marks a movement as successfully mirrored.
func (s *Store) MarkExported(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE movements SET exported = 1, export_error = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}
	slog.InfoContext(ctx, "Movement marked as exported", "id", id)
	return nil
}

// MarkExportError marks a movement whose mirror append failed.
func (s *Store) MarkExportError(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE movements SET export_error = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark export error: %w", err)
	}
	slog.WarnContext(ctx, "Movement marked with export error", "id", id)
	return nil
}
