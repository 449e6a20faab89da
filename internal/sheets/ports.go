package sheets

import (
	"context"

	"movimientos/internal/core"
)

// MovementMirror is the outbound port to the audit mirror. The mirror is
// append-only: a deletion is recorded as a reversal row, never by removing
// the original row.
type MovementMirror interface {
	// AppendMovement records a committed movement on the mirror and
	// returns a reference to the written row.
	AppendMovement(ctx context.Context, m core.Movement) (rowRef string, err error)

	// AppendReversal records the deletion of a movement as a reversal row.
	AppendReversal(ctx context.Context, m core.Movement) (rowRef string, err error)
}
