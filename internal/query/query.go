// Package query is the read side of the ledger: filtered cursor-paginated
// movement listings, balance reads and summary lookups. It never takes the
// write path and holds no locks; it sees whatever consistent state the last
// committed write unit left behind.
package query

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"movimientos/internal/core"
	"movimientos/internal/storage"
)

// Store is the read contract against persistence.
type Store interface {
	ListMovements(ctx context.Context, f storage.ListFilter, limit int, after *storage.Position) ([]core.Movement, error)
	GetBalance(ctx context.Context) (int64, error)
	GetSummary(ctx context.Context, year, month int) (*core.Summary, error)
	GetRangeSummaries(ctx context.Context, from, to core.Date) ([]core.Summary, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Filters narrows a listing; zero values are ignored. All provided
// predicates must match.
type Filters struct {
	DateFrom core.Date
	DateTo   core.Date
	Type     core.MovementType
	Category string
}

func (f Filters) validate() error {
	if f.Type != "" {
		if err := f.Type.Validate(); err != nil {
			return err
		}
	}
	if f.Category != "" {
		if !core.ValidCategory(core.Income, f.Category) && !core.ValidCategory(core.Expense, f.Category) {
			return core.ErrInvalidCategory
		}
	}
	return nil
}

// Page is one finite slice of the movement log, newest first.
type Page struct {
	Movements  []core.Movement
	NextCursor string
	HasMore    bool
}

// ListMovements returns one page of movements matching the filters, ordered
// by creation timestamp descending. The returned cursor is anchored to the
// last record of the page, so movements added while a caller browses appear
// only at the head of a fresh listing and never shift already-fetched pages.
// A page shorter than pageSize is the final page.
func (s *Service) ListMovements(ctx context.Context, f Filters, pageSize int, cursor string) (Page, error) {
	if pageSize <= 0 {
		return Page{}, core.ErrInvalidPageSize
	}
	if err := f.validate(); err != nil {
		return Page{}, err
	}

	var after *storage.Position
	if cursor != "" {
		pos, err := decodeCursor(cursor)
		if err != nil {
			return Page{}, err
		}
		after = &pos
	}

	movements, err := s.store.ListMovements(ctx, storage.ListFilter{
		DateFrom: f.DateFrom,
		DateTo:   f.DateTo,
		Type:     f.Type,
		Category: f.Category,
	}, pageSize, after)
	if err != nil {
		return Page{}, fmt.Errorf("list movements: %w", err)
	}

	page := Page{
		Movements: movements,
		HasMore:   len(movements) == pageSize,
	}
	if len(movements) > 0 {
		last := movements[len(movements)-1]
		page.NextCursor = encodeCursor(storage.Position{
			CreatedAtNs: last.CreatedAt.UnixNano(),
			ID:          last.ID,
		})
	}
	return page, nil
}

// GetBalance returns the current running balance in cents.
func (s *Service) GetBalance(ctx context.Context) (int64, error) {
	return s.store.GetBalance(ctx)
}

// GetPeriodSummary returns the summary of one calendar month, or nil when
// the period never saw a movement. Absence is not an error.
func (s *Service) GetPeriodSummary(ctx context.Context, year, month int) (*core.Summary, error) {
	if month < 1 || month > 12 {
		return nil, core.ErrInvalidDate
	}
	return s.store.GetSummary(ctx, year, month)
}

// GetRangeSummary returns the summaries of all periods overlapping the
// inclusive date range, oldest first.
func (s *Service) GetRangeSummary(ctx context.Context, from, to core.Date) ([]core.Summary, error) {
	if from.IsZero() || to.IsZero() {
		return nil, core.ErrInvalidDate
	}
	return s.store.GetRangeSummaries(ctx, from, to)
}

// The cursor is an opaque token to callers; only this package interprets it.
// It encodes the ordering key of the last returned record.
func encodeCursor(p storage.Position) string {
	raw := strconv.FormatInt(p.CreatedAtNs, 10) + "|" + p.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(token string) (storage.Position, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return storage.Position{}, core.ErrInvalidCursor
	}
	ns, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return storage.Position{}, core.ErrInvalidCursor
	}
	createdAtNs, err := strconv.ParseInt(ns, 10, 64)
	if err != nil {
		return storage.Position{}, core.ErrInvalidCursor
	}
	return storage.Position{CreatedAtNs: createdAtNs, ID: id}, nil
}
