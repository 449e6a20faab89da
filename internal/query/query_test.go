package query

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"movimientos/internal/core"
	"movimientos/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "query.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(store), store
}

func seedMovements(t *testing.T, store *storage.Store, n int, base time.Time) []string {
	t.Helper()
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		createdAt := base.Add(time.Duration(i) * time.Minute)
		year, month := core.PeriodOf(createdAt)
		m := core.Movement{
			ID:        fmt.Sprintf("m%02d%03d", int(base.Month()), i),
			Date:      core.NewDate(createdAt.Year(), int(createdAt.Month()), createdAt.Day()),
			Type:      core.Income,
			Amount:    core.Money{Cents: 100},
			Category:  "sueldo",
			CreatedAt: createdAt,
			Year:      year,
			Month:     month,
		}
		if _, err := store.AppendMovement(context.Background(), m); err != nil {
			t.Fatalf("seed movement %d: %v", i, err)
		}
		ids[i] = m.ID
	}
	return ids
}

func TestListMovementsPagination(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	base := time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)
	seedMovements(t, store, 5, base)

	var (
		cursor string
		seen   = make(map[string]bool)
		sizes  []int
		more   []bool
	)
	for {
		page, err := svc.ListMovements(ctx, Filters{}, 2, cursor)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		sizes = append(sizes, len(page.Movements))
		more = append(more, page.HasMore)
		for _, m := range page.Movements {
			if seen[m.ID] {
				t.Fatalf("movement %s repeated across pages", m.ID)
			}
			seen[m.ID] = true
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	wantSizes := []int{2, 2, 1}
	wantMore := []bool{true, true, false}
	if len(sizes) != len(wantSizes) {
		t.Fatalf("page count = %d, want %d", len(sizes), len(wantSizes))
	}
	for i := range wantSizes {
		if sizes[i] != wantSizes[i] || more[i] != wantMore[i] {
			t.Fatalf("page %d: size=%d hasMore=%v, want size=%d hasMore=%v",
				i, sizes[i], more[i], wantSizes[i], wantMore[i])
		}
	}
	if len(seen) != 5 {
		t.Fatalf("saw %d movements, want 5", len(seen))
	}
}

func TestListMovementsStableUnderConcurrentInsert(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	base := time.Date(2024, time.February, 1, 8, 0, 0, 0, time.UTC)
	seedMovements(t, store, 4, base)

	first, err := svc.ListMovements(ctx, Filters{}, 2, "")
	if err != nil {
		t.Fatalf("first page: %v", err)
	}

	// A movement added mid-browse lands at the head of a fresh listing and
	// must not shift or duplicate the remaining pages.
	createdAt := base.Add(time.Hour)
	year, month := core.PeriodOf(createdAt)
	if _, err := store.AppendMovement(ctx, core.Movement{
		ID:        "new",
		Date:      core.NewDate(2024, 2, 1),
		Type:      core.Income,
		Amount:    core.Money{Cents: 100},
		Category:  "sueldo",
		CreatedAt: createdAt,
		Year:      year,
		Month:     month,
	}); err != nil {
		t.Fatalf("insert mid-browse: %v", err)
	}

	second, err := svc.ListMovements(ctx, Filters{}, 2, first.NextCursor)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	for _, m := range second.Movements {
		if m.ID == "new" {
			t.Fatal("new movement leaked into an already-anchored page")
		}
		for _, prev := range first.Movements {
			if m.ID == prev.ID {
				t.Fatalf("movement %s duplicated across pages", m.ID)
			}
		}
	}

	fresh, err := svc.ListMovements(ctx, Filters{}, 2, "")
	if err != nil {
		t.Fatalf("fresh listing: %v", err)
	}
	if len(fresh.Movements) == 0 || fresh.Movements[0].ID != "new" {
		t.Fatalf("fresh listing head = %v, want the new movement", fresh.Movements)
	}
}

func TestListMovementsValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		filters  Filters
		pageSize int
		cursor   string
		want     error
	}{
		{"zero page size", Filters{}, 0, "", core.ErrInvalidPageSize},
		{"negative page size", Filters{}, -3, "", core.ErrInvalidPageSize},
		{"bad type", Filters{Type: "loan"}, 10, "", core.ErrInvalidType},
		{"bad category", Filters{Category: "nope"}, 10, "", core.ErrInvalidCategory},
		{"garbage cursor", Filters{}, 10, "???", core.ErrInvalidCursor},
		{"truncated cursor", Filters{}, 10, "YWJj", core.ErrInvalidCursor},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ListMovements(ctx, tc.filters, tc.pageSize, tc.cursor)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCursorRoundTrip(t *testing.T) {
	pos := storage.Position{CreatedAtNs: 1704096000000000000, ID: "01HV5ZX0"}
	got, err := decodeCursor(encodeCursor(pos))
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if got != pos {
		t.Fatalf("got %+v, want %+v", got, pos)
	}
}

func TestGetPeriodSummary(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedMovements(t, store, 2, time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC))

	sum, err := svc.GetPeriodSummary(ctx, 2024, 3)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum == nil || sum.IncomeTotal.Cents != 200 {
		t.Fatalf("summary = %+v, want income total 200", sum)
	}

	// Absent period is nil, not an error.
	sum, err = svc.GetPeriodSummary(ctx, 2019, 6)
	if err != nil {
		t.Fatalf("absent summary: %v", err)
	}
	if sum != nil {
		t.Fatalf("expected nil summary, got %+v", sum)
	}

	if _, err := svc.GetPeriodSummary(ctx, 2024, 13); !errors.Is(err, core.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate for month 13, got %v", err)
	}
}

func TestGetRangeSummary(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedMovements(t, store, 1, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC))
	seedMovements(t, store, 1, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))

	sums, err := svc.GetRangeSummary(ctx, core.NewDate(2024, 4, 1), core.NewDate(2024, 6, 30))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(sums) != 2 || sums[0].Period != "2024-4" || sums[1].Period != "2024-6" {
		t.Fatalf("range summaries = %+v", sums)
	}

	if _, err := svc.GetRangeSummary(ctx, core.Date{}, core.NewDate(2024, 6, 30)); !errors.Is(err, core.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate for zero bound, got %v", err)
	}
}

func TestGetBalance(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	balance, err := svc.GetBalance(ctx)
	if err != nil || balance != 0 {
		t.Fatalf("empty balance = %d (%v), want 0", balance, err)
	}
	seedMovements(t, store, 3, time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC))
	balance, err = svc.GetBalance(ctx)
	if err != nil || balance != 300 {
		t.Fatalf("balance = %d (%v), want 300", balance, err)
	}
}
