package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"movimientos/internal/core"
	"movimientos/internal/ledger"
	"movimientos/internal/query"
)

type fakeLedger struct {
	addErr    error
	deleteErr error
	deleted   []string
}

func (f *fakeLedger) AddMovement(_ context.Context, in ledger.AddInput) (core.Movement, int64, error) {
	if f.addErr != nil {
		return core.Movement{}, 0, f.addErr
	}
	date, err := core.ParseDate(in.Date)
	if err != nil {
		return core.Movement{}, 0, err
	}
	cents, err := core.ParseDecimalToCents(in.Amount)
	if err != nil {
		return core.Movement{}, 0, err
	}
	m := core.Movement{
		ID:           "01HVTEST",
		Date:         date,
		Type:         in.Type,
		Amount:       core.Money{Cents: cents},
		Category:     in.Category,
		Observations: in.Observations,
		CreatedAt:    time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		Year:         2024,
		Month:        1,
	}
	if err := m.Validate(); err != nil {
		return core.Movement{}, 0, err
	}
	return m, m.BalanceDelta(), nil
}

func (f *fakeLedger) DeleteMovement(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeQueries struct {
	page      query.Page
	balance   int64
	summary   *core.Summary
	summaries []core.Summary

	balanceCalls int
	summaryCalls int
}

func (f *fakeQueries) ListMovements(_ context.Context, fl query.Filters, pageSize int, cursor string) (query.Page, error) {
	if pageSize <= 0 {
		return query.Page{}, core.ErrInvalidPageSize
	}
	if cursor == "garbage" {
		return query.Page{}, core.ErrInvalidCursor
	}
	return f.page, nil
}

func (f *fakeQueries) GetBalance(context.Context) (int64, error) {
	f.balanceCalls++
	return f.balance, nil
}

func (f *fakeQueries) GetPeriodSummary(_ context.Context, year, month int) (*core.Summary, error) {
	if month < 1 || month > 12 {
		return nil, core.ErrInvalidDate
	}
	f.summaryCalls++
	return f.summary, nil
}

func (f *fakeQueries) GetRangeSummary(_ context.Context, from, to core.Date) ([]core.Summary, error) {
	return f.summaries, nil
}

func newTestServer(lg *fakeLedger, q *fakeQueries) *Server {
	return NewServer(":0", lg, q, nil, Options{})
}

func doRequest(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateMovement(t *testing.T) {
	lg := &fakeLedger{}
	s := newTestServer(lg, &fakeQueries{})

	rec := doRequest(t, s, http.MethodPost, "/api/movements",
		`{"date":"2024-01-15","type":"ingreso","amount":"1000","category":"sueldo","observations":"enero"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp createMovementResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Movement.ID == "" || resp.Movement.AmountCents != 100_000 {
		t.Fatalf("movement = %+v", resp.Movement)
	}
	if resp.BalanceCents != 100_000 {
		t.Fatalf("new balance = %d, want 100000", resp.BalanceCents)
	}
	if resp.Movement.Period != "2024-1" {
		t.Fatalf("period = %s, want 2024-1", resp.Movement.Period)
	}
}

func TestCreateMovementAcceptsNumericAmount(t *testing.T) {
	s := newTestServer(&fakeLedger{}, &fakeQueries{})

	rec := doRequest(t, s, http.MethodPost, "/api/movements",
		`{"date":"2024-01-15","type":"egreso","amount":300.5,"category":"salud"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp createMovementResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Movement.AmountCents != 30_050 {
		t.Fatalf("amount cents = %d, want 30050", resp.Movement.AmountCents)
	}
}

func TestCreateMovementValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad type", `{"date":"2024-01-15","type":"transfer","amount":"10","category":"salud"}`},
		{"bad amount", `{"date":"2024-01-15","type":"egreso","amount":"-10","category":"salud"}`},
		{"bad category", `{"date":"2024-01-15","type":"egreso","amount":"10","category":"sueldo"}`},
		{"bad date", `{"date":"15/01/2024","type":"egreso","amount":"10","category":"salud"}`},
	}

	s := newTestServer(&fakeLedger{}, &fakeQueries{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/api/movements", tt.body)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, want 422; body = %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCreateMovementMalformedBody(t *testing.T) {
	s := newTestServer(&fakeLedger{}, &fakeQueries{})

	rec := doRequest(t, s, http.MethodPost, "/api/movements", "not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDeleteMovement(t *testing.T) {
	lg := &fakeLedger{}
	s := newTestServer(lg, &fakeQueries{})

	rec := doRequest(t, s, http.MethodDelete, "/api/movements/01HVTEST", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(lg.deleted) != 1 || lg.deleted[0] != "01HVTEST" {
		t.Fatalf("deleted = %v", lg.deleted)
	}
}

func TestDeleteMovementNotFound(t *testing.T) {
	lg := &fakeLedger{deleteErr: core.ErrMovementNotFound}
	s := newTestServer(lg, &fakeQueries{})

	rec := doRequest(t, s, http.MethodDelete, "/api/movements/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteMovementInconsistentState(t *testing.T) {
	lg := &fakeLedger{deleteErr: core.ErrBalanceMissing}
	s := newTestServer(lg, &fakeQueries{})

	rec := doRequest(t, s, http.MethodDelete, "/api/movements/01HVTEST", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestListMovements(t *testing.T) {
	q := &fakeQueries{page: query.Page{
		Movements: []core.Movement{{
			ID:        "m1",
			Date:      core.NewDate(2024, 1, 15),
			Type:      core.Expense,
			Amount:    core.Money{Cents: 30_000},
			Category:  "salud",
			CreatedAt: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
			Year:      2024,
			Month:     1,
		}},
		NextCursor: "abc",
		HasMore:    true,
	}}
	s := newTestServer(&fakeLedger{}, q)

	rec := doRequest(t, s, http.MethodGet, "/api/movements?type=egreso&limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp listMovementsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Movements) != 1 || resp.Movements[0].ID != "m1" {
		t.Fatalf("movements = %+v", resp.Movements)
	}
	if !resp.HasMore || resp.NextCursor != "abc" {
		t.Fatalf("pagination = %+v", resp)
	}
}

func TestListMovementsBadCursor(t *testing.T) {
	s := newTestServer(&fakeLedger{}, &fakeQueries{})

	rec := doRequest(t, s, http.MethodGet, "/api/movements?cursor=garbage", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestListMovementsBadPageSize(t *testing.T) {
	s := newTestServer(&fakeLedger{}, &fakeQueries{})

	rec := doRequest(t, s, http.MethodGet, "/api/movements?limit=zero", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestListMovementsBadDateFilter(t *testing.T) {
	s := newTestServer(&fakeLedger{}, &fakeQueries{})

	rec := doRequest(t, s, http.MethodGet, "/api/movements?dateFrom=January", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestGetBalanceUsesCache(t *testing.T) {
	q := &fakeQueries{balance: 70_000}
	s := newTestServer(&fakeLedger{}, q)

	for i := 0; i < 3; i++ {
		rec := doRequest(t, s, http.MethodGet, "/api/balance", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp balanceResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.BalanceCents != 70_000 {
			t.Fatalf("balance = %d, want 70000", resp.BalanceCents)
		}
	}
	if q.balanceCalls != 1 {
		t.Fatalf("store reads = %d, want 1 (cached)", q.balanceCalls)
	}
}

func TestWriteInvalidatesBalanceCache(t *testing.T) {
	q := &fakeQueries{balance: 70_000}
	s := newTestServer(&fakeLedger{}, q)

	doRequest(t, s, http.MethodGet, "/api/balance", "")
	doRequest(t, s, http.MethodPost, "/api/movements",
		`{"date":"2024-01-15","type":"ingreso","amount":"10","category":"sueldo"}`)
	doRequest(t, s, http.MethodGet, "/api/balance", "")

	if q.balanceCalls != 2 {
		t.Fatalf("store reads = %d, want 2 (cache cleared by write)", q.balanceCalls)
	}
}

func TestGetSummary(t *testing.T) {
	q := &fakeQueries{summary: &core.Summary{
		Period:       "2024-1",
		Year:         2024,
		Month:        1,
		IncomeTotal:  core.Money{Cents: 100_000},
		ExpenseTotal: core.Money{Cents: 30_000},
		ByCategory: []core.CategoryAmount{
			{Name: "sueldo", Amount: core.Money{Cents: 100_000}},
			{Name: "salud", Amount: core.Money{Cents: 30_000}},
		},
	}}
	s := newTestServer(&fakeLedger{}, q)

	rec := doRequest(t, s, http.MethodGet, "/api/summary?year=2024&month=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp summaryEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Summary == nil {
		t.Fatal("summary = nil, want totals")
	}
	if resp.Summary.Period != "2024-1" || resp.Summary.IncomeTotal != 1000 || resp.Summary.ExpenseTotal != 300 {
		t.Fatalf("summary = %+v", resp.Summary)
	}
	if len(resp.Summary.ByCategory) != 2 {
		t.Fatalf("by_category = %+v", resp.Summary.ByCategory)
	}
}

func TestGetSummaryAbsentPeriodIsNull(t *testing.T) {
	s := newTestServer(&fakeLedger{}, &fakeQueries{})

	rec := doRequest(t, s, http.MethodGet, "/api/summary?year=2030&month=6", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for empty period", rec.Code)
	}
	var resp summaryEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Summary != nil {
		t.Fatalf("summary = %+v, want null", resp.Summary)
	}
}

func TestGetSummaryInvalidMonth(t *testing.T) {
	s := newTestServer(&fakeLedger{}, &fakeQueries{})

	rec := doRequest(t, s, http.MethodGet, "/api/summary?year=2024&month=13", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, "/api/summary?year=2024", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing month", rec.Code)
	}
}

func TestGetRangeSummary(t *testing.T) {
	q := &fakeQueries{summaries: []core.Summary{
		{Period: "2024-1", Year: 2024, Month: 1, IncomeTotal: core.Money{Cents: 100_000}},
		{Period: "2024-3", Year: 2024, Month: 3, ExpenseTotal: core.Money{Cents: 30_000}},
	}}
	s := newTestServer(&fakeLedger{}, q)

	rec := doRequest(t, s, http.MethodGet, "/api/summary?dateFrom=2024-01-01&dateTo=2024-03-31", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp rangeSummaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Summaries) != 2 {
		t.Fatalf("summaries = %+v", resp.Summaries)
	}
	if resp.Summaries[0].Period != "2024-1" || resp.Summaries[1].Period != "2024-3" {
		t.Fatalf("periods = %s, %s", resp.Summaries[0].Period, resp.Summaries[1].Period)
	}
}

func TestGetCategories(t *testing.T) {
	s := newTestServer(&fakeLedger{}, &fakeQueries{})

	rec := doRequest(t, s, http.MethodGet, "/api/categories", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp categoriesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Income) == 0 || len(resp.Expense) == 0 {
		t.Fatalf("categories = %+v", resp)
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(&fakeLedger{}, &fakeQueries{})

	if rec := doRequest(t, s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Fatalf("readyz status = %d", rec.Code)
	}
}
