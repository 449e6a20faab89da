package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"movimientos/internal/core"
	"movimientos/internal/ledger"
	"movimientos/internal/query"
)

type createMovementRequest struct {
	Date         string          `json:"date"`
	Type         string          `json:"type"`
	Amount       json.RawMessage `json:"amount"`
	Category     string          `json:"category"`
	Observations string          `json:"observations"`
}

// amountString accepts the amount both as a JSON number and as a string,
// returning the raw decimal text for the ledger to parse.
func (r createMovementRequest) amountString() string {
	return strings.Trim(strings.TrimSpace(string(r.Amount)), `"`)
}

func (s *Server) handleCreateMovement(w http.ResponseWriter, r *http.Request) {
	var req createMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	m, newBalance, err := s.ledger.AddMovement(r.Context(), ledger.AddInput{
		Date:         strings.TrimSpace(req.Date),
		Type:         core.MovementType(strings.TrimSpace(req.Type)),
		Amount:       req.amountString(),
		Category:     strings.TrimSpace(req.Category),
		Observations: sanitizeInput(req.Observations),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	s.invalidateReadCaches()

	writeJSON(w, http.StatusCreated, createMovementResponse{
		Movement:     toMovementResponse(m),
		NewBalance:   core.CentsToUnits(newBalance),
		BalanceCents: newBalance,
	})
}

func (s *Server) handleDeleteMovement(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "missing movement id")
		return
	}

	if err := s.ledger.DeleteMovement(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	s.invalidateReadCaches()

	writeJSON(w, http.StatusOK, deleteMovementResponse{Message: "movement deleted", ID: id})
}

func (s *Server) handleListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filters := query.Filters{
		Type:     core.MovementType(strings.TrimSpace(q.Get("type"))),
		Category: strings.TrimSpace(q.Get("category")),
	}
	if v := strings.TrimSpace(q.Get("dateFrom")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		filters.DateFrom = d
	}
	if v := strings.TrimSpace(q.Get("dateTo")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		filters.DateTo = d
	}

	pageSize := s.opts.DefaultPageSize
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeServiceError(w, r, core.ErrInvalidPageSize)
			return
		}
		pageSize = n
	}
	if pageSize > s.opts.MaxPageSize {
		pageSize = s.opts.MaxPageSize
	}

	page, err := s.queries.ListMovements(r.Context(), filters, pageSize, strings.TrimSpace(q.Get("cursor")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toListResponse(page))
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	const key = "balance"
	w.Header().Set("Cache-Control", "no-store")

	cents, ok := s.balanceCache.Get(key)
	if !ok {
		var err error
		cents, err = s.queries.GetBalance(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		s.balanceCache.Set(key, cents)
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Balance:      core.CentsToUnits(cents),
		BalanceCents: cents,
		Timestamp:    time.Now().UTC(),
	})
}

// handleGetSummary serves both a single period (year + month) and a date
// range (dateFrom + dateTo).
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("dateFrom") != "" || q.Get("dateTo") != "" {
		s.handleRangeSummary(w, r)
		return
	}

	year, err := strconv.Atoi(strings.TrimSpace(q.Get("year")))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid or missing year")
		return
	}
	month, err := strconv.Atoi(strings.TrimSpace(q.Get("month")))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid or missing month")
		return
	}

	key := core.PeriodKey(year, month)
	summary, ok := s.summaryCache.Get(key)
	if !ok {
		summary, err = s.queries.GetPeriodSummary(r.Context(), year, month)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		s.summaryCache.Set(key, summary)
	}

	// A period that never saw a movement is null, not an error.
	var envelope summaryEnvelope
	if summary != nil {
		resp := toSummaryResponse(*summary)
		envelope.Summary = &resp
	}
	writeJSON(w, http.StatusOK, envelope)
}

func (s *Server) handleRangeSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, err := core.ParseDate(strings.TrimSpace(q.Get("dateFrom")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	to, err := core.ParseDate(strings.TrimSpace(q.Get("dateTo")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	summaries, err := s.queries.GetRangeSummary(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := rangeSummaryResponse{Summaries: []summaryResponse{}}
	for _, sum := range summaries {
		resp.Summaries = append(resp.Summaries, toSummaryResponse(sum))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, categoriesResponse{
		Income:  core.IncomeCategories,
		Expense: core.ExpenseCategories,
	})
}

// sanitizeInput trims whitespace and strips control characters except tab,
// newline and carriage return.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
