package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"movimientos/internal/core"
	"movimientos/internal/query"
)

type movementResponse struct {
	ID           string    `json:"id"`
	Date         string    `json:"date"`
	Type         string    `json:"type"`
	Amount       float64   `json:"amount"`
	AmountCents  int64     `json:"amount_cents"`
	Category     string    `json:"category"`
	Observations string    `json:"observations,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Period       string    `json:"period"`
}

func toMovementResponse(m core.Movement) movementResponse {
	return movementResponse{
		ID:           m.ID,
		Date:         m.Date.Format("2006-01-02"),
		Type:         string(m.Type),
		Amount:       m.Amount.Units(),
		AmountCents:  m.Amount.Cents,
		Category:     m.Category,
		Observations: m.Observations,
		CreatedAt:    m.CreatedAt,
		Period:       core.PeriodKey(m.Year, m.Month),
	}
}

type createMovementResponse struct {
	Movement     movementResponse `json:"movement"`
	NewBalance   float64          `json:"new_balance"`
	BalanceCents int64            `json:"new_balance_cents"`
}

type deleteMovementResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

type listMovementsResponse struct {
	Movements  []movementResponse `json:"movements"`
	NextCursor string             `json:"next_cursor,omitempty"`
	HasMore    bool               `json:"has_more"`
}

func toListResponse(page query.Page) listMovementsResponse {
	resp := listMovementsResponse{
		Movements: make([]movementResponse, 0, len(page.Movements)),
		HasMore:   page.HasMore,
	}
	for _, m := range page.Movements {
		resp.Movements = append(resp.Movements, toMovementResponse(m))
	}
	if page.HasMore {
		resp.NextCursor = page.NextCursor
	}
	return resp
}

type balanceResponse struct {
	Balance      float64   `json:"balance"`
	BalanceCents int64     `json:"balance_cents"`
	Timestamp    time.Time `json:"timestamp"`
}

type categoryTotalResponse struct {
	Category   string  `json:"category"`
	Total      float64 `json:"total"`
	TotalCents int64   `json:"total_cents"`
}

type summaryResponse struct {
	Period       string                  `json:"period"`
	Year         int                     `json:"year"`
	Month        int                     `json:"month"`
	IncomeTotal  float64                 `json:"income_total"`
	ExpenseTotal float64                 `json:"expense_total"`
	ByCategory   []categoryTotalResponse `json:"by_category"`
	LastUpdated  *time.Time              `json:"last_updated,omitempty"`
}

// summaryEnvelope wraps a single period lookup; a period that never saw a
// movement is reported as null, not an error.
type summaryEnvelope struct {
	Summary *summaryResponse `json:"summary"`
}

func toSummaryResponse(s core.Summary) summaryResponse {
	resp := summaryResponse{
		Period:       s.Period,
		Year:         s.Year,
		Month:        s.Month,
		IncomeTotal:  s.IncomeTotal.Units(),
		ExpenseTotal: s.ExpenseTotal.Units(),
		ByCategory:   []categoryTotalResponse{},
	}
	for _, ct := range s.ByCategory {
		resp.ByCategory = append(resp.ByCategory, categoryTotalResponse{
			Category:   ct.Name,
			Total:      ct.Amount.Units(),
			TotalCents: ct.Amount.Cents,
		})
	}
	if !s.LastUpdated.IsZero() {
		t := s.LastUpdated
		resp.LastUpdated = &t
	}
	return resp
}

type rangeSummaryResponse struct {
	Summaries []summaryResponse `json:"summaries"`
}

type categoriesResponse struct {
	Income  []string `json:"income"`
	Expense []string `json:"expense"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps domain errors onto HTTP statuses: validation
// failures are 422, a missing movement 404, a corrupted register 409 and
// everything else 500 with the detail kept out of the response.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case core.IsValidation(err):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, core.ErrMovementNotFound):
		writeError(w, r, http.StatusNotFound, core.ErrMovementNotFound.Error())
	case core.IsInconsistent(err):
		slog.ErrorContext(r.Context(), "Inconsistent ledger state", "error", err, "url", r.URL.Path)
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Request failed", "error", err, "url", r.URL.Path)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
