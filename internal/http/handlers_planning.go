package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"ledger/internal/core"
)

type unbudgetedResponse struct {
	Amount core.Money `json:"amount"`
	Year   int        `json:"year,omitempty"`
	Month  int        `json:"month,omitempty"`
}

type forecastBody struct {
	ForecastedMonthlyIncome core.Money `json:"forecasted_monthly_income"`
}

// handleUnbudgetedSpent sums spending without a budget, for ?year=&month=
// when both are given and over all time otherwise.
func (s *Server) handleUnbudgetedSpent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hasYear, hasMonth := strings.TrimSpace(q.Get("year")) != "", strings.TrimSpace(q.Get("month")) != ""
	if hasYear != hasMonth {
		writeError(w, r, fmt.Errorf("%w: year and month go together", core.ErrValidation))
		return
	}
	var resp unbudgetedResponse
	if hasYear {
		params, err := ParseMonthParams(q, time.Now().UTC())
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp.Year, resp.Month = params.Year, params.Month
	}
	amount, err := s.svc.UnbudgetedSpent(r.Context(), resp.Year, resp.Month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp.Amount = amount
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleActiveBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.svc.ActiveBudgets(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(budgets))
}

func (s *Server) handleGetForecastedIncome(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.ForecastedMonthlyIncome(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forecastBody{ForecastedMonthlyIncome: m})
}

func (s *Server) handlePutForecastedIncome(w http.ResponseWriter, r *http.Request) {
	var req forecastBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := s.svc.SetForecastedMonthlyIncome(r.Context(), req.ForecastedMonthlyIncome)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forecastBody{ForecastedMonthlyIncome: m})
}
