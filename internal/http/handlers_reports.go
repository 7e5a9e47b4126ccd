package http

import (
	"fmt"
	"net/http"
	"strings"

	"ledger/internal/core"
	"ledger/internal/engine"
)

// summedBalanceSeries is the mode=summed shape of the balance report.
type summedBalanceSeries struct {
	Granularity engine.Granularity  `json:"granularity"`
	AccountIDs  []string            `json:"account_ids"`
	Points      []engine.TotalPoint `json:"points"`
}

func (s *Server) handleBalanceReport(w http.ResponseWriter, r *http.Request) {
	q, err := parseSeriesQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	mode := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("mode")))
	if mode != "" && mode != "individual" && mode != "summed" {
		writeError(w, r, fmt.Errorf("%w: unknown mode %q (want individual or summed)", core.ErrValidation, mode))
		return
	}

	series, err := s.svc.BalanceSeries(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if mode == "summed" {
		writeJSON(w, http.StatusOK, summedBalanceSeries{
			Granularity: series.Granularity,
			AccountIDs:  series.AccountIDs,
			Points:      series.Summed(),
		})
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleSpendingReport(w http.ResponseWriter, r *http.Request) {
	q, err := parseSeriesQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	byGroup, err := parseBool(r.URL.Query(), "group")
	if err != nil {
		writeError(w, r, err)
		return
	}
	series, err := s.svc.SpendingSeries(r.Context(), q, byGroup)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleFlowReport(w http.ResponseWriter, r *http.Request) {
	q, err := parseSeriesQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	series, err := s.svc.FlowSeries(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}
