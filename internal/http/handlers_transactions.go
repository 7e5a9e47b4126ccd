package http

import (
	"fmt"
	"net/http"
	"strings"

	"ledger/internal/core"
	"ledger/internal/engine"
	"ledger/internal/services"
	"ledger/internal/store"
)

// defaultPageSize applies when a listing does not set limit.
const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

type transactionRequest struct {
	SourceAccountID      string     `json:"source_account_id"`
	DestinationAccountID string     `json:"destination_account_id"`
	DestinationName      string     `json:"destination_name"`
	Description          string     `json:"description"`
	Amount               core.Money `json:"amount"`
	Category             string     `json:"category"`
	BudgetID             string     `json:"budget_id"`
	Date                 string     `json:"transaction_date"`
}

type transactionPatchRequest struct {
	SourceAccountID      *string     `json:"source_account_id"`
	DestinationAccountID *string     `json:"destination_account_id"`
	DestinationName      *string     `json:"destination_name"`
	Description          *string     `json:"description"`
	Amount               *core.Money `json:"amount"`
	Category             *string     `json:"category"`
	BudgetID             *string     `json:"budget_id"`
	Date                 *string     `json:"transaction_date"`
}

// parseTransactionFilter reads the listing filters. Both dates are
// inclusive calendar days.
func parseTransactionFilter(r *http.Request) (store.TransactionFilter, error) {
	query := r.URL.Query()
	f := store.TransactionFilter{
		AccountID: strings.TrimSpace(query.Get("account_id")),
		Category:  strings.TrimSpace(query.Get("category")),
		BudgetID:  strings.TrimSpace(query.Get("budget_id")),
	}

	var err error
	if f.From, err = optionalDate(query.Get("start_date")); err != nil {
		return f, err
	}
	end, err := optionalDate(query.Get("end_date"))
	if err != nil {
		return f, err
	}
	if !end.IsZero() {
		f.Until = engine.DayStart(end).AddDate(0, 0, 1)
	}
	if f.Unbudgeted, err = parseBool(query, "unbudgeted"); err != nil {
		return f, err
	}
	if f.Limit, err = parseNonNegative(query, "limit", defaultPageSize); err != nil {
		return f, err
	}
	if f.Limit < 1 || f.Limit > maxPageSize {
		return f, fmt.Errorf("%w: limit must be between 1 and %d", core.ErrValidation, maxPageSize)
	}
	if f.Offset, err = parseNonNegative(query, "offset", 0); err != nil {
		return f, err
	}
	return f, nil
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := parseTransactionFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := s.svc.ListTransactions(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page.Items = orEmpty(page.Items)
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	date, err := optionalDate(req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}

	txn, err := s.svc.CreateTransaction(r.Context(), services.TransactionInput{
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		DestinationName:      req.DestinationName,
		Description:          req.Description,
		Amount:               req.Amount,
		Category:             req.Category,
		BudgetID:             req.BudgetID,
		Date:                 date,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+txn.ID).
		Body(txn).
		Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := s.svc.GetTransaction(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	patch := services.TransactionPatch{
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		DestinationName:      req.DestinationName,
		Description:          req.Description,
		Amount:               req.Amount,
		Category:             req.Category,
		BudgetID:             req.BudgetID,
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			writeError(w, r, err)
			return
		}
		patch.Date = &date
	}

	txn, err := s.svc.UpdateTransaction(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteTransaction(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
