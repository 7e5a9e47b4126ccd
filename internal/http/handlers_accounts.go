package http

import (
	"net/http"
	"time"

	"ledger/internal/core"
	"ledger/internal/services"
)

type accountRequest struct {
	Name           string           `json:"name"`
	Type           core.AccountType `json:"account_type"`
	Currency       string           `json:"currency"`
	IsDefault      bool             `json:"is_default"`
	OpeningBalance core.Money       `json:"opening_balance"`
	OpeningDate    string           `json:"opening_date"`
}

type accountPatchRequest struct {
	Name      *string           `json:"name"`
	Type      *core.AccountType `json:"account_type"`
	Currency  *string           `json:"currency"`
	IsDefault *bool             `json:"is_default"`
}

type balanceResponse struct {
	AccountID string     `json:"account_id"`
	Balance   core.Money `json:"balance"`
	At        *time.Time `json:"at,omitempty"`
}

type adjustRequest struct {
	Balance core.Money `json:"balance"`
	Date    string     `json:"date"`
}

type adjustResponse struct {
	AccountID  string            `json:"account_id"`
	Balance    core.Money        `json:"balance"`
	Adjustment *core.Transaction `json:"adjustment"`
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.svc.ListAccounts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(accounts))
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	openingDate, err := optionalDate(req.OpeningDate)
	if err != nil {
		writeError(w, r, err)
		return
	}

	account, err := s.svc.CreateAccount(r.Context(), services.AccountInput{
		Name:           req.Name,
		Type:           req.Type,
		Currency:       req.Currency,
		IsDefault:      req.IsDefault,
		OpeningBalance: req.OpeningBalance,
		OpeningDate:    openingDate,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/accounts/"+account.ID).
		Body(account).
		Write(w)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.svc.GetAccount(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	account, err := s.svc.UpdateAccount(r.Context(), r.PathValue("id"), services.AccountPatch{
		Name:      req.Name,
		Type:      req.Type,
		Currency:  req.Currency,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteAccount(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetBalance returns the current balance, or the replayed balance
// at the end of the given day when ?at= is set.
func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if raw := r.URL.Query().Get("at"); raw != "" {
		at, err := parseDate(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if len(raw) == len(time.DateOnly) {
			at = at.Add(24*time.Hour - time.Nanosecond)
		}
		balance, err := s.svc.BalanceAt(r.Context(), id, at)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, balanceResponse{AccountID: id, Balance: balance, At: &at})
		return
	}

	balance, err := s.svc.GetBalance(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{AccountID: id, Balance: balance})
}

func (s *Server) handleRecomputeBalance(w http.ResponseWriter, r *http.Request) {
	check, err := s.svc.RecomputeBalance(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (s *Server) handleAdjustBalance(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	date, err := optionalDate(req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	adj, err := s.svc.AdjustBalance(r.Context(), id, req.Balance, date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if adj != nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, adjustResponse{AccountID: id, Balance: req.Balance, Adjustment: adj})
}

// handleReconcileAll replays every account and corrects diverged caches.
func (s *Server) handleReconcileAll(w http.ResponseWriter, r *http.Request) {
	parallel, err := parseNonNegative(r.URL.Query(), "parallel", 4)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if parallel == 0 {
		parallel = 1
	}
	report, err := s.svc.ReconcileAll(r.Context(), parallel)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
