package http

import (
	"net/http"
	"time"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/services"
)

type budgetRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Amount      core.Money `json:"amount"`
	StartDate   string     `json:"start_date"`
	EndDate     *string    `json:"end_date"`
	GroupID     string     `json:"group_id"`
}

func (req budgetRequest) input() (services.BudgetInput, error) {
	in := services.BudgetInput{
		Name:        req.Name,
		Description: req.Description,
		Amount:      req.Amount,
		GroupID:     req.GroupID,
	}
	var err error
	if in.StartDate, err = optionalDate(req.StartDate); err != nil {
		return in, err
	}
	if in.EndDate, err = optionalDatePtr(req.EndDate); err != nil {
		return in, err
	}
	return in, nil
}

type categoryRequest struct {
	Name    string `json:"name"`
	GroupID string `json:"group_id"`
}

type categoryGroupRequest struct {
	Name string `json:"name"`
}

// handleMonthlyStatus returns the funds flow of on-budget accounts and the
// month's budgeting for ?year=&month=, defaulting to the current month.
func (s *Server) handleMonthlyStatus(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query(), time.Now().UTC())
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	status, err := s.svc.BudgetMonthStatus(ctx, params.Year, params.Month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(ctx).DebugContext(ctx, "Monthly status served",
		log.FieldYear, params.Year,
		log.FieldMonth, params.Month)
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.svc.ListBudgets(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(budgets))
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, err)
		return
	}
	budget, err := s.svc.CreateBudget(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/budgets/"+budget.ID).
		Body(budget).
		Write(w)
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	budget, err := s.svc.GetBudget(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, budget)
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, err)
		return
	}
	budget, err := s.svc.UpdateBudget(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, budget)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteBudget(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.svc.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(categories))
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	category, err := s.svc.CreateCategory(r.Context(), req.Name, req.GroupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (s *Server) handleListCategoryGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.svc.ListCategoryGroups(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(groups))
}

func (s *Server) handleCreateCategoryGroup(w http.ResponseWriter, r *http.Request) {
	var req categoryGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	group, err := s.svc.CreateCategoryGroup(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}
