package http

import (
	"net/http"

	"ledger/internal/core"
	"ledger/internal/services"
)

type ruleRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	IsActive    *bool            `json:"is_active"`
	Priority    *int             `json:"priority"`
	CatchAll    bool             `json:"catch_all"`
	Conditions  []core.Condition `json:"conditions"`
	Actions     []core.Action    `json:"actions"`
	GroupID     string           `json:"group_id"`
}

func (req ruleRequest) input() services.RuleInput {
	return services.RuleInput{
		Name:        req.Name,
		Description: req.Description,
		IsActive:    req.IsActive,
		Priority:    req.Priority,
		CatchAll:    req.CatchAll,
		Conditions:  req.Conditions,
		Actions:     req.Actions,
		GroupID:     req.GroupID,
	}
}

type conditionsRequest struct {
	Conditions []core.Condition `json:"conditions"`
}

// handleTestConditions previews which transactions conditions would match.
func (s *Server) handleTestConditions(w http.ResponseWriter, r *http.Request) {
	var req conditionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	preview, err := s.svc.PreviewConditions(r.Context(), req.Conditions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.svc.ListRules(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rules))
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := s.svc.CreateRule(r.Context(), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/rules/"+rule.ID).
		Body(rule).
		Write(w)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.svc.GetRule(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := s.svc.UpdateRule(r.Context(), r.PathValue("id"), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteRule(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRunRule applies one rule to every stored transaction.
func (s *Server) handleRunRule(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.RunRule(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleRunAllRules applies the active rule set to every stored transaction.
func (s *Server) handleRunAllRules(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.RunAllRules(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
