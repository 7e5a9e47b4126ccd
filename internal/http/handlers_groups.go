package http

import (
	"net/http"

	"ledger/internal/core"
	"ledger/internal/services"
)

type groupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (req groupRequest) input() services.GroupInput {
	return services.GroupInput{Name: req.Name, Description: req.Description}
}

// groupRoutes mounts CRUD for one group kind under base.
func (s *Server) groupRoutes(mux *http.ServeMux, base string, kind core.GroupKind) {
	mux.HandleFunc("GET "+base, func(w http.ResponseWriter, r *http.Request) {
		groups, err := s.svc.ListGroups(r.Context(), kind)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, orEmpty(groups))
	})
	mux.HandleFunc("POST "+base, func(w http.ResponseWriter, r *http.Request) {
		var req groupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		g, err := s.svc.CreateGroup(r.Context(), kind, req.input())
		if err != nil {
			writeError(w, r, err)
			return
		}
		NewJSONResponse().
			Status(http.StatusCreated).
			Header("Location", base+"/"+g.ID).
			Body(g).
			Write(w)
	})
	mux.HandleFunc("GET "+base+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		g, err := s.svc.GetGroup(r.Context(), kind, r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	})
	mux.HandleFunc("PUT "+base+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		var req groupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		g, err := s.svc.UpdateGroup(r.Context(), kind, r.PathValue("id"), req.input())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	})
	mux.HandleFunc("DELETE "+base+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := s.svc.DeleteGroup(r.Context(), kind, r.PathValue("id")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func (s *Server) handleGroupRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.svc.GroupRules(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rules))
}

func (s *Server) handleGroupBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.svc.GroupBudgets(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(budgets))
}
