package http

import (
	"net/http"
	"strconv"

	"presupuesto/internal/storage"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	expenses, err := s.budget.Expenses(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if expenses == nil {
		expenses = []storage.Expense{}
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var e storage.Expense
	if !decodeBody(w, r, &e) {
		return
	}
	created, err := s.budget.AddExpense(r.Context(), scope, e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(scope)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid expense id")
		return
	}
	if err := s.budget.RemoveExpense(r.Context(), scope, id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(scope)
	w.WriteHeader(http.StatusNoContent)
}
