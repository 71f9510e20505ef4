package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"presupuesto/internal/core"
)

const maxBodyBytes = 1 << 20 // bulk paste included, 1 MiB is plenty

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer io.Copy(io.Discard, body)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

type budgetResponse struct {
	Version string      `json:"version"`
	Seq     int64       `json:"seq"`
	Meta    core.Meta   `json:"meta"`
	Items   []core.Item `json:"items"`
	Total   int         `json:"total"`
	Page    int         `json:"page"`
	Pages   int         `json:"pages"`
}

// handleGetBudget returns the scope's budget, filtered and paginated
// through query parameters (search, stage, page, page_size, all).
func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	state, err := s.budget.State(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := core.Query{
		Search: r.URL.Query().Get("search"),
		Stage:  r.URL.Query().Get("stage"),
	}
	if v := r.URL.Query().Get("page"); v != "" {
		q.Page, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		q.PageSize, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("all"); v == "true" || v == "1" {
		q.All = true
	}
	page := core.Select(state.Items, q)

	writeJSON(w, http.StatusOK, budgetResponse{
		Version: state.Version,
		Seq:     state.Seq,
		Meta:    state.Meta,
		Items:   page.Items,
		Total:   page.Total,
		Page:    page.Page,
		Pages:   page.TotalPages,
	})
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var raw core.RawItem
	if !decodeBody(w, r, &raw) {
		return
	}
	item, err := s.budget.CreateItem(r.Context(), scope, raw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(scope)
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	item, err := s.budget.GetItem(r.Context(), scope, r.PathValue("uid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	uid := r.PathValue("uid")
	var raw core.RawItem
	if !decodeBody(w, r, &raw) {
		return
	}
	item, err := s.budget.UpdateItem(r.Context(), scope, uid, raw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(scope)
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	// A comma-separated uid path segment deletes several lines at once.
	uids := strings.Split(r.PathValue("uid"), ",")
	if err := s.budget.DeleteItems(r.Context(), scope, uids...); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(scope)
	w.WriteHeader(http.StatusNoContent)
}

type bulkRequest struct {
	Text string `json:"text"`
}

type bulkResponse struct {
	Items  []core.Item `json:"items"`
	Errors []string    `json:"errors"`
}

func (s *Server) handleBulkPreview(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res := s.budget.BulkPreview(req.Text)

	preview := make([]core.Item, len(res.Items))
	for i, raw := range res.Items {
		preview[i] = core.Normalize(raw)
	}
	writeJSON(w, http.StatusOK, bulkResponse{Items: preview, Errors: res.Errors})
}

func (s *Server) handleBulkCommit(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var req bulkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	added, rowErrs, err := s.budget.BulkCommit(r.Context(), scope, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(scope)
	writeJSON(w, http.StatusOK, bulkResponse{Items: added, Errors: rowErrs})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if summary, ok := s.summaryCache.Get(scope.String()); ok {
		writeJSON(w, http.StatusOK, summary)
		return
	}
	summary, err := s.budget.Summary(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.summaryCache.Set(scope.String(), summary)
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	report, err := s.budget.Report(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	data, err := s.budget.ExportCSV(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="presupuesto_`+scope.ProjectID+`.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleTemplateCSV(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="plantilla_presupuesto.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(core.TemplateCSV()))
}

// handleExecution returns the budget-vs-executed variance report.
func (s *Server) handleExecution(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if report, ok := s.varianceCache.Get(scope.String()); ok {
		writeJSON(w, http.StatusOK, report)
		return
	}
	report, err := s.budget.Variance(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.varianceCache.Set(scope.String(), report)
	writeJSON(w, http.StatusOK, report)
}
