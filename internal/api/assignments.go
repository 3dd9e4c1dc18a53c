package api

import (
    "errors"
    "net/http"
    "strconv"

    "cargoplan/internal/store"
)

// RunAssignmentHandler handles POST /v1/assignments/run
func (s *Server) RunAssignmentHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    run, err := s.Planner.RunAssignment(r.Context())
    if err != nil { writeError(w, r, "Assignment run failed", err); return }
    writeJSON(w, http.StatusOK, run)
}

// AssignmentsHandler handles GET /v1/assignments (history, newest first)
func (s *Server) AssignmentsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" {
        n, err := strconv.Atoi(v)
        if err != nil || n < 1 || n > 500 { writeProblem(w, 400, "Invalid limit", "limit must be 1..500", r.URL.Path); return }
        limit = n
    }
    items, err := s.Store.ListAssignmentRuns(r.Context(), limit)
    if err != nil { writeError(w, r, "List assignments failed", err); return }
    writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// LatestAssignmentHandler handles GET /v1/assignments/latest
func (s *Server) LatestAssignmentHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    run, err := s.Store.LatestAssignment(r.Context())
    if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Not Found", "no assignment run yet", r.URL.Path); return }
    if err != nil { writeError(w, r, "Get assignment failed", err); return }
    writeJSON(w, http.StatusOK, run)
}
