package api

import (
    "errors"
    "net/http"

    "cargoplan/internal/planner"
    "cargoplan/internal/store"
)

// RoutesIndexHandler handles GET /v1/routes
func (s *Server) RoutesIndexHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    items, err := s.Store.ListRoutes(r.Context())
    if err != nil { writeError(w, r, "List routes failed", err); return }
    writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// RouteByVehicleHandler handles GET /v1/routes/{vehicleId},
// POST /v1/routes/{vehicleId}/optimize and POST /v1/routes/optimize-all
func (s *Server) RouteByVehicleHandler(w http.ResponseWriter, r *http.Request) {
    vid, rest, ok := pathID(r.URL.Path, "/v1/routes/")
    if !ok {
        if len(rest) == 1 && rest[0] == "optimize-all" {
            s.optimizeAll(w, r)
            return
        }
        writeProblem(w, http.StatusNotFound, "Not Found", "vehicle id must be a positive integer", r.URL.Path)
        return
    }
    switch {
    case len(rest) == 0:
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        rt, err := s.Store.LatestRoute(r.Context(), vid)
        if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Route not found", "no route for this vehicle yet", r.URL.Path); return }
        if err != nil { writeError(w, r, "Get route failed", err); return }
        writeJSON(w, http.StatusOK, rt)
    case len(rest) == 1 && rest[0] == "optimize":
        if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
        var in routeOptionsIn
        if err := decodeJSON(r, &in); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        opts, err := in.toOptions()
        if err != nil { writeProblem(w, 400, "Invalid optimize request", err.Error(), r.URL.Path); return }
        rt, err := s.Planner.OptimizeRoute(r.Context(), vid, opts)
        if errors.Is(err, planner.ErrNothingToRoute) {
            writeJSON(w, http.StatusOK, map[string]any{"status": planner.OutcomeNothingToRoute, "vehicleId": vid})
            return
        }
        if err != nil { writeError(w, r, "Route optimization failed", err); return }
        writeJSON(w, http.StatusOK, rt)
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
    }
}

func (s *Server) optimizeAll(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var in routeOptionsIn
    if err := decodeJSON(r, &in); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
    opts, err := in.toOptions()
    if err != nil { writeProblem(w, 400, "Invalid optimize request", err.Error(), r.URL.Path); return }
    out, err := s.Planner.OptimizeAllRoutes(r.Context(), opts)
    if err != nil { writeError(w, r, "Route optimization failed", err); return }
    writeJSON(w, http.StatusOK, map[string]any{"items": out})
}
