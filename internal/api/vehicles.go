package api

import (
    "net/http"

    "cargoplan/internal/model"
)

// VehiclesHandler handles GET/POST /v1/vehicles
func (s *Server) VehiclesHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodGet:
        status := model.VehicleStatus(r.URL.Query().Get("status"))
        if status != "" && !status.Valid() { writeProblem(w, 400, "Invalid status", string(status), r.URL.Path); return }
        items, err := s.Store.ListVehicles(r.Context(), status)
        if err != nil { writeError(w, r, "List vehicles failed", err); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    case http.MethodPost:
        var in vehicleIn
        if err := decodeJSON(r, &in); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        v, err := in.toModel()
        if err != nil { writeProblem(w, 400, "Invalid vehicle", err.Error(), r.URL.Path); return }
        created, err := s.Store.CreateVehicle(r.Context(), v)
        if err != nil { writeError(w, r, "Create vehicle failed", err); return }
        writeJSON(w, http.StatusCreated, created)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// VehicleByIDHandler handles GET/PUT/DELETE /v1/vehicles/{id} and
// GET /v1/vehicles/stats
func (s *Server) VehicleByIDHandler(w http.ResponseWriter, r *http.Request) {
    id, rest, ok := pathID(r.URL.Path, "/v1/vehicles/")
    if !ok {
        if len(rest) == 1 && rest[0] == "stats" {
            if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
            st, err := s.Store.FleetStats(r.Context())
            if err != nil { writeError(w, r, "Fleet stats failed", err); return }
            writeJSON(w, http.StatusOK, st)
            return
        }
        writeProblem(w, http.StatusNotFound, "Not Found", "vehicle id must be a positive integer", r.URL.Path)
        return
    }
    if len(rest) > 0 { writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path); return }
    switch r.Method {
    case http.MethodGet:
        v, err := s.Store.GetVehicle(r.Context(), id)
        if err != nil { writeError(w, r, "Get vehicle failed", err); return }
        writeJSON(w, http.StatusOK, v)
    case http.MethodPut:
        cur, err := s.Store.GetVehicle(r.Context(), id)
        if err != nil { writeError(w, r, "Get vehicle failed", err); return }
        var in vehicleIn
        if err := decodeJSON(r, &in); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        v, err := in.toModel()
        if err != nil { writeProblem(w, 400, "Invalid vehicle", err.Error(), r.URL.Path); return }
        v.ID = id
        if v.Status == "" { v.Status = cur.Status }
        updated, err := s.Store.UpdateVehicle(r.Context(), v)
        if err != nil { writeError(w, r, "Update vehicle failed", err); return }
        writeJSON(w, http.StatusOK, updated)
    case http.MethodDelete:
        if err := s.Store.DeleteVehicle(r.Context(), id); err != nil { writeError(w, r, "Delete vehicle failed", err); return }
        w.WriteHeader(http.StatusNoContent)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}
