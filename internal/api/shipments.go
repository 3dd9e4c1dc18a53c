package api

import (
    "errors"
    "net/http"

    "cargoplan/internal/model"
    "cargoplan/internal/store"
)

// ShipmentsHandler handles GET/POST /v1/shipments
func (s *Server) ShipmentsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodGet:
        status := model.ShipmentStatus(r.URL.Query().Get("status"))
        switch status {
        case "", model.ShipmentInStock, model.ShipmentAssigned, model.ShipmentDelivered:
        default:
            writeProblem(w, 400, "Invalid status", string(status), r.URL.Path)
            return
        }
        items, err := s.Store.ListShipments(r.Context(), status)
        if err != nil { writeError(w, r, "List shipments failed", err); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    case http.MethodPost:
        var in shipmentIn
        if err := decodeJSON(r, &in); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        sh, err := in.toModel()
        if err != nil { writeProblem(w, 400, "Invalid shipment", err.Error(), r.URL.Path); return }
        created, err := s.Store.CreateShipment(r.Context(), sh)
        if err != nil { writeError(w, r, "Create shipment failed", err); return }
        writeJSON(w, http.StatusCreated, created)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// ShipmentByIDHandler handles GET/PUT/DELETE /v1/shipments/{id} and
// POST /v1/shipments/geocode
func (s *Server) ShipmentByIDHandler(w http.ResponseWriter, r *http.Request) {
    id, rest, ok := pathID(r.URL.Path, "/v1/shipments/")
    if !ok {
        if len(rest) == 1 && rest[0] == "geocode" {
            s.geocodeShipments(w, r)
            return
        }
        writeProblem(w, http.StatusNotFound, "Not Found", "shipment id must be a positive integer", r.URL.Path)
        return
    }
    if len(rest) > 0 { writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path); return }
    switch r.Method {
    case http.MethodGet:
        sh, err := s.Store.GetShipment(r.Context(), id)
        if err != nil { writeError(w, r, "Get shipment failed", err); return }
        writeJSON(w, http.StatusOK, sh)
    case http.MethodPut:
        cur, err := s.Store.GetShipment(r.Context(), id)
        if err != nil { writeError(w, r, "Get shipment failed", err); return }
        var in shipmentIn
        if err := decodeJSON(r, &in); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        sh, err := in.toModel()
        if err != nil { writeProblem(w, 400, "Invalid shipment", err.Error(), r.URL.Path); return }
        sh.ID = id
        if sh.Status == "" { sh.Status = cur.Status }
        // a new address invalidates old coordinates unless new ones came with it
        if sh.Dest == nil && sh.Address == cur.Address { sh.Dest = cur.Dest }
        updated, err := s.Store.UpdateShipment(r.Context(), sh)
        if err != nil { writeError(w, r, "Update shipment failed", err); return }
        writeJSON(w, http.StatusOK, updated)
    case http.MethodDelete:
        if err := s.Store.DeleteShipment(r.Context(), id); err != nil { writeError(w, r, "Delete shipment failed", err); return }
        w.WriteHeader(http.StatusNoContent)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

func (s *Server) geocodeShipments(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    rep, err := s.Planner.GeocodePending(r.Context())
    if err != nil { writeError(w, r, "Geocoding failed", err); return }
    writeJSON(w, http.StatusOK, rep)
}

// DepotHandler handles GET/PUT /v1/depot
func (s *Server) DepotHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodGet:
        d, err := s.Store.GetDepot(r.Context())
        if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Not Found", "no depot configured", r.URL.Path); return }
        if err != nil { writeError(w, r, "Get depot failed", err); return }
        writeJSON(w, http.StatusOK, d)
    case http.MethodPut:
        var in depotIn
        if err := decodeJSON(r, &in); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        d, coords, err := in.toModel()
        if err != nil { writeProblem(w, 400, "Invalid depot", err.Error(), r.URL.Path); return }
        saved, err := s.Planner.SaveDepot(r.Context(), d, coords)
        if err != nil { writeError(w, r, "Save depot failed", err); return }
        writeJSON(w, http.StatusOK, saved)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// GeoPointsHandler handles GET /v1/geo/points
func (s *Server) GeoPointsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    pts, err := s.Planner.Points(r.Context())
    if err != nil { writeError(w, r, "List points failed", err); return }
    writeJSON(w, http.StatusOK, map[string]any{"items": pts})
}
