package api

import (
    "context"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "cargoplan/internal/buildinfo"
    "cargoplan/internal/events"
    "cargoplan/internal/metrics"
    "cargoplan/internal/planner"
    "cargoplan/internal/store"
)

// Pinger is anything /readyz should check.
type Pinger interface{ Ping(ctx context.Context) error }

type Server struct {
    Planner *planner.Planner
    Store   store.Store
    Broker  events.Broker
    // Checks are extra readiness dependencies keyed by name (redis, distance cache).
    Checks map[string]Pinger
    // Settings is echoed by /debug/info; never put secrets here.
    Settings map[string]any
}

func NewServer(st store.Store, pl *planner.Planner, broker events.Broker) *Server {
    if broker == nil { broker = events.NewMemory() }
    return &Server{Planner: pl, Store: st, Broker: broker, Checks: map[string]Pinger{}, Settings: map[string]any{}}
}

// Routes registers every endpoint on a new mux.
func (s *Server) Routes() *http.ServeMux {
    metrics.RegisterDefault()
    mux := http.NewServeMux()

    // Assignment runs
    mux.HandleFunc("/v1/assignments/run", s.RunAssignmentHandler)
    mux.HandleFunc("/v1/assignments", s.AssignmentsHandler)
    mux.HandleFunc("/v1/assignments/latest", s.LatestAssignmentHandler)

    // Routes
    mux.HandleFunc("/v1/routes", s.RoutesIndexHandler)
    mux.HandleFunc("/v1/routes/", s.RouteByVehicleHandler) // includes /optimize and /optimize-all

    // Intake
    mux.HandleFunc("/v1/shipments", s.ShipmentsHandler)
    mux.HandleFunc("/v1/shipments/", s.ShipmentByIDHandler) // includes /geocode
    mux.HandleFunc("/v1/vehicles", s.VehiclesHandler)
    mux.HandleFunc("/v1/vehicles/", s.VehicleByIDHandler) // includes /stats
    mux.HandleFunc("/v1/depot", s.DepotHandler)
    mux.HandleFunc("/v1/geo/points", s.GeoPointsHandler)

    // Events
    mux.HandleFunc("/v1/events/ws", s.EventsWSHandler)

    // Health
    mux.HandleFunc("/healthz", s.HealthHandler)
    mux.HandleFunc("/readyz", s.ReadyHandler)
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    // Docs
    mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
    mux.HandleFunc("/openapi.json", s.OpenAPIHandler)
    mux.HandleFunc("/docs", s.DocsHandler)
    mux.HandleFunc("/debug/info", s.DebugHandler)
    return mux
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if err := s.Store.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", "store: "+err.Error(), r.URL.Path); return }
    for name, c := range s.Checks {
        if err := c.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", name+": "+err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}

// pathID parses the first segment after prefix as an id and returns the rest.
func pathID(path, prefix string) (int64, []string, bool) {
    rest := strings.TrimPrefix(path, prefix)
    if rest == path || rest == "" { return 0, nil, false }
    parts := strings.Split(strings.Trim(rest, "/"), "/")
    id, err := strconv.ParseInt(parts[0], 10, 64)
    if err != nil || id <= 0 { return 0, parts, false }
    return id, parts[1:], true
}
