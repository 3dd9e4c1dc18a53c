package api

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/gorilla/websocket"
    "github.com/stretchr/testify/require"

    "cargoplan/internal/events"
    "cargoplan/internal/geo"
    "cargoplan/internal/model"
    "cargoplan/internal/planner"
    "cargoplan/internal/store"
)

var cities = []struct {
    name     string
    lat, lng float64
}{
    {"Casablanca", 33.5731, -7.5898},
    {"Rabat", 34.0209, -6.8416},
    {"Marrakech", 31.6295, -7.9811},
    {"Tangier", 35.7595, -5.8340},
}

func newTestServer(t *testing.T) *Server {
    t.Helper()
    st := store.NewMemory()
    broker := events.NewMemory()
    pl := planner.New(st, geo.GreatCircle{}, planner.WithBroker(broker))
    return NewServer(st, pl, broker)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
    t.Helper()
    var req *http.Request
    if body == "" {
        req = httptest.NewRequest(method, path, nil)
    } else {
        req = httptest.NewRequest(method, path, strings.NewReader(body))
        req.Header.Set("Content-Type", "application/json")
    }
    rr := httptest.NewRecorder()
    h.ServeHTTP(rr, req)
    return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
    t.Helper()
    var v T
    require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
    return v
}

// seedFleet creates one vehicle and one shipment per city.
func seedFleet(t *testing.T, h http.Handler, capacity float64) {
    t.Helper()
    rr := do(t, h, http.MethodPost, "/v1/vehicles", `{"brand":"Iveco","capacity":`+jsonNum(capacity)+`}`)
    require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
    for _, c := range cities {
        b, _ := json.Marshal(map[string]any{"customer": c.name, "address": c.name, "weight": 10, "deadline": "2030-01-01", "lat": c.lat, "lng": c.lng})
        rr := do(t, h, http.MethodPost, "/v1/shipments", string(b))
        require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
    }
}

func jsonNum(f float64) string { b, _ := json.Marshal(f); return string(b) }

func TestHealthReady(t *testing.T) {
    h := newTestServer(t).Routes()
    rr := do(t, h, http.MethodGet, "/healthz", "")
    require.Equal(t, 200, rr.Code)
    rr = do(t, h, http.MethodGet, "/readyz", "")
    require.Equal(t, 200, rr.Code)
}

type failingPinger struct{}

func (failingPinger) Ping(_ context.Context) error { return errors.New("connection refused") }

func TestReadyReportsFailingCheck(t *testing.T) {
    s := newTestServer(t)
    s.Checks["redis"] = failingPinger{}
    rr := do(t, s.Routes(), http.MethodGet, "/readyz", "")
    require.Equal(t, http.StatusServiceUnavailable, rr.Code)
    require.Contains(t, rr.Body.String(), "redis: connection refused")
}

func TestAssignAndOptimizeFlow(t *testing.T) {
    h := newTestServer(t).Routes()
    seedFleet(t, h, 100)

    rr := do(t, h, http.MethodGet, "/v1/assignments/latest", "")
    require.Equal(t, http.StatusNotFound, rr.Code)

    rr = do(t, h, http.MethodPost, "/v1/assignments/run", "")
    require.Equal(t, 200, rr.Code, rr.Body.String())
    run := decode[model.AssignmentRun](t, rr)
    require.NotEmpty(t, run.ID)
    require.ElementsMatch(t, []int64{1, 2, 3, 4}, run.Loads[1])

    rr = do(t, h, http.MethodGet, "/v1/shipments?status=assigned", "")
    require.Equal(t, 200, rr.Code)
    require.Len(t, decode[struct{ Items []model.Shipment }](t, rr).Items, 4)

    rr = do(t, h, http.MethodPost, "/v1/routes/1/optimize", `{"seed":7}`)
    require.Equal(t, 200, rr.Code, rr.Body.String())
    rt := decode[model.Route](t, rr)
    require.Equal(t, int64(1), rt.VehicleID)
    require.Equal(t, run.ID, rt.RunID)
    require.ElementsMatch(t, []int64{1, 2, 3, 4}, rt.Stops)
    require.GreaterOrEqual(t, rt.TotalDistanceKm, 1011.03)
    require.LessOrEqual(t, rt.TotalDistanceKm, 1163.29)
    require.InDelta(t, rt.TotalDistanceKm/50, rt.EstimatedHours, 0.01)
    require.Equal(t, "haversine", rt.Provider)

    rr = do(t, h, http.MethodGet, "/v1/routes/1", "")
    require.Equal(t, 200, rr.Code)
    require.Equal(t, rt.ID, decode[model.Route](t, rr).ID)

    rr = do(t, h, http.MethodGet, "/v1/routes", "")
    require.Equal(t, 200, rr.Code)
    require.Len(t, decode[struct{ Items []model.Route }](t, rr).Items, 1)

    rr = do(t, h, http.MethodGet, "/v1/assignments?limit=5", "")
    require.Equal(t, 200, rr.Code)
    hist := decode[struct{ Items []model.RunSummary }](t, rr).Items
    require.Len(t, hist, 1)
    require.Equal(t, 4, hist[0].ShipmentCount)
    require.InDelta(t, 40, hist[0].TotalWeight, 1e-9)

    rr = do(t, h, http.MethodGet, "/v1/vehicles/stats", "")
    require.Equal(t, 200, rr.Code)
    stats := decode[model.FleetStats](t, rr)
    require.Equal(t, 1, stats.Total)
    require.InDelta(t, 100, stats.TotalCapacity, 1e-9)
}

func TestOptimizeAllAndNothingToRoute(t *testing.T) {
    h := newTestServer(t).Routes()
    seedFleet(t, h, 30)
    rr := do(t, h, http.MethodPost, "/v1/vehicles", `{"brand":"Renault","capacity":10}`)
    require.Equal(t, http.StatusCreated, rr.Code)

    rr = do(t, h, http.MethodPost, "/v1/routes/optimize-all", "")
    require.Equal(t, http.StatusNotFound, rr.Code, "no run yet")

    rr = do(t, h, http.MethodPost, "/v1/assignments/run", "")
    require.Equal(t, 200, rr.Code, rr.Body.String())
    run := decode[model.AssignmentRun](t, rr)
    require.Len(t, run.Loads[1], 3)
    require.Len(t, run.Loads[2], 1)

    rr = do(t, h, http.MethodPost, "/v1/routes/2/optimize", "")
    require.Equal(t, 200, rr.Code)
    body := decode[map[string]any](t, rr)
    require.Equal(t, "nothing_to_route", body["status"])

    rr = do(t, h, http.MethodPost, "/v1/routes/optimize-all", `{"seed":1,"maxIterations":50}`)
    require.Equal(t, 200, rr.Code, rr.Body.String())
    out := decode[struct{ Items []planner.RouteOutcome }](t, rr).Items
    require.Len(t, out, 2)
    require.Equal(t, planner.OutcomeOptimized, out[0].Status)
    require.NotNil(t, out[0].Route)
    require.Len(t, out[0].Route.Stops, 3)
    require.Equal(t, planner.OutcomeNothingToRoute, out[1].Status)
}

func TestAssignmentPreconditions(t *testing.T) {
    h := newTestServer(t).Routes()
    rr := do(t, h, http.MethodPost, "/v1/assignments/run", "")
    require.Equal(t, http.StatusBadRequest, rr.Code)
    require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
    p := decode[Problem](t, rr)
    require.Equal(t, 400, p.Status)
    require.Contains(t, p.Detail, "no pending shipments")

    rr = do(t, h, http.MethodGet, "/v1/assignments/run", "")
    require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestOptimizeUnknownVehicle(t *testing.T) {
    h := newTestServer(t).Routes()
    rr := do(t, h, http.MethodPost, "/v1/routes/99/optimize", "")
    require.Equal(t, http.StatusNotFound, rr.Code, rr.Body.String())
    rr = do(t, h, http.MethodGet, "/v1/routes/99", "")
    require.Equal(t, http.StatusNotFound, rr.Code)
    rr = do(t, h, http.MethodGet, "/v1/routes/abc", "")
    require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestValidationErrors(t *testing.T) {
    h := newTestServer(t).Routes()
    cases := []struct {
        name, path, body string
    }{
        {"zero capacity", "/v1/vehicles", `{"brand":"Iveco","capacity":0}`},
        {"bad vehicle status", "/v1/vehicles", `{"brand":"Iveco","capacity":5,"status":"parked"}`},
        {"missing deadline", "/v1/shipments", `{"customer":"a","weight":1}`},
        {"bad deadline", "/v1/shipments", `{"customer":"a","weight":1,"deadline":"tomorrow"}`},
        {"unknown field", "/v1/shipments", `{"customer":"a","weight":1,"deadline":"2030-01-01","priority":3}`},
        {"lat without lng", "/v1/shipments", `{"customer":"a","weight":1,"deadline":"2030-01-01","lat":33.5}`},
        {"lat out of range", "/v1/shipments", `{"customer":"a","weight":1,"deadline":"2030-01-01","lat":133.5,"lng":1}`},
        {"cooling rate", "/v1/routes/1/optimize", `{"coolingRate":1.5}`},
        {"temperatures", "/v1/routes/1/optimize", `{"initialTemperature":10,"minTemperature":20}`},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            rr := do(t, h, http.MethodPost, tc.path, tc.body)
            require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
        })
    }
}

func TestShipmentUpdateKeepsCoordinates(t *testing.T) {
    h := newTestServer(t).Routes()
    rr := do(t, h, http.MethodPost, "/v1/shipments", `{"customer":"a","address":"Rabat","weight":2,"deadline":"2030-01-01","lat":34.02,"lng":-6.84}`)
    require.Equal(t, http.StatusCreated, rr.Code)

    rr = do(t, h, http.MethodPut, "/v1/shipments/1", `{"customer":"b","address":"Rabat","weight":3,"deadline":"2030-01-02T10:00:00Z"}`)
    require.Equal(t, 200, rr.Code, rr.Body.String())
    sh := decode[model.Shipment](t, rr)
    require.Equal(t, "b", sh.Customer)
    require.Equal(t, model.ShipmentInStock, sh.Status)
    require.NotNil(t, sh.Dest)

    rr = do(t, h, http.MethodPut, "/v1/shipments/1", `{"customer":"b","address":"Fes","weight":3,"deadline":"2030-01-02"}`)
    require.Equal(t, 200, rr.Code)
    require.Nil(t, decode[model.Shipment](t, rr).Dest)

    rr = do(t, h, http.MethodDelete, "/v1/shipments/1", "")
    require.Equal(t, http.StatusNoContent, rr.Code)
    rr = do(t, h, http.MethodGet, "/v1/shipments/1", "")
    require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGeocodeWithoutGeocoder(t *testing.T) {
    h := newTestServer(t).Routes()
    rr := do(t, h, http.MethodPost, "/v1/shipments/geocode", "")
    require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDepotAndPoints(t *testing.T) {
    h := newTestServer(t).Routes()
    rr := do(t, h, http.MethodGet, "/v1/depot", "")
    require.Equal(t, http.StatusNotFound, rr.Code)

    rr = do(t, h, http.MethodPut, "/v1/depot", `{"name":"Hub","address":"Casablanca","lat":33.5731,"lng":-7.5898}`)
    require.Equal(t, 200, rr.Code, rr.Body.String())
    rr = do(t, h, http.MethodGet, "/v1/depot", "")
    require.Equal(t, 200, rr.Code)
    require.Equal(t, "Hub", decode[model.Depot](t, rr).Name)

    seedFleet(t, h, 100)
    rr = do(t, h, http.MethodPost, "/v1/shipments", `{"customer":"nowhere","weight":1,"deadline":"2030-01-01"}`)
    require.Equal(t, http.StatusCreated, rr.Code)

    rr = do(t, h, http.MethodGet, "/v1/geo/points", "")
    require.Equal(t, 200, rr.Code)
    pts := decode[struct{ Items []planner.GeoPoint }](t, rr).Items
    require.Len(t, pts, 1+len(cities))
    require.Equal(t, "depot", pts[0].Kind)

    // with a depot the route starts and ends there
    rr = do(t, h, http.MethodPost, "/v1/assignments/run", "")
    require.Equal(t, 200, rr.Code)
    rr = do(t, h, http.MethodPost, "/v1/routes/1/optimize", `{"seed":3}`)
    require.Equal(t, 400, rr.Code, "unlocated shipment is in the load")
}

func TestDepotAtZeroCoordinates(t *testing.T) {
    h := newTestServer(t).Routes()
    // no geocoder configured, so (0,0) must be taken as given
    rr := do(t, h, http.MethodPut, "/v1/depot", `{"name":"Buoy","lat":0,"lng":0}`)
    require.Equal(t, 200, rr.Code, rr.Body.String())
    d := decode[model.Depot](t, rr)
    require.Equal(t, model.Coordinates{}, d.Coords)

    rr = do(t, h, http.MethodPut, "/v1/depot", `{"name":"Buoy"}`)
    require.Equal(t, 400, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
    h := Chain(newTestServer(t).Routes(), CORS([]string{"https://ops.example"}))
    req := httptest.NewRequest(http.MethodOptions, "/v1/vehicles", nil)
    req.Header.Set("Origin", "https://ops.example")
    req.Header.Set("Access-Control-Request-Method", "POST")
    rr := httptest.NewRecorder()
    h.ServeHTTP(rr, req)
    require.Equal(t, http.StatusNoContent, rr.Code)
    require.Equal(t, "https://ops.example", rr.Header().Get("Access-Control-Allow-Origin"))

    req = httptest.NewRequest(http.MethodGet, "/v1/vehicles", nil)
    req.Header.Set("Origin", "https://evil.example")
    rr = httptest.NewRecorder()
    h.ServeHTTP(rr, req)
    require.Equal(t, 200, rr.Code)
    require.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
    rl := NewRateLimiter(0.001, 1)
    h := Chain(newTestServer(t).Routes(), rl.Middleware)
    require.Equal(t, 200, do(t, h, http.MethodGet, "/v1/vehicles", "").Code)
    rr := do(t, h, http.MethodGet, "/v1/vehicles", "")
    require.Equal(t, http.StatusTooManyRequests, rr.Code)
    require.Equal(t, "1", rr.Header().Get("Retry-After"))
    require.Equal(t, 200, do(t, h, http.MethodGet, "/healthz", "").Code)
}

func TestRequestIDAndAccessLog(t *testing.T) {
    h := Chain(newTestServer(t).Routes(), RequestID, AccessLog)
    rr := do(t, h, http.MethodGet, "/v1/routes", "")
    require.Len(t, rr.Header().Get("X-Request-Id"), 36)

    req := httptest.NewRequest(http.MethodGet, "/v1/routes", nil)
    req.Header.Set("X-Request-Id", "abc-123")
    rr = httptest.NewRecorder()
    h.ServeHTTP(rr, req)
    require.Equal(t, "abc-123", rr.Header().Get("X-Request-Id"))
}

func TestMetricPath(t *testing.T) {
    require.Equal(t, "/v1/routes/:id/optimize", metricPath("/v1/routes/17/optimize"))
    require.Equal(t, "/v1/routes/optimize-all", metricPath("/v1/routes/optimize-all"))
}

func TestOpenAPIJSON(t *testing.T) {
    h := newTestServer(t).Routes()
    rr := do(t, h, http.MethodGet, "/openapi.json", "")
    require.Equal(t, 200, rr.Code)
    doc := decode[struct{ Paths map[string]any }](t, rr)
    for _, p := range []string{"/v1/assignments/run", "/v1/routes/{vehicleId}/optimize", "/v1/routes/optimize-all", "/v1/depot"} {
        require.Contains(t, doc.Paths, p)
    }
    rr = do(t, h, http.MethodGet, "/openapi.yaml", "")
    require.Equal(t, 200, rr.Code)
    require.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("openapi:")))
}

func TestEventsWebSocket(t *testing.T) {
    s := newTestServer(t)
    srv := httptest.NewServer(Chain(s.Routes(), RequestID, AccessLog))
    defer srv.Close()
    seedFleet(t, s.Routes(), 100)

    c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/events/ws", nil)
    require.NoError(t, err)
    defer func() { _ = c.Close() }()
    _ = c.SetReadDeadline(time.Now().Add(5 * time.Second))

    require.NoError(t, c.WriteJSON(wsMessage{Type: "connection_init"}))
    var m wsMessage
    require.NoError(t, c.ReadJSON(&m))
    require.Equal(t, "connection_ack", m.Type)

    require.NoError(t, c.WriteJSON(wsMessage{Type: "subscribe", ID: "1"}))
    // messages are handled in order, so the pong means the subscription is live
    require.NoError(t, c.WriteJSON(wsMessage{Type: "ping"}))
    require.NoError(t, c.ReadJSON(&m))
    require.Equal(t, "pong", m.Type)

    resp, err := http.Post(srv.URL+"/v1/assignments/run", "application/json", nil)
    require.NoError(t, err)
    _ = resp.Body.Close()
    require.Equal(t, 200, resp.StatusCode)

    require.NoError(t, c.ReadJSON(&m))
    require.Equal(t, "next", m.Type)
    require.Equal(t, "1", m.ID)
    var evt events.Event
    require.NoError(t, json.Unmarshal(m.Payload, &evt))
    require.Equal(t, events.TypeAssignmentCompleted, evt.Type)
    require.EqualValues(t, 4, evt.Data["placed"])

    require.NoError(t, c.WriteJSON(wsMessage{Type: "subscribe", ID: "1"}))
    require.NoError(t, c.ReadJSON(&m))
    require.Equal(t, "error", m.Type)
}
