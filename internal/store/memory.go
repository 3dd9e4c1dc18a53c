package store

import (
    "context"
    "fmt"
    "sort"
    "sync"
    "time"

    "cargoplan/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu        sync.Mutex
    shipments map[int64]model.Shipment
    vehicles  map[int64]model.Vehicle
    depot     *model.Depot
    runs      []memRun      // oldest first
    routes    []model.Route         // oldest first
    nextShip  int64
    nextVeh   int64
}

// memRun keeps the shipment weights as they were when the run was saved.
type memRun struct {
    run    model.AssignmentRun
    weight float64
}

func NewMemory() *Memory {
    return &Memory{
        shipments: map[int64]model.Shipment{},
        vehicles:  map[int64]model.Vehicle{},
    }
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) CreateShipment(ctx context.Context, in model.Shipment) (model.Shipment, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    m.nextShip++
    in.ID = m.nextShip
    if in.Status == "" { in.Status = model.ShipmentInStock }
    in.Dest = copyCoords(in.Dest)
    m.shipments[in.ID] = in
    return in, nil
}

func (m *Memory) GetShipment(ctx context.Context, id int64) (model.Shipment, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s, ok := m.shipments[id]
    if !ok { return model.Shipment{}, ErrNotFound }
    s.Dest = copyCoords(s.Dest)
    return s, nil
}

func (m *Memory) GetShipments(ctx context.Context, ids []int64) ([]model.Shipment, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := make([]model.Shipment, 0, len(ids))
    for _, id := range ids {
        s, ok := m.shipments[id]
        if !ok { return nil, fmt.Errorf("shipment %d: %w", id, ErrNotFound) }
        s.Dest = copyCoords(s.Dest)
        out = append(out, s)
    }
    return out, nil
}

func (m *Memory) ListShipments(ctx context.Context, status model.ShipmentStatus) ([]model.Shipment, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Shipment{}
    for _, s := range m.shipments {
        if status != "" && s.Status != status { continue }
        s.Dest = copyCoords(s.Dest)
        out = append(out, s)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (m *Memory) UpdateShipment(ctx context.Context, s model.Shipment) (model.Shipment, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.shipments[s.ID]; !ok { return model.Shipment{}, ErrNotFound }
    s.Dest = copyCoords(s.Dest)
    m.shipments[s.ID] = s
    return s, nil
}

func (m *Memory) DeleteShipment(ctx context.Context, id int64) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.shipments[id]; !ok { return ErrNotFound }
    delete(m.shipments, id)
    return nil
}

func (m *Memory) SetShipmentCoordinates(ctx context.Context, id int64, c model.Coordinates) error {
    m.mu.Lock(); defer m.mu.Unlock()
    s, ok := m.shipments[id]
    if !ok { return ErrNotFound }
    s.Dest = &model.Coordinates{Lat: c.Lat, Lng: c.Lng}
    m.shipments[id] = s
    return nil
}

func (m *Memory) CreateVehicle(ctx context.Context, in model.Vehicle) (model.Vehicle, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    m.nextVeh++
    in.ID = m.nextVeh
    if in.Status == "" { in.Status = model.VehicleAvailable }
    m.vehicles[in.ID] = in
    return in, nil
}

func (m *Memory) GetVehicle(ctx context.Context, id int64) (model.Vehicle, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    v, ok := m.vehicles[id]
    if !ok { return model.Vehicle{}, ErrNotFound }
    return v, nil
}

func (m *Memory) ListVehicles(ctx context.Context, status model.VehicleStatus) ([]model.Vehicle, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Vehicle{}
    for _, v := range m.vehicles {
        if status != "" && v.Status != status { continue }
        out = append(out, v)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (m *Memory) UpdateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.vehicles[v.ID]; !ok { return model.Vehicle{}, ErrNotFound }
    m.vehicles[v.ID] = v
    return v, nil
}

func (m *Memory) DeleteVehicle(ctx context.Context, id int64) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.vehicles[id]; !ok { return ErrNotFound }
    delete(m.vehicles, id)
    return nil
}

func (m *Memory) FleetStats(ctx context.Context) (model.FleetStats, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    st := model.FleetStats{ByStatus: map[model.VehicleStatus]int{
        model.VehicleAvailable: 0, model.VehicleOnDelivery: 0, model.VehicleOutOfService: 0,
    }}
    caps := make([]float64, 0, len(m.vehicles))
    for _, v := range m.vehicles {
        st.Total++
        st.ByStatus[v.Status]++
        caps = append(caps, v.Capacity)
    }
    st.TotalCapacity = model.LoadOf(caps...).InexactFloat64()
    return st, nil
}

func (m *Memory) GetDepot(ctx context.Context) (model.Depot, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if m.depot == nil { return model.Depot{}, ErrNotFound }
    return *m.depot, nil
}

func (m *Memory) SaveDepot(ctx context.Context, d model.Depot) (model.Depot, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    d.ID = 1
    m.depot = &d
    return d, nil
}

func (m *Memory) SaveAssignment(ctx context.Context, run model.AssignmentRun) error {
    m.mu.Lock(); defer m.mu.Unlock()
    // validate first so a bad run leaves nothing behind
    for vid, ids := range run.Loads {
        if _, ok := m.vehicles[vid]; !ok { return fmt.Errorf("vehicle %d: %w", vid, ErrNotFound) }
        for _, id := range ids {
            if _, ok := m.shipments[id]; !ok { return fmt.Errorf("shipment %d: %w", id, ErrNotFound) }
        }
    }
    var weights []float64
    for _, ids := range run.Loads {
        for _, id := range ids {
            s := m.shipments[id]
            weights = append(weights, s.Weight)
            s.Status = model.ShipmentAssigned
            m.shipments[id] = s
        }
    }
    m.runs = append(m.runs, memRun{run: copyRun(run), weight: model.LoadOf(weights...).InexactFloat64()})
    return nil
}

func (m *Memory) LatestAssignment(ctx context.Context) (model.AssignmentRun, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if len(m.runs) == 0 { return model.AssignmentRun{}, ErrNotFound }
    return copyRun(m.runs[len(m.runs)-1].run), nil
}

func (m *Memory) ListAssignmentRuns(ctx context.Context, limit int) ([]model.RunSummary, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 || limit > 500 { limit = 100 }
    out := []model.RunSummary{}
    for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
        r := m.runs[i].run
        sum := model.RunSummary{RunID: r.ID, ExecutedAt: r.ExecutedAt, TotalValue: r.TotalValue, Vehicles: []int64{}, TotalWeight: m.runs[i].weight}
        for vid, ids := range r.Loads {
            sum.Vehicles = append(sum.Vehicles, vid)
            sum.ShipmentCount += len(ids)
        }
        sort.Slice(sum.Vehicles, func(a, b int) bool { return sum.Vehicles[a] < sum.Vehicles[b] })
        out = append(out, sum)
    }
    return out, nil
}

func (m *Memory) SaveRoute(ctx context.Context, r model.Route) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if r.CreatedAt.IsZero() { r.CreatedAt = time.Now().UTC() }
    r.Stops = append([]int64(nil), r.Stops...)
    m.routes = append(m.routes, r)
    return nil
}

func (m *Memory) LatestRoute(ctx context.Context, vehicleID int64) (model.Route, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    for i := len(m.routes) - 1; i >= 0; i-- {
        if m.routes[i].VehicleID == vehicleID {
            r := m.routes[i]
            r.Stops = append([]int64(nil), r.Stops...)
            return r, nil
        }
    }
    return model.Route{}, ErrNotFound
}

func (m *Memory) ListRoutes(ctx context.Context) ([]model.Route, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := make([]model.Route, 0, len(m.routes))
    for i := len(m.routes) - 1; i >= 0; i-- {
        r := m.routes[i]
        r.Stops = append([]int64(nil), r.Stops...)
        out = append(out, r)
    }
    return out, nil
}

func copyCoords(c *model.Coordinates) *model.Coordinates {
    if c == nil { return nil }
    cc := *c
    return &cc
}

func copyRun(r model.AssignmentRun) model.AssignmentRun {
    loads := make(map[int64][]int64, len(r.Loads))
    for k, v := range r.Loads { loads[k] = append([]int64(nil), v...) }
    r.Loads = loads
    if r.Stats != nil {
        st := make(map[string]int64, len(r.Stats))
        for k, v := range r.Stats { st[k] = v }
        r.Stats = st
    }
    return r
}
