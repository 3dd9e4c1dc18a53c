package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "cargoplan/internal/model"
)

type Postgres struct {
    db *sql.DB
}

// NewPostgres opens a pool over the pgx stdlib driver and checks it.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, fmt.Errorf("open postgres: %w", err)
    }
    db.SetMaxOpenConns(10)
    db.SetMaxIdleConns(5)
    db.SetConnMaxLifetime(30 * time.Minute)
    if err := db.PingContext(ctx); err != nil {
        db.Close()
        return nil, fmt.Errorf("ping postgres: %w", err)
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

const shipmentCols = `id, customer, address, weight, deadline, lat, lng, status`

type rowScanner interface{ Scan(dest ...any) error }

func scanShipment(r rowScanner) (model.Shipment, error) {
    var s model.Shipment
    var lat, lng sql.NullFloat64
    var status string
    if err := r.Scan(&s.ID, &s.Customer, &s.Address, &s.Weight, &s.Deadline, &lat, &lng, &status); err != nil {
        return s, err
    }
    s.Status = model.ShipmentStatus(status)
    if lat.Valid && lng.Valid { s.Dest = &model.Coordinates{Lat: lat.Float64, Lng: lng.Float64} }
    return s, nil
}

func coordArgs(c *model.Coordinates) (any, any) {
    if c == nil { return nil, nil }
    return c.Lat, c.Lng
}

func (p *Postgres) CreateShipment(ctx context.Context, in model.Shipment) (model.Shipment, error) {
    if in.Status == "" { in.Status = model.ShipmentInStock }
    lat, lng := coordArgs(in.Dest)
    row := p.db.QueryRowContext(ctx, `INSERT INTO shipments (customer, address, weight, deadline, lat, lng, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING `+shipmentCols,
        in.Customer, in.Address, in.Weight, in.Deadline, lat, lng, string(in.Status))
    s, err := scanShipment(row)
    if err != nil { return model.Shipment{}, fmt.Errorf("create shipment: %w", err) }
    return s, nil
}

func (p *Postgres) GetShipment(ctx context.Context, id int64) (model.Shipment, error) {
    s, err := scanShipment(p.db.QueryRowContext(ctx, `SELECT `+shipmentCols+` FROM shipments WHERE id=$1`, id))
    if errors.Is(err, sql.ErrNoRows) { return s, ErrNotFound }
    if err != nil { return s, fmt.Errorf("get shipment: %w", err) }
    return s, nil
}

func (p *Postgres) GetShipments(ctx context.Context, ids []int64) ([]model.Shipment, error) {
    if len(ids) == 0 { return []model.Shipment{}, nil }
    rows, err := p.db.QueryContext(ctx, `SELECT `+shipmentCols+` FROM shipments WHERE id = ANY($1)`, ids)
    if err != nil { return nil, fmt.Errorf("get shipments: %w", err) }
    defer rows.Close()
    byID := make(map[int64]model.Shipment, len(ids))
    for rows.Next() {
        s, err := scanShipment(rows)
        if err != nil { return nil, fmt.Errorf("get shipments: scan: %w", err) }
        byID[s.ID] = s
    }
    if err := rows.Err(); err != nil { return nil, fmt.Errorf("get shipments: %w", err) }
    out := make([]model.Shipment, 0, len(ids))
    for _, id := range ids {
        s, ok := byID[id]
        if !ok { return nil, fmt.Errorf("shipment %d: %w", id, ErrNotFound) }
        out = append(out, s)
    }
    return out, nil
}

func (p *Postgres) ListShipments(ctx context.Context, status model.ShipmentStatus) ([]model.Shipment, error) {
    var rows *sql.Rows
    var err error
    if status != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT `+shipmentCols+` FROM shipments WHERE status=$1 ORDER BY id`, string(status))
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT `+shipmentCols+` FROM shipments ORDER BY id`)
    }
    if err != nil { return nil, fmt.Errorf("list shipments: %w", err) }
    defer rows.Close()
    out := []model.Shipment{}
    for rows.Next() {
        s, err := scanShipment(rows)
        if err != nil { return nil, fmt.Errorf("list shipments: scan: %w", err) }
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) UpdateShipment(ctx context.Context, s model.Shipment) (model.Shipment, error) {
    lat, lng := coordArgs(s.Dest)
    row := p.db.QueryRowContext(ctx, `UPDATE shipments SET customer=$2, address=$3, weight=$4, deadline=$5, lat=$6, lng=$7, status=$8
        WHERE id=$1 RETURNING `+shipmentCols,
        s.ID, s.Customer, s.Address, s.Weight, s.Deadline, lat, lng, string(s.Status))
    out, err := scanShipment(row)
    if errors.Is(err, sql.ErrNoRows) { return out, ErrNotFound }
    if err != nil { return out, fmt.Errorf("update shipment: %w", err) }
    return out, nil
}

func (p *Postgres) DeleteShipment(ctx context.Context, id int64) error {
    return p.execOne(ctx, "delete shipment", `DELETE FROM shipments WHERE id=$1`, id)
}

func (p *Postgres) SetShipmentCoordinates(ctx context.Context, id int64, c model.Coordinates) error {
    return p.execOne(ctx, "set shipment coordinates", `UPDATE shipments SET lat=$2, lng=$3 WHERE id=$1`, id, c.Lat, c.Lng)
}

// execOne runs a statement expected to touch exactly one row.
func (p *Postgres) execOne(ctx context.Context, op, q string, args ...any) error {
    res, err := p.db.ExecContext(ctx, q, args...)
    if err != nil { return fmt.Errorf("%s: %w", op, err) }
    n, err := res.RowsAffected()
    if err != nil { return fmt.Errorf("%s: %w", op, err) }
    if n == 0 { return ErrNotFound }
    return nil
}

const vehicleCols = `id, brand, capacity, status`

func scanVehicle(r rowScanner) (model.Vehicle, error) {
    var v model.Vehicle
    var status string
    err := r.Scan(&v.ID, &v.Brand, &v.Capacity, &status)
    v.Status = model.VehicleStatus(status)
    return v, err
}

func (p *Postgres) CreateVehicle(ctx context.Context, in model.Vehicle) (model.Vehicle, error) {
    if in.Status == "" { in.Status = model.VehicleAvailable }
    v, err := scanVehicle(p.db.QueryRowContext(ctx, `INSERT INTO vehicles (brand, capacity, status) VALUES ($1,$2,$3) RETURNING `+vehicleCols,
        in.Brand, in.Capacity, string(in.Status)))
    if err != nil { return model.Vehicle{}, fmt.Errorf("create vehicle: %w", err) }
    return v, nil
}

func (p *Postgres) GetVehicle(ctx context.Context, id int64) (model.Vehicle, error) {
    v, err := scanVehicle(p.db.QueryRowContext(ctx, `SELECT `+vehicleCols+` FROM vehicles WHERE id=$1`, id))
    if errors.Is(err, sql.ErrNoRows) { return v, ErrNotFound }
    if err != nil { return v, fmt.Errorf("get vehicle: %w", err) }
    return v, nil
}

func (p *Postgres) ListVehicles(ctx context.Context, status model.VehicleStatus) ([]model.Vehicle, error) {
    var rows *sql.Rows
    var err error
    if status != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT `+vehicleCols+` FROM vehicles WHERE status=$1 ORDER BY id`, string(status))
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT `+vehicleCols+` FROM vehicles ORDER BY id`)
    }
    if err != nil { return nil, fmt.Errorf("list vehicles: %w", err) }
    defer rows.Close()
    out := []model.Vehicle{}
    for rows.Next() {
        v, err := scanVehicle(rows)
        if err != nil { return nil, fmt.Errorf("list vehicles: scan: %w", err) }
        out = append(out, v)
    }
    return out, rows.Err()
}

func (p *Postgres) UpdateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
    out, err := scanVehicle(p.db.QueryRowContext(ctx, `UPDATE vehicles SET brand=$2, capacity=$3, status=$4 WHERE id=$1 RETURNING `+vehicleCols,
        v.ID, v.Brand, v.Capacity, string(v.Status)))
    if errors.Is(err, sql.ErrNoRows) { return out, ErrNotFound }
    if err != nil { return out, fmt.Errorf("update vehicle: %w", err) }
    return out, nil
}

func (p *Postgres) DeleteVehicle(ctx context.Context, id int64) error {
    return p.execOne(ctx, "delete vehicle", `DELETE FROM vehicles WHERE id=$1`, id)
}

func (p *Postgres) FleetStats(ctx context.Context) (model.FleetStats, error) {
    st := model.FleetStats{ByStatus: map[model.VehicleStatus]int{
        model.VehicleAvailable: 0, model.VehicleOnDelivery: 0, model.VehicleOutOfService: 0,
    }}
    rows, err := p.db.QueryContext(ctx, `SELECT status, COUNT(*), COALESCE(SUM(capacity),0) FROM vehicles GROUP BY status`)
    if err != nil { return st, fmt.Errorf("fleet stats: %w", err) }
    defer rows.Close()
    for rows.Next() {
        var status string
        var n int
        var capSum float64
        if err := rows.Scan(&status, &n, &capSum); err != nil { return st, fmt.Errorf("fleet stats: scan: %w", err) }
        st.ByStatus[model.VehicleStatus(status)] = n
        st.Total += n
        st.TotalCapacity += capSum
    }
    return st, rows.Err()
}

func (p *Postgres) GetDepot(ctx context.Context) (model.Depot, error) {
    var d model.Depot
    err := p.db.QueryRowContext(ctx, `SELECT id, name, address, lat, lng FROM depots ORDER BY id LIMIT 1`).
        Scan(&d.ID, &d.Name, &d.Address, &d.Coords.Lat, &d.Coords.Lng)
    if errors.Is(err, sql.ErrNoRows) { return d, ErrNotFound }
    if err != nil { return d, fmt.Errorf("get depot: %w", err) }
    return d, nil
}

func (p *Postgres) SaveDepot(ctx context.Context, d model.Depot) (model.Depot, error) {
    d.ID = 1
    _, err := p.db.ExecContext(ctx, `INSERT INTO depots (id, name, address, lat, lng) VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO UPDATE SET name=excluded.name, address=excluded.address, lat=excluded.lat, lng=excluded.lng`,
        d.ID, d.Name, d.Address, d.Coords.Lat, d.Coords.Lng)
    if err != nil { return model.Depot{}, fmt.Errorf("save depot: %w", err) }
    return d, nil
}

// SaveAssignment writes the run header, one row per placed shipment and the
// shipment status flips in a single transaction.
func (p *Postgres) SaveAssignment(ctx context.Context, run model.AssignmentRun) error {
    runID, err := uuid.Parse(run.ID)
    if err != nil { return fmt.Errorf("save assignment: run id: %w", err) }
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return fmt.Errorf("save assignment: begin: %w", err) }
    defer func(){ _ = tx.Rollback() }()

    for vid := range run.Loads {
        var one int
        err := tx.QueryRowContext(ctx, `SELECT 1 FROM vehicles WHERE id=$1`, vid).Scan(&one)
        if errors.Is(err, sql.ErrNoRows) { return fmt.Errorf("vehicle %d: %w", vid, ErrNotFound) }
        if err != nil { return fmt.Errorf("save assignment: vehicle %d: %w", vid, err) }
    }
    if _, err := tx.ExecContext(ctx, `INSERT INTO assignment_runs (id, executed_at, total_value, stats) VALUES ($1,$2,$3,$4)`,
        runID, run.ExecutedAt, run.TotalValue, toJSON(run.Stats)); err != nil {
        return fmt.Errorf("save assignment: insert run: %w", err)
    }
    for vid, ids := range run.Loads {
        for pos, sid := range ids {
            res, err := tx.ExecContext(ctx, `INSERT INTO assignments (run_id, vehicle_id, shipment_id, position, weight)
                SELECT $1, $2, id, $4, weight FROM shipments WHERE id=$3`, runID, vid, sid, pos)
            if err != nil { return fmt.Errorf("save assignment: insert shipment %d: %w", sid, err) }
            if n, _ := res.RowsAffected(); n == 0 { return fmt.Errorf("shipment %d: %w", sid, ErrNotFound) }
            if _, err := tx.ExecContext(ctx, `UPDATE shipments SET status=$2 WHERE id=$1`, sid, string(model.ShipmentAssigned)); err != nil {
                return fmt.Errorf("save assignment: mark shipment %d: %w", sid, err)
            }
        }
    }
    if err := tx.Commit(); err != nil { return fmt.Errorf("save assignment: commit: %w", err) }
    return nil
}

func (p *Postgres) LatestAssignment(ctx context.Context) (model.AssignmentRun, error) {
    var run model.AssignmentRun
    var stats []byte
    err := p.db.QueryRowContext(ctx, `SELECT id::text, executed_at, total_value, stats FROM assignment_runs ORDER BY seq DESC LIMIT 1`).
        Scan(&run.ID, &run.ExecutedAt, &run.TotalValue, &stats)
    if errors.Is(err, sql.ErrNoRows) { return run, ErrNotFound }
    if err != nil { return run, fmt.Errorf("latest assignment: %w", err) }
    if run.Stats, err = decodeStats(stats); err != nil { return run, fmt.Errorf("latest assignment: %w", err) }

    rows, err := p.db.QueryContext(ctx, `SELECT vehicle_id, shipment_id FROM assignments WHERE run_id=$1 ORDER BY vehicle_id, position`, run.ID)
    if err != nil { return run, fmt.Errorf("latest assignment: rows: %w", err) }
    defer rows.Close()
    run.Loads = map[int64][]int64{}
    for rows.Next() {
        var vid, sid int64
        if err := rows.Scan(&vid, &sid); err != nil { return run, fmt.Errorf("latest assignment: scan: %w", err) }
        run.Loads[vid] = append(run.Loads[vid], sid)
    }
    return run, rows.Err()
}

func (p *Postgres) ListAssignmentRuns(ctx context.Context, limit int) ([]model.RunSummary, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    rows, err := p.db.QueryContext(ctx, `SELECT r.id::text, r.executed_at, r.total_value,
            COALESCE(json_agg(DISTINCT a.vehicle_id) FILTER (WHERE a.vehicle_id IS NOT NULL), '[]'),
            COUNT(a.shipment_id), COALESCE(SUM(a.weight),0)
        FROM assignment_runs r LEFT JOIN assignments a ON a.run_id = r.id
        GROUP BY r.seq, r.id, r.executed_at, r.total_value
        ORDER BY r.seq DESC LIMIT $1`, limit)
    if err != nil { return nil, fmt.Errorf("list assignment runs: %w", err) }
    defer rows.Close()
    out := []model.RunSummary{}
    for rows.Next() {
        var s model.RunSummary
        var vehicles []byte
        if err := rows.Scan(&s.RunID, &s.ExecutedAt, &s.TotalValue, &vehicles, &s.ShipmentCount, &s.TotalWeight); err != nil {
            return nil, fmt.Errorf("list assignment runs: scan: %w", err)
        }
        s.Vehicles = []int64{}
        if err := json.Unmarshal(vehicles, &s.Vehicles); err != nil {
            return nil, fmt.Errorf("list assignment runs: decode vehicles: %w", err)
        }
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) SaveRoute(ctx context.Context, r model.Route) error {
    if r.CreatedAt.IsZero() { r.CreatedAt = time.Now().UTC() }
    var runID any
    if r.RunID != "" { runID = r.RunID }
    _, err := p.db.ExecContext(ctx, `INSERT INTO routes (id, vehicle_id, run_id, stops, total_distance_km, estimated_hours, provider, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
        r.ID, r.VehicleID, runID, toJSON(r.Stops), r.TotalDistanceKm, r.EstimatedHours, r.Provider, r.CreatedAt)
    if err != nil { return fmt.Errorf("save route: %w", err) }
    return nil
}

const routeCols = `id::text, vehicle_id, COALESCE(run_id::text,''), stops, total_distance_km, estimated_hours, provider, created_at`

func scanRoute(r rowScanner) (model.Route, error) {
    var rt model.Route
    var stops []byte
    if err := r.Scan(&rt.ID, &rt.VehicleID, &rt.RunID, &stops, &rt.TotalDistanceKm, &rt.EstimatedHours, &rt.Provider, &rt.CreatedAt); err != nil {
        return rt, err
    }
    if err := json.Unmarshal(stops, &rt.Stops); err != nil { return rt, fmt.Errorf("decode stops: %w", err) }
    return rt, nil
}

func (p *Postgres) LatestRoute(ctx context.Context, vehicleID int64) (model.Route, error) {
    rt, err := scanRoute(p.db.QueryRowContext(ctx, `SELECT `+routeCols+` FROM routes WHERE vehicle_id=$1 ORDER BY seq DESC LIMIT 1`, vehicleID))
    if errors.Is(err, sql.ErrNoRows) { return rt, ErrNotFound }
    if err != nil { return rt, fmt.Errorf("latest route: %w", err) }
    return rt, nil
}

func (p *Postgres) ListRoutes(ctx context.Context) ([]model.Route, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT `+routeCols+` FROM routes ORDER BY seq DESC`)
    if err != nil { return nil, fmt.Errorf("list routes: %w", err) }
    defer rows.Close()
    out := []model.Route{}
    for rows.Next() {
        rt, err := scanRoute(rows)
        if err != nil { return nil, fmt.Errorf("list routes: scan: %w", err) }
        out = append(out, rt)
    }
    return out, rows.Err()
}

// decodeStats reads the stats column. NULL yields a nil map.
func decodeStats(raw []byte) (map[string]int64, error) {
    if len(raw) == 0 { return nil, nil }
    var st map[string]int64
    if err := json.Unmarshal(raw, &st); err != nil { return nil, fmt.Errorf("decode stats: %w", err) }
    return st, nil
}

func toJSON(v any) []byte {
    if v == nil { return nil }
    b, _ := json.Marshal(v)
    return b
}
