package store

import (
    "context"
    "errors"

    "cargoplan/internal/model"
)

// Store is the persistence interface used by the planner and the API server.
type Store interface {
    // Shipments
    CreateShipment(ctx context.Context, in model.Shipment) (model.Shipment, error)
    GetShipment(ctx context.Context, id int64) (model.Shipment, error)
    // GetShipments returns the shipments with the given ids in the same order.
    // A missing id is ErrNotFound.
    GetShipments(ctx context.Context, ids []int64) ([]model.Shipment, error)
    // ListShipments returns shipments ordered by id. Empty status lists all.
    ListShipments(ctx context.Context, status model.ShipmentStatus) ([]model.Shipment, error)
    UpdateShipment(ctx context.Context, s model.Shipment) (model.Shipment, error)
    DeleteShipment(ctx context.Context, id int64) error
    SetShipmentCoordinates(ctx context.Context, id int64, c model.Coordinates) error

    // Vehicles
    CreateVehicle(ctx context.Context, in model.Vehicle) (model.Vehicle, error)
    GetVehicle(ctx context.Context, id int64) (model.Vehicle, error)
    // ListVehicles returns vehicles ordered by id. Empty status lists all.
    ListVehicles(ctx context.Context, status model.VehicleStatus) ([]model.Vehicle, error)
    UpdateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error)
    DeleteVehicle(ctx context.Context, id int64) error
    FleetStats(ctx context.Context) (model.FleetStats, error)

    // Depot
    GetDepot(ctx context.Context) (model.Depot, error)
    SaveDepot(ctx context.Context, d model.Depot) (model.Depot, error)

    // Assignment runs. SaveAssignment stores the run and flags every listed
    // shipment as assigned, all or nothing.
    SaveAssignment(ctx context.Context, run model.AssignmentRun) error
    LatestAssignment(ctx context.Context) (model.AssignmentRun, error)
    ListAssignmentRuns(ctx context.Context, limit int) ([]model.RunSummary, error)

    // Routes
    SaveRoute(ctx context.Context, r model.Route) error
    LatestRoute(ctx context.Context, vehicleID int64) (model.Route, error)
    // ListRoutes returns every stored route, newest first.
    ListRoutes(ctx context.Context) ([]model.Route, error)

    Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")
