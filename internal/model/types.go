package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// Core domain types

type ShipmentStatus string

const (
    ShipmentInStock   ShipmentStatus = "in_stock"
    ShipmentAssigned  ShipmentStatus = "assigned"
    ShipmentDelivered ShipmentStatus = "delivered"
)

type VehicleStatus string

const (
    VehicleAvailable    VehicleStatus = "available"
    VehicleOutOfService VehicleStatus = "out_of_service"
    VehicleOnDelivery   VehicleStatus = "on_delivery"
)

// Valid reports whether s is one of the known vehicle states.
func (s VehicleStatus) Valid() bool {
    switch s {
    case VehicleAvailable, VehicleOutOfService, VehicleOnDelivery:
        return true
    }
    return false
}

type Coordinates struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
}

type Shipment struct {
    ID       int64          `json:"id"`
    Customer string         `json:"customer"`
    Address  string         `json:"address"`
    Weight   float64        `json:"weight"`
    Deadline time.Time      `json:"deadline"`
    Dest     *Coordinates   `json:"dest,omitempty"`
    Status   ShipmentStatus `json:"status"`
}

type Vehicle struct {
    ID       int64         `json:"id"`
    Brand    string        `json:"brand"`
    Capacity float64       `json:"capacity"`
    Status   VehicleStatus `json:"status"`
}

type Depot struct {
    ID      int64       `json:"id"`
    Name    string      `json:"name"`
    Address string      `json:"address"`
    Coords  Coordinates `json:"coords"`
}

// AssignmentRun is the immutable result of one assignment run.
type AssignmentRun struct {
    ID         string             `json:"runId"`
    ExecutedAt time.Time          `json:"executedAt"`
    Loads      map[int64][]int64  `json:"assignment"`
    TotalValue float64            `json:"totalValue"`
    Stats      map[string]int64   `json:"stats,omitempty"`
}

// ShipmentsOf returns the shipment ids assigned to vehicleID, nil if none.
func (r AssignmentRun) ShipmentsOf(vehicleID int64) []int64 {
    return r.Loads[vehicleID]
}

// RunSummary is a history row grouped by run.
type RunSummary struct {
    RunID         string    `json:"runId"`
    ExecutedAt    time.Time `json:"executedAt"`
    Vehicles      []int64   `json:"vehicles"`
    ShipmentCount int       `json:"shipmentCount"`
    TotalWeight   float64   `json:"totalWeight"`
    TotalValue    float64   `json:"totalValue"`
}

// DepotStop marks the depot position inside Route.Stops. Shipment ids are positive.
const DepotStop int64 = 0

type Route struct {
    ID              string    `json:"routeId"`
    VehicleID       int64     `json:"vehicleId"`
    RunID           string    `json:"runId"`
    Stops           []int64   `json:"orderedPointIds"`
    TotalDistanceKm float64   `json:"totalDistanceKm"`
    EstimatedHours  float64   `json:"estimatedDurationHours"`
    Provider        string    `json:"provider"`
    CreatedAt       time.Time `json:"createdAt"`
}

// FleetStats summarizes the vehicle table.
type FleetStats struct {
    Total         int                   `json:"total"`
    ByStatus      map[VehicleStatus]int `json:"byStatus"`
    TotalCapacity float64               `json:"totalCapacity"`
}

// LoadOf sums shipment weights exactly. Float sums of many kg values drift enough
// to flip a capacity comparison at the boundary.
func LoadOf(weights ...float64) decimal.Decimal {
    sum := decimal.Zero
    for _, w := range weights {
        sum = sum.Add(decimal.NewFromFloat(w))
    }
    return sum
}

// Fits reports whether the summed weights fit within capacity.
func Fits(capacity float64, weights ...float64) bool {
    return LoadOf(weights...).LessThanOrEqual(decimal.NewFromFloat(capacity))
}
