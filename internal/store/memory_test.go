package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cargoplan/internal/model"
)

func seedMemory(t *testing.T) (*Memory, model.Vehicle, []model.Shipment) {
	t.Helper()
	ctx := context.Background()
	m := NewMemory()
	v, err := m.CreateVehicle(ctx, model.Vehicle{Brand: "Renault", Capacity: 10})
	require.NoError(t, err)
	var ships []model.Shipment
	for i, w := range []float64{4, 6, 3} {
		s, err := m.CreateShipment(ctx, model.Shipment{Customer: "c", Weight: w, Deadline: time.Now().Add(time.Duration(i+1) * time.Hour)})
		require.NoError(t, err)
		ships = append(ships, s)
	}
	return m, v, ships
}

func TestMemoryDefaults(t *testing.T) {
	m, v, ships := seedMemory(t)
	require.Equal(t, model.VehicleAvailable, v.Status)
	require.Equal(t, int64(1), ships[0].ID)
	require.Equal(t, model.ShipmentInStock, ships[0].Status)

	got, err := m.ListShipments(context.Background(), model.ShipmentInStock)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Less(t, got[0].ID, got[1].ID)
}

func TestMemorySaveAssignmentMarksShipments(t *testing.T) {
	m, v, ships := seedMemory(t)
	ctx := context.Background()
	run := model.AssignmentRun{ID: "r1", ExecutedAt: time.Now(), TotalValue: 2, Loads: map[int64][]int64{v.ID: {ships[0].ID, ships[1].ID}}}
	require.NoError(t, m.SaveAssignment(ctx, run))

	pending, err := m.ListShipments(ctx, model.ShipmentInStock)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, ships[2].ID, pending[0].ID)

	latest, err := m.LatestAssignment(ctx)
	require.NoError(t, err)
	require.Equal(t, run.Loads, latest.Loads)

	// callers cannot mutate stored state through the returned map
	latest.Loads[v.ID][0] = 99
	again, err := m.LatestAssignment(ctx)
	require.NoError(t, err)
	require.Equal(t, ships[0].ID, again.Loads[v.ID][0])

	hist, err := m.ListAssignmentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Equal(t, 2, hist[0].ShipmentCount)
	require.Equal(t, 10.0, hist[0].TotalWeight)
	require.Equal(t, []int64{v.ID}, hist[0].Vehicles)
}

func TestMemorySaveAssignmentAllOrNothing(t *testing.T) {
	m, v, ships := seedMemory(t)
	ctx := context.Background()
	run := model.AssignmentRun{ID: "bad", Loads: map[int64][]int64{v.ID: {ships[0].ID, 404}}}
	require.ErrorIs(t, m.SaveAssignment(ctx, run), ErrNotFound)

	s, err := m.GetShipment(ctx, ships[0].ID)
	require.NoError(t, err)
	require.Equal(t, model.ShipmentInStock, s.Status)
	_, err = m.LatestAssignment(ctx)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRoutesLatestPerVehicle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.SaveRoute(ctx, model.Route{ID: "a", VehicleID: 1, Stops: []int64{0, 1, 2}}))
	require.NoError(t, m.SaveRoute(ctx, model.Route{ID: "b", VehicleID: 2, Stops: []int64{3, 4}}))
	require.NoError(t, m.SaveRoute(ctx, model.Route{ID: "c", VehicleID: 1, Stops: []int64{0, 2, 1}}))

	r, err := m.LatestRoute(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "c", r.ID)
	_, err = m.LatestRoute(ctx, 3)
	require.ErrorIs(t, err, ErrNotFound)

	all, err := m.ListRoutes(ctx)
	require.NoError(t, err)
	require.Equal(t, "c", all[0].ID)
	require.Len(t, all, 3)
}

func TestMemoryFleetStatsAndDepot(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, err := m.CreateVehicle(ctx, model.Vehicle{Brand: "a", Capacity: 0.1})
	require.NoError(t, err)
	_, err = m.CreateVehicle(ctx, model.Vehicle{Brand: "b", Capacity: 0.2, Status: model.VehicleOutOfService})
	require.NoError(t, err)

	st, err := m.FleetStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, st.Total)
	require.Equal(t, 1, st.ByStatus[model.VehicleOutOfService])
	require.Equal(t, 0.3, st.TotalCapacity)

	_, err = m.GetDepot(ctx)
	require.ErrorIs(t, err, ErrNotFound)
	d, err := m.SaveDepot(ctx, model.Depot{Name: "Casa", Coords: model.Coordinates{Lat: 33.57, Lng: -7.58}})
	require.NoError(t, err)
	require.Equal(t, int64(1), d.ID)
}

func TestMemoryCoordinatesAndDelete(t *testing.T) {
	m, v, ships := seedMemory(t)
	ctx := context.Background()
	require.NoError(t, m.SetShipmentCoordinates(ctx, ships[0].ID, model.Coordinates{Lat: 1, Lng: 2}))
	s, err := m.GetShipment(ctx, ships[0].ID)
	require.NoError(t, err)
	require.Equal(t, &model.Coordinates{Lat: 1, Lng: 2}, s.Dest)

	require.ErrorIs(t, m.SetShipmentCoordinates(ctx, 404, model.Coordinates{}), ErrNotFound)
	require.NoError(t, m.DeleteVehicle(ctx, v.ID))
	require.ErrorIs(t, m.DeleteVehicle(ctx, v.ID), ErrNotFound)

	_, err = m.GetShipments(ctx, []int64{ships[1].ID, 404})
	require.ErrorIs(t, err, ErrNotFound)
}
