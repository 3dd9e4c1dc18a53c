package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cargoplan/internal/events"
	"cargoplan/internal/geo"
	"cargoplan/internal/metrics"
	"cargoplan/internal/model"
	"cargoplan/internal/obs"
	"cargoplan/internal/opt"
	"cargoplan/internal/store"
)

// OptimizeRoute orders the shipments the latest assignment gave vehicleID
// into a short closed tour, starting at the depot when one is configured,
// and stores it as the vehicle's current route.
func (p *Planner) OptimizeRoute(ctx context.Context, vehicleID int64, o RouteOptions) (model.Route, error) {
	return p.optimizeRoute(ctx, nil, vehicleID, o)
}

// optimizeRoute routes vehicleID against run, or against the latest run
// when run is nil.
func (p *Planner) optimizeRoute(ctx context.Context, run *model.AssignmentRun, vehicleID int64, o RouteOptions) (route model.Route, err error) {
	const op = "optimize_route"
	defer obs.Time(ctx, "planner."+op)(&err)
	provider := p.provider.Name()
	defer func() {
		switch {
		case errors.Is(err, ErrNothingToRoute):
			metrics.RouteRuns.WithLabelValues(provider, "skipped").Inc()
		case err != nil:
			metrics.RouteRuns.WithLabelValues(provider, "error").Inc()
		default:
			metrics.RouteRuns.WithLabelValues(provider, "ok").Inc()
		}
	}()

	sctx, cancel := p.storeCtx(ctx)
	defer cancel()
	if _, err := p.store.GetVehicle(sctx, vehicleID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return route, &PreconditionError{Op: op, Reason: fmt.Sprintf("vehicle %d not found", vehicleID), Err: err}
		}
		return route, &PersistenceError{Op: op, Err: err}
	}
	if run == nil {
		latest, err := p.store.LatestAssignment(sctx)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return route, &PersistenceError{Op: op, Err: err}
		}
		run = &latest
	}
	ids := run.ShipmentsOf(vehicleID)
	if len(ids) < 2 {
		p.publish(events.TypeRouteSkipped, map[string]any{"vehicleId": vehicleID, "shipments": len(ids)},
			events.TopicRuns, events.VehicleTopic(vehicleID))
		return route, ErrNothingToRoute
	}
	shipments, err := p.store.GetShipments(sctx, ids)
	if errors.Is(err, store.ErrNotFound) {
		return route, &PreconditionError{Op: op, Reason: "assigned shipment no longer exists: " + err.Error(), Err: err}
	}
	if err != nil {
		return route, &PersistenceError{Op: op, Err: err}
	}
	var missing []string
	for _, s := range shipments {
		if s.Dest == nil {
			missing = append(missing, fmt.Sprint(s.ID))
		}
	}
	if len(missing) > 0 {
		return route, &PreconditionError{Op: op, Reason: "shipments without coordinates: " + strings.Join(missing, ", ")}
	}
	depot, err := p.store.GetDepot(sctx)
	withDepot := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return route, &PersistenceError{Op: op, Err: err}
	}
	cancel()

	// matrix index -> stop id; the depot, when present, is index 0
	var points []model.Coordinates
	var stopIDs []int64
	if withDepot {
		points = append(points, depot.Coords)
		stopIDs = append(stopIDs, model.DepotStop)
	}
	for _, s := range shipments {
		points = append(points, *s.Dest)
		stopIDs = append(stopIDs, s.ID)
	}

	rctx, rcancel := p.routingCtx(ctx)
	m, source, err := geo.BuildMatrix(rctx, p.provider, points)
	rcancel()
	if err != nil {
		return route, &ExternalProviderError{Op: op, Provider: provider, Err: err}
	}
	provider = source

	idx := make([]int, len(points))
	for i := range idx {
		idx[i] = i
	}
	tour, stats, err := opt.Anneal(m, idx, p.annealOptions(o, withDepot))
	if err != nil {
		return route, &PreconditionError{Op: op, Reason: err.Error()}
	}
	metrics.AnnealIterations.Observe(float64(stats.Iterations))
	order := tour.Order
	passes := o.TwoOptPasses
	if passes == 0 {
		passes = p.settings.TwoOptPasses
	}
	if passes > 0 {
		order = opt.TwoOpt(m, order, passes)
	}
	if withDepot {
		order = opt.Rotate(order, 0)
	}
	dist := opt.TourLength(m, order)
	metrics.RouteDistance.Observe(dist)

	speed := p.settings.AvgSpeedKmh
	if withDepot {
		speed = p.settings.DepotAvgSpeedKmh
	}
	stops := make([]int64, len(order))
	for i, k := range order {
		stops[i] = stopIDs[k]
	}
	km := round2(dist)
	route = model.Route{
		ID:              uuid.NewString(),
		VehicleID:       vehicleID,
		RunID:           run.ID,
		Stops:           stops,
		TotalDistanceKm: km,
		EstimatedHours:  round2(km / speed),
		Provider:        source,
		CreatedAt:       p.now().UTC(),
	}

	sctx, cancel = p.storeCtx(ctx)
	defer cancel()
	if err := p.store.SaveRoute(sctx, route); err != nil {
		return model.Route{}, &PersistenceError{Op: op, Err: err}
	}

	obs.Logger(ctx).Info().Int64("vehicle_id", vehicleID).Str("route_id", route.ID).Str("provider", source).
		Int("stops", len(stops)).Float64("km", route.TotalDistanceKm).Int("iterations", stats.Iterations).
		Float64("initial_km", round2(stats.InitialLength)).Msg("route optimized")
	p.publish(events.TypeRouteOptimized, map[string]any{
		"vehicleId": vehicleID, "routeId": route.ID, "totalDistanceKm": route.TotalDistanceKm,
	}, events.TopicRuns, events.VehicleTopic(vehicleID))
	return route, nil
}

// Route outcome states reported by OptimizeAllRoutes.
const (
	OutcomeOptimized      = "optimized"
	OutcomeNothingToRoute = "nothing_to_route"
	OutcomeFailed         = "error"
)

type RouteOutcome struct {
	VehicleID int64        `json:"vehicleId"`
	Status    string       `json:"status"`
	Route     *model.Route `json:"route,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// OptimizeAllRoutes routes every vehicle of the latest assignment in
// parallel. Every vehicle is routed against the run read at the start, even
// if a newer one lands meanwhile. A failing vehicle does not stop the others;
// its outcome carries the error. With a seed, vehicle v anneals with seed+v.
func (p *Planner) OptimizeAllRoutes(ctx context.Context, o RouteOptions) (out []RouteOutcome, err error) {
	const op = "optimize_all_routes"
	defer obs.Time(ctx, "planner."+op)(&err)

	sctx, cancel := p.storeCtx(ctx)
	run, err := p.store.LatestAssignment(sctx)
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		return nil, &PreconditionError{Op: op, Reason: "no assignment run yet", Err: err}
	}
	if err != nil {
		return nil, &PersistenceError{Op: op, Err: err}
	}

	vids := make([]int64, 0, len(run.Loads))
	for vid := range run.Loads {
		vids = append(vids, vid)
	}
	sort.Slice(vids, func(i, j int) bool { return vids[i] < vids[j] })

	out = make([]RouteOutcome, len(vids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.settings.Workers)
	for i, vid := range vids {
		vo := o
		if o.Seed != nil {
			s := *o.Seed + vid
			vo.Seed = &s
		}
		g.Go(func() error {
			r, err := p.optimizeRoute(gctx, &run, vid, vo)
			switch {
			case err == nil:
				out[i] = RouteOutcome{VehicleID: vid, Status: OutcomeOptimized, Route: &r}
			case errors.Is(err, ErrNothingToRoute):
				out[i] = RouteOutcome{VehicleID: vid, Status: OutcomeNothingToRoute}
			default:
				out[i] = RouteOutcome{VehicleID: vid, Status: OutcomeFailed, Error: err.Error()}
			}
			// cancellation of the caller is the only thing that aborts the batch
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return out, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}
