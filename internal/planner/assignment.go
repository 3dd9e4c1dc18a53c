package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cargoplan/internal/events"
	"cargoplan/internal/metrics"
	"cargoplan/internal/model"
	"cargoplan/internal/obs"
	"cargoplan/internal/opt"
)

// RunAssignment packs every in-stock shipment onto the available vehicles,
// maximizing total urgency, and stores the result as a new run.
func (p *Planner) RunAssignment(ctx context.Context) (run model.AssignmentRun, err error) {
	const op = "run_assignment"
	defer obs.Time(ctx, "planner."+op)(&err)
	start := time.Now()
	status := "error"
	defer func() {
		metrics.AssignmentRuns.WithLabelValues(status).Inc()
		metrics.AssignmentDuration.Observe(time.Since(start).Seconds())
	}()

	sctx, cancel := p.storeCtx(ctx)
	shipments, err := p.store.ListShipments(sctx, model.ShipmentInStock)
	cancel()
	if err != nil {
		return run, &PersistenceError{Op: op, Err: err}
	}
	sctx, cancel = p.storeCtx(ctx)
	vehicles, err := p.store.ListVehicles(sctx, model.VehicleAvailable)
	cancel()
	if err != nil {
		return run, &PersistenceError{Op: op, Err: err}
	}
	if len(shipments) == 0 {
		status = "empty"
		return run, &PreconditionError{Op: op, Reason: "no pending shipments"}
	}
	if len(vehicles) == 0 {
		status = "empty"
		return run, &PreconditionError{Op: op, Reason: "no available vehicles"}
	}

	now := p.now()
	items := make([]opt.Item, len(shipments))
	weights := make(map[int64]float64, len(shipments))
	for i, s := range shipments {
		items[i] = opt.Item{ID: s.ID, Weight: s.Weight, Value: opt.Priority(s.Deadline, now)}
		weights[s.ID] = s.Weight
	}
	bins := make([]opt.Bin, len(vehicles))
	capacity := make(map[int64]float64, len(vehicles))
	for i, v := range vehicles {
		bins[i] = opt.Bin{ID: v.ID, Capacity: v.Capacity}
		capacity[v.ID] = v.Capacity
	}

	packing, err := opt.Pack(ctx, items, bins)
	if err != nil {
		return run, fmt.Errorf("%s: %w", op, err)
	}
	metrics.SearchNodes.WithLabelValues("expanded").Add(float64(packing.Stats.Nodes))
	metrics.SearchNodes.WithLabelValues("pruned").Add(float64(packing.Stats.Pruned))

	loads, placed, err := checkLoads(packing.Bins, weights, capacity)
	if err != nil {
		status = "invariant"
		obs.Logger(ctx).Error().Err(err).Msg("packing rejected")
		return run, fmt.Errorf("%s: %w", op, err)
	}

	run = model.AssignmentRun{
		ID:         uuid.NewString(),
		ExecutedAt: now.UTC(),
		Loads:      loads,
		TotalValue: packing.Value,
		Stats: map[string]int64{
			"nodes":     packing.Stats.Nodes,
			"pruned":    packing.Stats.Pruned,
			"shipments": int64(len(shipments)),
			"vehicles":  int64(len(vehicles)),
			"placed":    int64(placed),
		},
	}
	sctx, cancel = p.storeCtx(ctx)
	err = p.store.SaveAssignment(sctx, run)
	cancel()
	if err != nil {
		return model.AssignmentRun{}, &PersistenceError{Op: op, Err: err}
	}
	status = "ok"

	obs.Logger(ctx).Info().Str("run_id", run.ID).Int("placed", placed).Int("pending", len(shipments)).
		Float64("value", run.TotalValue).Int64("nodes", packing.Stats.Nodes).Msg("assignment run stored")
	p.publish(events.TypeAssignmentCompleted, map[string]any{
		"runId": run.ID, "placed": placed, "totalValue": run.TotalValue,
	}, events.TopicRuns)
	return run, nil
}

// checkLoads re-sums every load in decimal so float rounding in the search
// never lets an overloaded vehicle through.
func checkLoads(bins map[int64][]int64, weights, capacity map[int64]float64) (map[int64][]int64, int, error) {
	loads := make(map[int64][]int64, len(bins))
	placed := 0
	for vid, ids := range bins {
		ws := make([]float64, len(ids))
		for i, id := range ids {
			ws[i] = weights[id]
		}
		if !model.Fits(capacity[vid], ws...) {
			return nil, 0, fmt.Errorf("%w: vehicle %d loaded %s over capacity %v", ErrInvariant, vid, model.LoadOf(ws...), capacity[vid])
		}
		loads[vid] = ids
		placed += len(ids)
	}
	return loads, placed, nil
}
