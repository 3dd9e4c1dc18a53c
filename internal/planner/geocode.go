package planner

import (
	"context"
	"errors"
	"strings"

	"cargoplan/internal/events"
	"cargoplan/internal/metrics"
	"cargoplan/internal/model"
	"cargoplan/internal/obs"
	"cargoplan/internal/store"
)

type GeocodeFailure struct {
	ShipmentID int64  `json:"shipmentId"`
	Reason     string `json:"reason"`
}

type GeocodeReport struct {
	Resolved []int64          `json:"resolved"`
	Failed   []GeocodeFailure `json:"failed"`
}

// GeocodePending looks up coordinates for undelivered shipments that have an
// address but no destination yet. Lookup failures are reported per shipment;
// a store failure or cancellation stops the batch.
func (p *Planner) GeocodePending(ctx context.Context) (rep GeocodeReport, err error) {
	const op = "geocode_pending"
	defer obs.Time(ctx, "planner."+op)(&err)
	rep = GeocodeReport{Resolved: []int64{}, Failed: []GeocodeFailure{}}
	if p.geocoder == nil {
		return rep, &PreconditionError{Op: op, Reason: "no geocoder configured"}
	}

	sctx, cancel := p.storeCtx(ctx)
	all, err := p.store.ListShipments(sctx, "")
	cancel()
	if err != nil {
		return rep, &PersistenceError{Op: op, Err: err}
	}
	for _, s := range all {
		if s.Dest != nil || s.Status == model.ShipmentDelivered || strings.TrimSpace(s.Address) == "" {
			continue
		}
		c, gerr := p.geocoder.Geocode(ctx, s.Address)
		if gerr != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			metrics.GeocodeRequests.WithLabelValues("failed").Inc()
			rep.Failed = append(rep.Failed, GeocodeFailure{ShipmentID: s.ID, Reason: gerr.Error()})
			continue
		}
		metrics.GeocodeRequests.WithLabelValues("ok").Inc()
		sctx, cancel := p.storeCtx(ctx)
		err = p.store.SetShipmentCoordinates(sctx, s.ID, c)
		cancel()
		if err != nil {
			return rep, &PersistenceError{Op: op, Err: err}
		}
		rep.Resolved = append(rep.Resolved, s.ID)
		p.publish(events.TypeShipmentGeocoded, map[string]any{"shipmentId": s.ID, "lat": c.Lat, "lng": c.Lng}, events.TopicRuns)
	}
	obs.Logger(ctx).Info().Int("resolved", len(rep.Resolved)).Int("failed", len(rep.Failed)).Msg("geocoding pass done")
	return rep, nil
}

// SaveDepot stores the depot at coords, geocoding its address when coords
// is nil. (0,0) is a valid location.
func (p *Planner) SaveDepot(ctx context.Context, d model.Depot, coords *model.Coordinates) (model.Depot, error) {
	const op = "save_depot"
	if coords != nil {
		d.Coords = *coords
	} else {
		if p.geocoder == nil || strings.TrimSpace(d.Address) == "" {
			return d, &PreconditionError{Op: op, Reason: "depot needs coordinates or a geocodable address"}
		}
		c, err := p.geocoder.Geocode(ctx, d.Address)
		if err != nil {
			metrics.GeocodeRequests.WithLabelValues("failed").Inc()
			return d, &ExternalProviderError{Op: op, Provider: "geocoder", Err: err}
		}
		metrics.GeocodeRequests.WithLabelValues("ok").Inc()
		d.Coords = c
	}
	sctx, cancel := p.storeCtx(ctx)
	defer cancel()
	saved, err := p.store.SaveDepot(sctx, d)
	if err != nil {
		return d, &PersistenceError{Op: op, Err: err}
	}
	return saved, nil
}

// GeoPoint is one plottable location.
type GeoPoint struct {
	ID     int64             `json:"id"`
	Kind   string            `json:"kind"`
	Label  string            `json:"label"`
	Coords model.Coordinates `json:"coords"`
}

// Points lists the depot and every shipment that has coordinates.
func (p *Planner) Points(ctx context.Context) ([]GeoPoint, error) {
	const op = "geo_points"
	sctx, cancel := p.storeCtx(ctx)
	defer cancel()
	out := []GeoPoint{}
	d, err := p.store.GetDepot(sctx)
	switch {
	case err == nil:
		out = append(out, GeoPoint{ID: model.DepotStop, Kind: "depot", Label: d.Name, Coords: d.Coords})
	case !errors.Is(err, store.ErrNotFound):
		return nil, &PersistenceError{Op: op, Err: err}
	}
	ships, err := p.store.ListShipments(sctx, "")
	if err != nil {
		return nil, &PersistenceError{Op: op, Err: err}
	}
	for _, s := range ships {
		if s.Dest == nil {
			continue
		}
		out = append(out, GeoPoint{ID: s.ID, Kind: "shipment", Label: s.Customer, Coords: *s.Dest})
	}
	return out, nil
}
