// Package planner runs the assignment and routing solvers against the store
// and publishes what happened.
package planner

import (
	"context"
	"math"
	"math/rand"
	"time"

	"cargoplan/internal/events"
	"cargoplan/internal/geo"
	"cargoplan/internal/geocode"
	"cargoplan/internal/opt"
	"cargoplan/internal/store"
)

// Settings are the planner defaults, normally filled from config.
type Settings struct {
	AvgSpeedKmh        float64
	DepotAvgSpeedKmh   float64
	Anneal             opt.AnnealOptions
	DepotMaxIterations int
	TwoOptPasses       int
	Workers            int
	StoreTimeout       time.Duration
	RoutingTimeout     time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		AvgSpeedKmh:        50,
		DepotAvgSpeedKmh:   40,
		Anneal:             opt.DefaultAnnealOptions(),
		DepotMaxIterations: 10000,
		Workers:            4,
		StoreTimeout:       5 * time.Second,
		RoutingTimeout:     30 * time.Second,
	}
}

type Planner struct {
	store    store.Store
	provider geo.MatrixProvider
	geocoder geocode.Geocoder
	broker   events.Broker
	settings Settings
	now      func() time.Time
}

type Option func(*Planner)

func WithBroker(b events.Broker) Option { return func(p *Planner) { p.broker = b } }

func WithGeocoder(g geocode.Geocoder) Option { return func(p *Planner) { p.geocoder = g } }

func WithSettings(s Settings) Option { return func(p *Planner) { p.settings = s } }

// WithClock replaces time.Now, for deadlines relative to a fixed instant.
func WithClock(now func() time.Time) Option { return func(p *Planner) { p.now = now } }

// New returns a planner over st. A nil provider means great-circle distances.
func New(st store.Store, provider geo.MatrixProvider, opts ...Option) *Planner {
	if provider == nil {
		provider = geo.GreatCircle{}
	}
	p := &Planner{store: st, provider: provider, settings: DefaultSettings(), now: time.Now}
	for _, o := range opts {
		o(p)
	}
	if p.settings.Workers < 1 {
		p.settings.Workers = 1
	}
	return p
}

func (p *Planner) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.settings.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.settings.StoreTimeout)
}

func (p *Planner) routingCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.settings.RoutingTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.settings.RoutingTimeout)
}

func (p *Planner) publish(typ string, data map[string]any, topics ...string) {
	if p.broker == nil {
		return
	}
	evt := events.Event{Type: typ, At: p.now().UTC(), Data: data}
	for _, t := range topics {
		p.broker.Publish(t, evt)
	}
}

// RouteOptions override the annealing defaults for one request. Zero values
// keep the planner settings.
type RouteOptions struct {
	InitialTemp          float64
	CoolingRate          float64
	MinTemp              float64
	MaxIterations        int
	NearestNeighborStart *bool
	Seed                 *int64
	TwoOptPasses         int
}

func (p *Planner) annealOptions(o RouteOptions, withDepot bool) opt.AnnealOptions {
	a := p.settings.Anneal
	if o.InitialTemp > 0 {
		a.InitialTemp = o.InitialTemp
	}
	if o.CoolingRate > 0 {
		a.CoolingRate = o.CoolingRate
	}
	if o.MinTemp > 0 {
		a.MinTemp = o.MinTemp
	}
	if o.MaxIterations > 0 {
		a.MaxIterations = o.MaxIterations
	} else if withDepot && a.MaxIterations == 0 {
		a.MaxIterations = p.settings.DepotMaxIterations
	}
	if o.NearestNeighborStart != nil {
		a.NearestNeighborStart = *o.NearestNeighborStart
	}
	if o.Seed != nil {
		a.Rand = rand.New(rand.NewSource(*o.Seed))
	} else {
		a.Rand = nil
	}
	return a
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
