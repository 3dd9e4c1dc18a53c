package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, route, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // AssignmentRuns counts assignment runs by outcome (ok, empty, invariant, error).
    AssignmentRuns = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "assignment_runs_total", Help: "Assignment runs by outcome."},
        []string{"status"},
    )
    AssignmentDuration = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "assignment_run_duration_seconds", Help: "Assignment run duration in seconds.", Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30}},
    )
    // SearchNodes counts branch-and-bound nodes, split into expanded and pruned.
    SearchNodes = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "assignment_search_nodes_total", Help: "Branch-and-bound nodes by kind."},
        []string{"kind"},
    )

    // RouteRuns counts route optimizations by distance provider and outcome.
    RouteRuns = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "route_optimizations_total", Help: "Route optimizations by provider and status."},
        []string{"provider", "status"},
    )
    AnnealIterations = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "route_anneal_iterations", Help: "Annealing iterations per route.", Buckets: prometheus.ExponentialBuckets(16, 4, 8)},
    )
    RouteDistance = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "route_distance_km", Help: "Optimized tour length in km.", Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500}},
    )

    // GeocodeRequests counts geocoder lookups by outcome.
    GeocodeRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "geocode_requests_total", Help: "Geocoding lookups by status."},
        []string{"status"},
    )
)

// RegisterDefault registers collectors to the API registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(AssignmentRuns)
        Registry.MustRegister(AssignmentDuration)
        Registry.MustRegister(SearchNodes)
        Registry.MustRegister(RouteRuns)
        Registry.MustRegister(AnnealIterations)
        Registry.MustRegister(RouteDistance)
        Registry.MustRegister(GeocodeRequests)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
