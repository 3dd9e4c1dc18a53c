package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    "github.com/rs/zerolog/log"
    "golang.org/x/sync/errgroup"

    "cargoplan/internal/api"
    "cargoplan/internal/buildinfo"
    "cargoplan/internal/config"
    "cargoplan/internal/events"
    "cargoplan/internal/geo"
    "cargoplan/internal/geocode"
    "cargoplan/internal/obs"
    "cargoplan/internal/opt"
    "cargoplan/internal/planner"
    "cargoplan/internal/store"
)

func main() {
    // .env is a developer convenience; real deployments set the environment
    _ = godotenv.Load()
    cfg, err := config.Load(".")
    if err != nil {
        log.Fatal().Err(err).Msg("load config")
    }
    obs.Setup(cfg.Environment, cfg.LogLevel)

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    if err := run(ctx, cfg); err != nil {
        log.Fatal().Err(err).Msg("server exited")
    }
}

func run(ctx context.Context, cfg config.Config) error {
    checks := map[string]api.Pinger{}

    st, closeStore, err := openStore(ctx, cfg)
    if err != nil { return err }
    defer closeStore()

    var broker events.Broker = events.NewMemory()
    if cfg.RedisURL != "" {
        rb, err := events.NewRedis(ctx, cfg.RedisURL)
        if err != nil { return err }
        defer func() { _ = rb.Close() }()
        broker = rb
        checks["redis"] = rb
        log.Info().Msg("event broker: redis")
    }

    provider, closeProvider, err := distanceProvider(cfg, checks)
    if err != nil { return err }
    defer closeProvider()

    pl := planner.New(st, provider,
        planner.WithBroker(broker),
        planner.WithGeocoder(geocode.NewNominatim(cfg.GeocoderURL, cfg.GeocoderUserAgent, cfg.GeocoderRPS)),
        planner.WithSettings(plannerSettings(cfg)),
    )

    srv := api.NewServer(st, pl, broker)
    srv.Checks = checks
    srv.Settings = map[string]any{
        "environment":      cfg.Environment,
        "distanceProvider": provider.Name(),
        "fallback":         cfg.DistanceFallback,
        "persistence":      storeKind(cfg),
        "avgSpeedKmh":      cfg.AvgSpeedKmh,
        "depotAvgSpeedKmh": cfg.DepotAvgSpeedKmh,
        "routeWorkers":     cfg.RouteWorkers,
    }

    rl := api.NewRateLimiter(cfg.RateRPS, cfg.RateBurst)
    handler := api.Chain(srv.Routes(), api.RequestID, api.AccessLog, api.CORS(cfg.AllowOrigins), rl.Middleware)

    hs := &http.Server{
        Addr:              cfg.HTTPAddr,
        Handler:           handler,
        ReadHeaderTimeout: 5 * time.Second,
        ReadTimeout:       30 * time.Second,
        // optimize-all may anneal every vehicle before answering
        WriteTimeout: cfg.RoutingTimeout + 30*time.Second,
        IdleTimeout:  2 * time.Minute,
    }

    g, gctx := errgroup.WithContext(ctx)
    g.Go(func() error {
        log.Info().Str("addr", cfg.HTTPAddr).Interface("build", buildinfo.Info()).Msg("API listening")
        if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) { return err }
        return nil
    })
    g.Go(func() error {
        <-gctx.Done()
        shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
        defer cancel()
        log.Info().Msg("shutting down")
        return hs.Shutdown(shutdownCtx)
    })
    return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
    if cfg.DatabaseURL == "" {
        log.Warn().Msg("DATABASE_URL not set, using in-memory store")
        return store.NewMemory(), func() {}, nil
    }
    if cfg.DBMigrate {
        if err := store.Migrate(cfg.DatabaseURL); err != nil { return nil, nil, err }
    }
    pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
    if err != nil { return nil, nil, err }
    return pg, func() { _ = pg.Close() }, nil
}

func storeKind(cfg config.Config) string {
    if cfg.DatabaseURL == "" { return "memory" }
    return "postgres"
}

// distanceProvider builds the configured matrix provider. OSRM may sit in
// front of a SQLite pair cache and, when DISTANCE_FALLBACK is set, falls back
// to great-circle distances.
func distanceProvider(cfg config.Config, checks map[string]api.Pinger) (geo.MatrixProvider, func(), error) {
    if cfg.DistanceProvider != "osrm" {
        return geo.GreatCircle{}, func() {}, nil
    }
    var opts []geo.OSRMOption
    closer := func() {}
    if cfg.DistanceCachePath != "" {
        cache, err := geo.OpenSQLiteCache(cfg.DistanceCachePath)
        if err != nil { return nil, nil, err }
        opts = append(opts, geo.WithCache(cache))
        checks["distance_cache"] = cache
        closer = func() { _ = cache.Close() }
    }
    opts = append(opts, geo.WithRetry(2, 250*time.Millisecond))
    var p geo.MatrixProvider = geo.NewOSRM(cfg.OSRMURL, opts...)
    if cfg.DistanceFallback {
        p = geo.Fallback{Primary: p, Secondary: geo.GreatCircle{}}
    }
    log.Info().Str("url", cfg.OSRMURL).Bool("fallback", cfg.DistanceFallback).Msg("distance provider: osrm")
    return p, closer, nil
}

func plannerSettings(cfg config.Config) planner.Settings {
    s := planner.DefaultSettings()
    s.AvgSpeedKmh = cfg.AvgSpeedKmh
    s.DepotAvgSpeedKmh = cfg.DepotAvgSpeedKmh
    s.Anneal = opt.AnnealOptions{
        InitialTemp:          cfg.SAInitialTemp,
        CoolingRate:          cfg.SACoolingRate,
        MinTemp:              cfg.SAMinTemp,
        MaxIterations:        cfg.SAMaxIterations,
        NearestNeighborStart: cfg.SANearestNeighbor,
    }
    s.DepotMaxIterations = cfg.SADepotIterations
    s.TwoOptPasses = cfg.TwoOptPasses
    s.Workers = cfg.RouteWorkers
    s.StoreTimeout = cfg.StoreTimeout
    s.RoutingTimeout = cfg.RoutingTimeout
    return s
}
