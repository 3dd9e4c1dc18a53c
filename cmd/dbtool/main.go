// Command dbtool applies the schema migrations and loads demo fixtures.
//
//	dbtool migrate
//	dbtool seed [-file fixtures.yaml]
package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	yaml "gopkg.in/yaml.v3"

	"cargoplan/internal/config"
	"cargoplan/internal/model"
	"cargoplan/internal/obs"
	"cargoplan/internal/store"
)

//go:embed seed.yaml
var defaultSeed []byte

type seedFile struct {
	Depot *struct {
		Name    string  `yaml:"name"`
		Address string  `yaml:"address"`
		Lat     float64 `yaml:"lat"`
		Lng     float64 `yaml:"lng"`
	} `yaml:"depot"`
	Vehicles []struct {
		Brand    string  `yaml:"brand"`
		Capacity float64 `yaml:"capacity"`
		Status   string  `yaml:"status"`
	} `yaml:"vehicles"`
	Shipments []struct {
		Customer string        `yaml:"customer"`
		Address  string        `yaml:"address"`
		Weight   float64       `yaml:"weight"`
		DueIn    time.Duration `yaml:"due_in"`
		Lat      *float64      `yaml:"lat"`
		Lng      *float64      `yaml:"lng"`
	} `yaml:"shipments"`
}

type seedReport struct {
	Depot     bool
	Vehicles  int
	Shipments int
}

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	obs.Setup(cfg.Environment, cfg.LogLevel)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: dbtool migrate | seed [-file path]")
		os.Exit(2)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}

	switch os.Args[1] {
	case "migrate":
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
		log.Info().Msg("schema up to date")
	case "seed":
		fs := flag.NewFlagSet("seed", flag.ExitOnError)
		file := fs.String("file", "", "fixture file (defaults to the built-in demo fleet)")
		_ = fs.Parse(os.Args[2:])

		raw := defaultSeed
		if *file != "" {
			if raw, err = os.ReadFile(*file); err != nil {
				log.Fatal().Err(err).Msg("read fixtures")
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if cfg.DBMigrate {
			if err := store.Migrate(cfg.DatabaseURL); err != nil {
				log.Fatal().Err(err).Msg("migrate")
			}
		}
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("connect")
		}
		defer func() { _ = pg.Close() }()
		rep, err := seed(ctx, pg, raw, time.Now())
		if err != nil {
			log.Fatal().Err(err).Msg("seed")
		}
		log.Info().Bool("depot", rep.Depot).Int("vehicles", rep.Vehicles).Int("shipments", rep.Shipments).Msg("seeding complete")
	default:
		log.Fatal().Str("command", os.Args[1]).Msg("unknown command")
	}
}

// seed parses raw fixtures and writes them to st. Shipment deadlines are
// now plus due_in.
func seed(ctx context.Context, st store.Store, raw []byte, now time.Time) (seedReport, error) {
	var f seedFile
	var rep seedReport
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return rep, fmt.Errorf("parse fixtures: %w", err)
	}
	if f.Depot != nil {
		d := model.Depot{Name: f.Depot.Name, Address: f.Depot.Address, Coords: model.Coordinates{Lat: f.Depot.Lat, Lng: f.Depot.Lng}}
		if _, err := st.SaveDepot(ctx, d); err != nil {
			return rep, fmt.Errorf("depot: %w", err)
		}
		rep.Depot = true
	}
	for i, v := range f.Vehicles {
		status := model.VehicleStatus(v.Status)
		if status != "" && !status.Valid() {
			return rep, fmt.Errorf("vehicle %d: unknown status %q", i, v.Status)
		}
		if v.Capacity <= 0 {
			return rep, fmt.Errorf("vehicle %d: capacity must be positive", i)
		}
		if _, err := st.CreateVehicle(ctx, model.Vehicle{Brand: v.Brand, Capacity: v.Capacity, Status: status}); err != nil {
			return rep, fmt.Errorf("vehicle %d: %w", i, err)
		}
		rep.Vehicles++
	}
	for i, s := range f.Shipments {
		if s.Weight <= 0 {
			return rep, fmt.Errorf("shipment %d: weight must be positive", i)
		}
		sh := model.Shipment{Customer: s.Customer, Address: s.Address, Weight: s.Weight, Deadline: now.Add(s.DueIn)}
		if s.Lat != nil && s.Lng != nil {
			sh.Dest = &model.Coordinates{Lat: *s.Lat, Lng: *s.Lng}
		}
		if _, err := st.CreateShipment(ctx, sh); err != nil {
			return rep, fmt.Errorf("shipment %d: %w", i, err)
		}
		rep.Shipments++
	}
	return rep, nil
}
