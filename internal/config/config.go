package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process configuration, read from the environment and an
// optional app.env file.
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMigrate   bool   `mapstructure:"DB_MIGRATE"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	DistanceProvider  string `mapstructure:"DISTANCE_PROVIDER"`
	OSRMURL           string `mapstructure:"OSRM_URL"`
	DistanceFallback  bool   `mapstructure:"DISTANCE_FALLBACK"`
	DistanceCachePath string `mapstructure:"DISTANCE_CACHE_PATH"`

	GeocoderURL       string  `mapstructure:"GEOCODER_URL"`
	GeocoderUserAgent string  `mapstructure:"GEOCODER_USER_AGENT"`
	GeocoderRPS       float64 `mapstructure:"GEOCODER_RPS"`

	AvgSpeedKmh      float64 `mapstructure:"AVG_SPEED_KMH"`
	DepotAvgSpeedKmh float64 `mapstructure:"DEPOT_AVG_SPEED_KMH"`

	StoreTimeout   time.Duration `mapstructure:"STORE_TIMEOUT"`
	RoutingTimeout time.Duration `mapstructure:"ROUTING_TIMEOUT"`
	RouteWorkers   int           `mapstructure:"ROUTE_WORKERS"`

	RateRPS      float64  `mapstructure:"RATE_RPS"`
	RateBurst    int      `mapstructure:"RATE_BURST"`
	AllowOrigins []string `mapstructure:"ALLOW_ORIGINS"`

	SAInitialTemp     float64 `mapstructure:"SA_INITIAL_TEMPERATURE"`
	SACoolingRate     float64 `mapstructure:"SA_COOLING_RATE"`
	SAMinTemp         float64 `mapstructure:"SA_MIN_TEMPERATURE"`
	SAMaxIterations   int     `mapstructure:"SA_MAX_ITERATIONS"`
	SADepotIterations int     `mapstructure:"SA_DEPOT_MAX_ITERATIONS"`
	SANearestNeighbor bool    `mapstructure:"SA_NEAREST_NEIGHBOR_START"`
	TwoOptPasses      int     `mapstructure:"ROUTE_TWO_OPT_PASSES"`
}

var defaults = map[string]any{
	"ENVIRONMENT":               "development",
	"HTTP_ADDR":                 ":8080",
	"LOG_LEVEL":                 "info",
	"DATABASE_URL":              "",
	"DB_MIGRATE":                true,
	"REDIS_URL":                 "",
	"DISTANCE_PROVIDER":         "haversine",
	"OSRM_URL":                  "https://router.project-osrm.org",
	"DISTANCE_FALLBACK":         false,
	"DISTANCE_CACHE_PATH":       "",
	"GEOCODER_URL":              "https://nominatim.openstreetmap.org",
	"GEOCODER_USER_AGENT":       "cargoplan/1.0",
	"GEOCODER_RPS":              1.0,
	"AVG_SPEED_KMH":             50.0,
	"DEPOT_AVG_SPEED_KMH":       40.0,
	"STORE_TIMEOUT":             "5s",
	"ROUTING_TIMEOUT":           "30s",
	"ROUTE_WORKERS":             4,
	"RATE_RPS":                  20.0,
	"RATE_BURST":                40,
	"ALLOW_ORIGINS":             "*",
	"SA_INITIAL_TEMPERATURE":    1000.0,
	"SA_COOLING_RATE":           0.95,
	"SA_MIN_TEMPERATURE":        1.0,
	"SA_MAX_ITERATIONS":         0,
	"SA_DEPOT_MAX_ITERATIONS":   10000,
	"SA_NEAREST_NEIGHBOR_START": true,
	"ROUTE_TWO_OPT_PASSES":      0,
}

// Load reads app.env from path when present, then lets environment
// variables override it. A missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	if path != "" {
		v.AddConfigPath(path)
		v.SetConfigName("app")
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.AllowOrigins = splitList(cfg.AllowOrigins)
	cfg.DistanceProvider = strings.ToLower(strings.TrimSpace(cfg.DistanceProvider))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the planner cannot run with.
func (c Config) Validate() error {
	switch c.DistanceProvider {
	case "haversine", "osrm":
	default:
		return fmt.Errorf("config: DISTANCE_PROVIDER must be haversine or osrm, got %q", c.DistanceProvider)
	}
	if c.AvgSpeedKmh <= 0 || c.DepotAvgSpeedKmh <= 0 {
		return fmt.Errorf("config: average speeds must be > 0")
	}
	if c.SACoolingRate <= 0 || c.SACoolingRate >= 1 {
		return fmt.Errorf("config: SA_COOLING_RATE must be in (0,1)")
	}
	if c.RouteWorkers < 1 {
		return fmt.Errorf("config: ROUTE_WORKERS must be >= 1")
	}
	return nil
}

// splitList flattens comma separated entries; env values arrive as one string.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
