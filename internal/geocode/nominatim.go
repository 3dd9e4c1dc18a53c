package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"cargoplan/internal/model"
)

// Geocoder turns a postal address into coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (model.Coordinates, error)
}

// ErrGeocodingFailed is returned when an address cannot be resolved.
type ErrGeocodingFailed struct {
	Address string
	Reason  string
}

func (e *ErrGeocodingFailed) Error() string {
	return fmt.Sprintf("geocoding failed for %q: %s", e.Address, e.Reason)
}

// Nominatim queries an OpenStreetMap Nominatim instance. The public
// instance allows one request per second, enforced by the limiter.
type Nominatim struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewNominatim(baseURL, userAgent string, rps float64) *Nominatim {
	if rps <= 0 {
		rps = 1
	}
	if userAgent == "" {
		userAgent = "cargoplan/1.0"
	}
	return &Nominatim{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (g *Nominatim) Geocode(ctx context.Context, address string) (model.Coordinates, error) {
	if strings.TrimSpace(address) == "" {
		return model.Coordinates{}, &ErrGeocodingFailed{Address: address, Reason: "empty address"}
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return model.Coordinates{}, err
	}

	q := url.Values{"q": {address}, "format": {"json"}, "limit": {"1"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return model.Coordinates{}, &ErrGeocodingFailed{Address: address, Reason: err.Error()}
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return model.Coordinates{}, &ErrGeocodingFailed{Address: address, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return model.Coordinates{}, &ErrGeocodingFailed{Address: address, Reason: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return model.Coordinates{}, &ErrGeocodingFailed{Address: address, Reason: err.Error()}
	}
	if len(results) == 0 {
		return model.Coordinates{}, &ErrGeocodingFailed{Address: address, Reason: "no results found"}
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return model.Coordinates{}, &ErrGeocodingFailed{Address: address, Reason: "invalid latitude"}
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return model.Coordinates{}, &ErrGeocodingFailed{Address: address, Reason: "invalid longitude"}
	}
	log.Debug().Str("address", address).Float64("lat", lat).Float64("lng", lng).Str("display_name", results[0].DisplayName).Msg("geocoded")
	return model.Coordinates{Lat: lat, Lng: lng}, nil
}
