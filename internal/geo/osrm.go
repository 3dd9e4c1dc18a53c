package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"cargoplan/internal/model"
	"cargoplan/internal/opt"
)

// PairCache stores directed point-to-point distances in km.
type PairCache interface {
	Get(ctx context.Context, from, to model.Coordinates) (km float64, ok bool, err error)
	Put(ctx context.Context, from, to model.Coordinates, km float64) error
}

// OSRM builds road distance matrices with the OSRM table service.
type OSRM struct {
	baseURL     string
	httpClient  *http.Client
	cache       PairCache
	maxAttempts int
	backoff     time.Duration
}

type OSRMOption func(*OSRM)

// WithCache makes OSRM consult and fill c before calling the service.
func WithCache(c PairCache) OSRMOption { return func(o *OSRM) { o.cache = c } }

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) OSRMOption { return func(o *OSRM) { o.httpClient = c } }

// WithRetry sets the attempt budget and the initial backoff between attempts.
func WithRetry(attempts int, backoff time.Duration) OSRMOption {
	return func(o *OSRM) {
		if attempts > 0 {
			o.maxAttempts = attempts
		}
		o.backoff = backoff
	}
}

func NewOSRM(baseURL string, opts ...OSRMOption) *OSRM {
	o := &OSRM{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		maxAttempts: 2,
		backoff:     200 * time.Millisecond,
	}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

func (o *OSRM) Name() string { return "osrm" }

type osrmTableResponse struct {
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	Distances [][]*float64 `json:"distances"`
}

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

func (o *OSRM) Matrix(ctx context.Context, points []model.Coordinates) (opt.Matrix, error) {
	n := len(points)
	m := make(opt.Matrix, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	if n < 2 {
		return m, nil
	}

	if o.cache != nil {
		missing := 0
		for i := 0; i < n && missing == 0; i++ {
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				km, ok, err := o.cache.Get(ctx, points[i], points[j])
				if err != nil {
					return nil, fmt.Errorf("osrm matrix: read cache: %w", err)
				}
				if !ok {
					missing++
					break
				}
				m[i][j] = km
			}
		}
		if missing == 0 {
			log.Debug().Int("points", n).Msg("osrm matrix served from cache")
			return m, nil
		}
	}

	table, err := o.fetchTable(ctx, points)
	if err != nil {
		return nil, err
	}
	if len(table) != n {
		return nil, &ProviderError{Provider: o.Name(), Reason: fmt.Sprintf("table has %d rows, want %d", len(table), n)}
	}
	for i := 0; i < n; i++ {
		if len(table[i]) != n {
			return nil, &ProviderError{Provider: o.Name(), Reason: fmt.Sprintf("table row %d has %d columns, want %d", i, len(table[i]), n)}
		}
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if table[i][j] == nil {
				return nil, &ProviderError{Provider: o.Name(), Reason: fmt.Sprintf("no road route between points %d and %d", i, j)}
			}
			m[i][j] = *table[i][j] / 1000
		}
	}

	if o.cache != nil {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				if err := o.cache.Put(ctx, points[i], points[j], m[i][j]); err != nil {
					log.Warn().Err(err).Msg("osrm matrix: write cache")
					return m, nil
				}
			}
		}
	}
	return m, nil
}

func (o *OSRM) fetchTable(ctx context.Context, points []model.Coordinates) ([][]*float64, error) {
	coords := make([]string, len(points))
	for i, p := range points {
		coords[i] = fmt.Sprintf("%.6f,%.6f", p.Lng, p.Lat)
	}
	url := fmt.Sprintf("%s/table/v1/driving/%s?annotations=distance", o.baseURL, strings.Join(coords, ";"))

	resp, err := o.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ProviderError{Provider: o.Name(), Reason: "table request failed", Err: err}
	}
	defer resp.Body.Close()

	var body osrmTableResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &ProviderError{Provider: o.Name(), Reason: "decode table response", Err: err}
	}
	if body.Code != "Ok" {
		return nil, &ProviderError{Provider: o.Name(), Reason: fmt.Sprintf("code %q: %s", body.Code, body.Message)}
	}
	return body.Distances, nil
}

// doWithRetry retries network errors, 429 and 5xx responses with doubling
// backoff, giving up early when ctx is done.
func (o *OSRM) doWithRetry(ctx context.Context, makeReq func() (*http.Request, error)) (*http.Response, error) {
	backoff := o.backoff
	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req, err := makeReq()
		if err != nil {
			return nil, fmt.Errorf("make request: %w", err)
		}
		resp, err := o.do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		retry := false
		var he *httpStatusError
		if errors.As(err, &he) {
			switch he.Code {
			case 429, 500, 502, 503, 504:
				retry = true
			}
		}
		var netErr net.Error
		if !retry && errors.As(err, &netErr) {
			retry = true
		}
		if !retry || attempt == o.maxAttempts {
			return nil, lastErr
		}
		log.Debug().Err(err).Int("attempt", attempt).Msg("osrm request failed, retrying")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (o *OSRM) do(req *http.Request) (*http.Response, error) {
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &httpStatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}
