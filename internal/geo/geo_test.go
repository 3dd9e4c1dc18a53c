package geo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cargoplan/internal/model"
	"cargoplan/internal/opt"
)

var (
	casablanca = model.Coordinates{Lat: 33.5731, Lng: -7.5898}
	rabat      = model.Coordinates{Lat: 34.0209, Lng: -6.8416}
	marrakech  = model.Coordinates{Lat: 31.6295, Lng: -7.9811}
	tangier    = model.Coordinates{Lat: 35.7595, Lng: -5.8340}
)

func TestHaversineKnownDistances(t *testing.T) {
	require.Zero(t, HaversineKm(rabat, rabat))
	d := HaversineKm(casablanca, rabat)
	require.InDelta(t, 85.2, d, 0.1)
	require.InDelta(t, d, HaversineKm(rabat, casablanca), 1e-9)
	require.InDelta(t, 219.2, HaversineKm(casablanca, marrakech), 0.1)
}

func TestGreatCircleMatrixSymmetric(t *testing.T) {
	pts := []model.Coordinates{casablanca, rabat, marrakech, tangier}
	m, err := GreatCircle{}.Matrix(context.Background(), pts)
	require.NoError(t, err)
	require.NoError(t, m.Validate())
	for i := range pts {
		require.Zero(t, m[i][i])
		for j := range pts {
			require.Equal(t, m[i][j], m[j][i])
		}
	}
}

const okTable = `{"code":"Ok","distances":[[0,1500],[1700,0]]}`

func TestOSRMMatrixAndCache(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		require.True(t, strings.HasPrefix(r.URL.Path, "/table/v1/driving/"))
		require.Equal(t, "distance", r.URL.Query().Get("annotations"))
		_, _ = w.Write([]byte(okTable))
	}))
	defer srv.Close()

	cache, err := OpenSQLiteCache(":memory:")
	require.NoError(t, err)
	defer cache.Close()

	o := NewOSRM(srv.URL, WithCache(cache))
	pts := []model.Coordinates{casablanca, rabat}
	m, err := o.Matrix(context.Background(), pts)
	require.NoError(t, err)
	require.Equal(t, opt.Matrix{{0, 1.5}, {1.7, 0}}, m)

	m2, err := o.Matrix(context.Background(), pts)
	require.NoError(t, err)
	require.Equal(t, m, m2)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestOSRMRetriesThenFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	o := NewOSRM(srv.URL, WithRetry(2, time.Millisecond))
	_, err := o.Matrix(context.Background(), []model.Coordinates{casablanca, rabat})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestOSRMRejectsNonOkCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"InvalidQuery","message":"bad coords"}`))
	}))
	defer srv.Close()

	_, err := NewOSRM(srv.URL).Matrix(context.Background(), []model.Coordinates{casablanca, rabat})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	require.Contains(t, pe.Error(), "bad coords")
}

func TestOSRMUnreachablePair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"Ok","distances":[[0,null],[10,0]]}`))
	}))
	defer srv.Close()

	_, err := NewOSRM(srv.URL).Matrix(context.Background(), []model.Coordinates{casablanca, rabat})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
}

type failing struct{ err error }

func (failing) Name() string { return "broken" }
func (f failing) Matrix(context.Context, []model.Coordinates) (opt.Matrix, error) {
	return nil, f.err
}

func TestFallbackOnlyOnProviderError(t *testing.T) {
	pts := []model.Coordinates{casablanca, rabat}
	fb := Fallback{Primary: failing{err: &ProviderError{Provider: "broken", Reason: "down"}}, Secondary: GreatCircle{}}
	m, source, err := BuildMatrix(context.Background(), fb, pts)
	require.NoError(t, err)
	require.Equal(t, "haversine", source)
	require.InDelta(t, HaversineKm(casablanca, rabat), m[0][1], 1e-9)

	other := errors.New("bug")
	fb = Fallback{Primary: failing{err: other}, Secondary: GreatCircle{}}
	_, _, err = BuildMatrix(context.Background(), fb, pts)
	require.ErrorIs(t, err, other)
}

func TestSQLiteCacheRoundsCoordinates(t *testing.T) {
	c, err := OpenSQLiteCache(":memory:")
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, casablanca, rabat)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Put(ctx, casablanca, rabat, 91.2))
	near := model.Coordinates{Lat: casablanca.Lat + 1e-7, Lng: casablanca.Lng}
	km, ok, err := c.Get(ctx, near, rabat)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 91.2, km)

	require.NoError(t, c.Put(ctx, casablanca, rabat, 92))
	km, _, err = c.Get(ctx, casablanca, rabat)
	require.NoError(t, err)
	require.Equal(t, 92.0, km)
}
