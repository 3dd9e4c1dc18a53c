package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cargoplan/internal/model"
)

func TestCoordArgs(t *testing.T) {
	lat, lng := coordArgs(nil)
	require.Nil(t, lat)
	require.Nil(t, lng)

	lat, lng = coordArgs(&model.Coordinates{Lat: 1.5, Lng: -2})
	require.Equal(t, 1.5, lat)
	require.Equal(t, -2.0, lng)
}

func TestToJSON(t *testing.T) {
	require.Nil(t, toJSON(nil))
	require.JSONEq(t, `[0,3,1]`, string(toJSON([]int64{0, 3, 1})))
}

func TestDecodeStats(t *testing.T) {
	st, err := decodeStats(nil)
	require.NoError(t, err)
	require.Nil(t, st)

	st, err = decodeStats([]byte(`{"nodes":12,"pruned":3}`))
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"nodes": 12, "pruned": 3}, st)

	_, err = decodeStats([]byte(`{"nodes":"many"}`))
	require.ErrorContains(t, err, "decode stats")
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
