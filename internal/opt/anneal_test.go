package opt

import (
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func randomMatrix(rng *rand.Rand, n int) Matrix {
	m := make(Matrix, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := 1 + rng.Float64()*100
			m[i][j], m[j][i] = d, d
		}
	}
	return m
}

func TestAnnealTourIsPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, nn := range []bool{true, false} {
		m := randomMatrix(rng, 12)
		points := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
		o := DefaultAnnealOptions()
		o.NearestNeighborStart = nn
		o.Rand = rand.New(rand.NewSource(1))
		tour, st, err := Anneal(m, points, o)
		require.NoError(t, err)

		got := append([]int(nil), tour.Order...)
		sort.Ints(got)
		require.Equal(t, points, got)
		require.InDelta(t, TourLength(m, tour.Order), tour.Length, 1e-9)
		require.LessOrEqual(t, tour.Length, st.InitialLength+1e-9)
		require.Positive(t, st.Iterations)
	}
}

func TestAnnealSmallToursDeterministic(t *testing.T) {
	m := Matrix{
		{0, 3, 4},
		{3, 0, 5},
		{4, 5, 0},
	}
	for _, pts := range [][]int{{0, 1}, {2, 0, 1}} {
		var first Tour
		for seed := int64(0); seed < 5; seed++ {
			o := DefaultAnnealOptions()
			o.Rand = rand.New(rand.NewSource(seed))
			tour, _, err := Anneal(m, pts, o)
			require.NoError(t, err)
			if seed == 0 {
				first = tour
				continue
			}
			require.Equal(t, first, tour)
		}
	}

	tour, _, err := Anneal(m, []int{0, 1}, DefaultAnnealOptions())
	require.NoError(t, err)
	require.InDelta(t, 6.0, tour.Length, 1e-12)
}

func TestAnnealThreePointsDirected(t *testing.T) {
	// 0->1->2->0 costs 30, 0->2->1->0 costs 3.
	m := Matrix{
		{0, 10, 1},
		{1, 0, 10},
		{10, 1, 0},
	}
	tour, _, err := Anneal(m, []int{0, 1, 2}, DefaultAnnealOptions())
	require.NoError(t, err)
	require.Equal(t, []int{0, 2, 1}, tour.Order)
	require.InDelta(t, 3.0, tour.Length, 1e-12)

	tour, _, err = Anneal(m, []int{0, 2, 1}, DefaultAnnealOptions())
	require.NoError(t, err)
	require.Equal(t, []int{0, 2, 1}, tour.Order)

	// equal cycles keep the input order
	sym := Matrix{{0, 3, 4}, {3, 0, 5}, {4, 5, 0}}
	tour, _, err = Anneal(sym, []int{1, 0, 2}, DefaultAnnealOptions())
	require.NoError(t, err)
	require.Equal(t, []int{1, 0, 2}, tour.Order)
}

func TestAnnealSeedReproducible(t *testing.T) {
	m := randomMatrix(rand.New(rand.NewSource(3)), 9)
	pts := []int{0, 1, 2, 3, 4, 5, 6, 7, 8}
	run := func() Tour {
		o := DefaultAnnealOptions()
		o.Rand = rand.New(rand.NewSource(99))
		tour, _, err := Anneal(m, pts, o)
		require.NoError(t, err)
		return tour
	}
	require.Equal(t, run(), run())
}

func TestAnnealIterationCap(t *testing.T) {
	m := randomMatrix(rand.New(rand.NewSource(5)), 8)
	o := DefaultAnnealOptions()
	o.CoolingRate = 0.99999
	o.MaxIterations = 250
	o.Rand = rand.New(rand.NewSource(1))
	_, st, err := Anneal(m, []int{0, 1, 2, 3, 4, 5, 6, 7}, o)
	require.NoError(t, err)
	require.Equal(t, 250, st.Iterations)
}

func TestAnnealScheduleLength(t *testing.T) {
	// 1000 * 0.95^k > 1 holds for k = 0..134.
	m := randomMatrix(rand.New(rand.NewSource(5)), 6)
	o := DefaultAnnealOptions()
	o.Rand = rand.New(rand.NewSource(1))
	_, st, err := Anneal(m, []int{0, 1, 2, 3, 4, 5}, o)
	require.NoError(t, err)
	require.Equal(t, 135, st.Iterations)
}

func TestAnnealRejectsBadInput(t *testing.T) {
	m := Matrix{{0, 1}, {1, 0}}
	_, _, err := Anneal(m, []int{0, 2}, DefaultAnnealOptions())
	require.Error(t, err)
	_, _, err = Anneal(m, []int{0, 0}, DefaultAnnealOptions())
	require.Error(t, err)
	_, _, err = Anneal(Matrix{{0, 1}, {1}}, []int{0, 1}, DefaultAnnealOptions())
	require.Error(t, err)

	o := DefaultAnnealOptions()
	o.CoolingRate = 1
	_, _, err = Anneal(m, []int{0, 1}, o)
	require.Error(t, err)
}

func TestAnnealEmpty(t *testing.T) {
	tour, _, err := Anneal(Matrix{}, nil, DefaultAnnealOptions())
	require.NoError(t, err)
	require.Empty(t, tour.Order)
	require.Zero(t, tour.Length)
}

func TestNearestNeighborTourOnLine(t *testing.T) {
	// Points on a line at 0,1,2,3,10; NN from any start never beats the line tour.
	xs := []float64{0, 1, 2, 3, 10}
	m := make(Matrix, len(xs))
	for i := range xs {
		m[i] = make([]float64, len(xs))
		for j := range xs {
			d := xs[i] - xs[j]
			if d < 0 {
				d = -d
			}
			m[i][j] = d
		}
	}
	tour := nearestNeighborTour(m, []int{0, 1, 2, 3, 4}, rand.New(rand.NewSource(time.Now().UnixNano())))
	require.Len(t, tour, 5)
	require.GreaterOrEqual(t, TourLength(m, tour), 20.0-1e-9)
}

func TestPriority(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.Equal(t, OverdueScore, Priority(now, now))
	require.Equal(t, OverdueScore, Priority(now.Add(-time.Hour), now))
	require.InDelta(t, 1.0/3600, Priority(now.Add(time.Hour), now), 1e-15)
	require.Greater(t, Priority(now.Add(time.Minute), now), Priority(now.Add(time.Hour), now))

	// deadlines a hair in the future score at least as high as overdue ones
	require.GreaterOrEqual(t, Priority(now.Add(time.Millisecond), now), OverdueScore)
	require.GreaterOrEqual(t, Priority(now.Add(500*time.Microsecond), now), OverdueScore)
	require.GreaterOrEqual(t, Priority(now.Add(time.Nanosecond), now), OverdueScore)
}

func TestRotate(t *testing.T) {
	require.Equal(t, []int{2, 3, 0, 1}, Rotate([]int{0, 1, 2, 3}, 2))
	require.Equal(t, []int{0, 1}, Rotate([]int{0, 1}, 5))
}
