package opt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTwoOptUncrossesSquare(t *testing.T) {
	// Unit square corners; 0,2,1,3 crosses the diagonals.
	pts := [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	m := make(Matrix, 4)
	for i := range m {
		m[i] = make([]float64, 4)
		for j := range m {
			m[i][j] = math.Hypot(pts[i][0]-pts[j][0], pts[i][1]-pts[j][1])
		}
	}
	got := TwoOpt(m, []int{0, 2, 1, 3}, 5)
	require.Equal(t, 0, got[0])
	require.InDelta(t, 4.0, TourLength(m, got), 1e-9)
}

func TestTwoOptShortTourUnchanged(t *testing.T) {
	m := Matrix{{0, 1, 2}, {1, 0, 1}, {2, 1, 0}}
	require.Equal(t, []int{2, 0, 1}, TwoOpt(m, []int{2, 0, 1}, 1))
}
