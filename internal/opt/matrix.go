package opt

import "fmt"

// Matrix holds point-to-point distances in km. Road matrices are directed,
// so m[i][j] need not equal m[j][i].
type Matrix [][]float64

// Size returns the number of points covered by m.
func (m Matrix) Size() int { return len(m) }

// Validate checks that m is square.
func (m Matrix) Validate() error {
	for i, row := range m {
		if len(row) != len(m) {
			return fmt.Errorf("matrix row %d has %d columns, want %d", i, len(row), len(m))
		}
	}
	return nil
}

// TourLength is the length of the closed cycle visiting order and returning to
// its first point.
func TourLength(m Matrix, order []int) float64 {
	n := len(order)
	total := 0.0
	for i := 0; i < n; i++ {
		total += m[order[i]][order[(i+1)%n]]
	}
	return total
}

// Rotate returns order rotated so that first leads. Cycle length is unchanged.
// If first is absent order is returned as is.
func Rotate(order []int, first int) []int {
	for i, p := range order {
		if p == first {
			out := make([]int, 0, len(order))
			out = append(out, order[i:]...)
			return append(out, order[:i]...)
		}
	}
	return order
}
