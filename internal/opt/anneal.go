package opt

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// AnnealOptions tunes the simulated annealing route search.
type AnnealOptions struct {
	InitialTemp float64
	CoolingRate float64
	MinTemp     float64
	// MaxIterations caps the number of moves; 0 means the cooling schedule alone stops the search.
	MaxIterations int
	// NearestNeighborStart seeds the search with a greedy tour from a random
	// start instead of a random permutation.
	NearestNeighborStart bool
	// Rand drives every random choice. Nil seeds one from the clock.
	Rand *rand.Rand
}

func DefaultAnnealOptions() AnnealOptions {
	return AnnealOptions{InitialTemp: 1000, CoolingRate: 0.95, MinTemp: 1, NearestNeighborStart: true}
}

func (o AnnealOptions) validate() error {
	if o.InitialTemp <= 0 {
		return errors.New("initial temperature must be > 0")
	}
	if o.CoolingRate <= 0 || o.CoolingRate >= 1 {
		return errors.New("cooling rate must be in (0,1)")
	}
	if o.MinTemp <= 0 {
		return errors.New("minimum temperature must be > 0")
	}
	if o.MaxIterations < 0 {
		return errors.New("max iterations must be >= 0")
	}
	return nil
}

// Tour is a closed visiting order over matrix indices.
type Tour struct {
	Order  []int
	Length float64
}

type AnnealStats struct {
	Iterations    int
	Accepted      int
	AcceptedWorse int
	Improvements  int
	InitialLength float64
}

// Anneal searches for a short closed tour over points using simulated
// annealing with random pair swaps and geometric cooling. The best tour seen
// is returned, never a worse one than the starting tour.
func Anneal(m Matrix, points []int, o AnnealOptions) (Tour, AnnealStats, error) {
	var st AnnealStats
	if err := o.validate(); err != nil {
		return Tour{}, st, err
	}
	if err := m.Validate(); err != nil {
		return Tour{}, st, err
	}
	seen := make(map[int]struct{}, len(points))
	for _, p := range points {
		if p < 0 || p >= m.Size() {
			return Tour{}, st, fmt.Errorf("point %d outside matrix of size %d", p, m.Size())
		}
		if _, dup := seen[p]; dup {
			return Tour{}, st, fmt.Errorf("point %d listed twice", p)
		}
		seen[p] = struct{}{}
	}

	// Three or fewer points have at most two distinct cycles: the input order
	// and its reverse. They differ only on a directed matrix.
	if len(points) <= 3 {
		order := append([]int(nil), points...)
		l := TourLength(m, order)
		st.InitialLength = l
		if len(order) == 3 {
			rev := []int{order[0], order[2], order[1]}
			if rl := TourLength(m, rev); rl < l {
				order, l = rev, rl
			}
		}
		return Tour{Order: order, Length: l}, st, nil
	}

	rng := o.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	var cur []int
	if o.NearestNeighborStart {
		cur = nearestNeighborTour(m, points, rng)
	} else {
		cur = append([]int(nil), points...)
		rng.Shuffle(len(cur), func(i, j int) { cur[i], cur[j] = cur[j], cur[i] })
	}
	curLen := TourLength(m, cur)
	st.InitialLength = curLen
	best := append([]int(nil), cur...)
	bestLen := curLen

	n := len(cur)
	cand := make([]int, n)
	for temp := o.InitialTemp; temp > o.MinTemp; temp *= o.CoolingRate {
		if o.MaxIterations > 0 && st.Iterations >= o.MaxIterations {
			break
		}
		st.Iterations++

		copy(cand, cur)
		i := rng.Intn(n)
		j := rng.Intn(n - 1)
		if j >= i {
			j++
		}
		cand[i], cand[j] = cand[j], cand[i]
		candLen := TourLength(m, cand)

		delta := candLen - curLen
		if delta < 0 || rng.Float64() < math.Exp(-delta/temp) {
			st.Accepted++
			if delta > 0 {
				st.AcceptedWorse++
			}
			cur, cand = cand, cur
			curLen = candLen
			if curLen < bestLen {
				bestLen = curLen
				copy(best, cur)
				st.Improvements++
			}
		}
	}
	return Tour{Order: best, Length: bestLen}, st, nil
}

// nearestNeighborTour starts at a random point and always moves to the
// closest unvisited one. Ties go to the earlier point in points.
func nearestNeighborTour(m Matrix, points []int, rng *rand.Rand) []int {
	left := append([]int(nil), points...)
	k := rng.Intn(len(left))
	tour := []int{left[k]}
	left = append(left[:k], left[k+1:]...)
	for len(left) > 0 {
		last := tour[len(tour)-1]
		bi := 0
		for i := 1; i < len(left); i++ {
			if m[last][left[i]] < m[last][left[bi]] {
				bi = i
			}
		}
		tour = append(tour, left[bi])
		left = append(left[:bi], left[bi+1:]...)
	}
	return tour
}
