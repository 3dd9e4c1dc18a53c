package opt

// TwoOpt shortens a closed tour by reversing segments while that helps.
// The first point stays in place so a leading depot is preserved.
func TwoOpt(m Matrix, order []int, passes int) []int {
	if passes <= 0 {
		passes = 1
	}
	best := append([]int(nil), order...)
	n := len(best)
	if n < 4 {
		return best
	}
	bestLen := TourLength(m, best)
	for it := 0; it < passes; it++ {
		improved := false
		for i := 1; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				cand := twoOptSwap(best, i, k)
				d := TourLength(m, cand)
				if d+1e-9 < bestLen {
					best = cand
					bestLen = d
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	// reverse i..k
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}
