package opt

import "context"

// Item is a shipment offered to the packer.
type Item struct {
	ID     int64
	Weight float64
	Value  float64
}

// Bin is a vehicle with its capacity.
type Bin struct {
	ID       int64
	Capacity float64
}

// Packing is the best assignment found. Bins lists item ids per bin in the
// order they were placed; bins with nothing placed are omitted.
type Packing struct {
	Bins  map[int64][]int64
	Value float64
	Stats SearchStats
}

type SearchStats struct {
	Nodes  int64
	Pruned int64
}

// frame is one level of the depth-first search. applied/saved record the
// bin this level charged for its current child so the exact previous
// remaining capacity can be put back.
type frame struct {
	depth   int
	acc     float64
	branch  int
	applied int
	saved   float64
}

// packer owns all mutable state of one search.
type packer struct {
	items  []Item
	bins   []Bin
	suffix []float64
	rem    []float64
	cur    [][]int64
	best   float64
	bestAt [][]int64
	found  bool
	stats  SearchStats
}

// Pack solves the multiple knapsack problem exactly by branch and bound.
//
// Items are decided in the given order. For each item every bin with enough
// remaining capacity is tried in bin order, then leaving the item out. A
// branch is explored only while its value plus the value of all undecided
// items strictly beats the incumbent, so among equal-valued assignments the
// first one reached is kept. Items heavier than every bin are left out.
func Pack(ctx context.Context, items []Item, bins []Bin) (Packing, error) {
	p := newPacker(items, bins)
	if err := p.run(ctx); err != nil {
		return Packing{}, err
	}
	return p.result(), nil
}

func newPacker(items []Item, bins []Bin) *packer {
	p := &packer{
		items:  items,
		bins:   bins,
		suffix: make([]float64, len(items)+1),
		rem:    make([]float64, len(bins)),
		cur:    make([][]int64, len(bins)),
	}
	for i := len(items) - 1; i >= 0; i-- {
		p.suffix[i] = p.suffix[i+1] + items[i].Value
	}
	for i, b := range bins {
		p.rem[i] = b.Capacity
	}
	return p
}

const cancelCheckEvery = 4096

func (p *packer) run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := len(p.items)
	stack := []frame{{applied: -1}}
	p.stats.Nodes = 1
	for len(stack) > 0 {
		if p.stats.Nodes%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		top := len(stack) - 1
		f := &stack[top]
		if f.applied >= 0 {
			b := f.applied
			p.rem[b] = f.saved
			p.cur[b] = p.cur[b][:len(p.cur[b])-1]
			f.applied = -1
		}
		if f.depth == n {
			p.leaf(f.acc)
			stack = stack[:top]
			continue
		}

		it := p.items[f.depth]
		rest := p.suffix[f.depth+1]
		var child *frame
		for child == nil && f.branch <= len(p.bins) {
			b := f.branch
			f.branch++
			if b == len(p.bins) {
				if f.acc+rest > p.best {
					child = &frame{depth: f.depth + 1, acc: f.acc, applied: -1}
				} else {
					p.stats.Pruned++
				}
				break
			}
			if p.rem[b] < it.Weight {
				continue
			}
			v := f.acc + it.Value
			if v+rest <= p.best {
				p.stats.Pruned++
				continue
			}
			f.applied = b
			f.saved = p.rem[b]
			p.rem[b] -= it.Weight
			p.cur[b] = append(p.cur[b], it.ID)
			child = &frame{depth: f.depth + 1, acc: v, applied: -1}
		}
		if child == nil {
			stack = stack[:top]
			continue
		}
		stack = append(stack, *child)
		p.stats.Nodes++
	}
	return nil
}

func (p *packer) leaf(value float64) {
	if value <= p.best {
		return
	}
	p.best = value
	p.found = true
	if p.bestAt == nil {
		p.bestAt = make([][]int64, len(p.bins))
	}
	for i, ids := range p.cur {
		p.bestAt[i] = append(p.bestAt[i][:0], ids...)
	}
}

func (p *packer) result() Packing {
	out := Packing{Bins: map[int64][]int64{}, Stats: p.stats}
	if !p.found {
		return out
	}
	out.Value = p.best
	for i, ids := range p.bestAt {
		if len(ids) == 0 {
			continue
		}
		out.Bins[p.bins[i].ID] = append([]int64(nil), ids...)
	}
	return out
}
