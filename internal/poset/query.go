package poset

import "github.com/aleph-zero-go/alephnode/pkg/unit"

// TipsSummary reports, for every creator with at least one known unit, the
// maximum height reached. This is exactly the summary exchanged at the
// start of a sync per spec §4.7.
func (p *Poset) TipsSummary() map[uint32]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[uint32]int, len(p.maximal))
	for creator, tips := range p.maximal {
		max := -1
		for _, t := range tips {
			if t.Height > max {
				max = t.Height
			}
		}
		out[creator] = max
	}
	return out
}

// UnitsAbove returns every unit by `creator` at a height strictly greater
// than `height` (including every forked branch, if creator is a forker).
// Used to determine what a peer summarizing its tips at `height` is
// missing from this creator.
func (p *Poset) UnitsAbove(creator uint32, height int) []*unit.Unit {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*unit.Unit
	for h, units := range p.chainByCreator[creator] {
		if h > height {
			out = append(out, units...)
		}
	}
	return out
}

// Creators returns every creator id with at least one known unit.
func (p *Poset) Creators() []uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]uint32, 0, len(p.maximal))
	for c := range p.maximal {
		out = append(out, c)
	}
	return out
}
