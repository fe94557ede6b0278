package poset

import "github.com/aleph-zero-go/alephnode/pkg/unit"

// computeFloor derives U's floor: for each creator c, the maximal units by c
// that are below U. It merges the floors of U's parents with {U itself} for
// c = U.Creator, keeping only maxima under Below within each creator's set.
//
// Must run with p.mu held (called from addUnitLocked, before U's own floor
// entry exists).
func computeFloor(p *Poset, u *unit.Unit) map[uint32][]*unit.Unit {
	merged := make(map[uint32][]*unit.Unit)
	for _, parentHash := range u.Parents {
		parentFloor := p.floors[parentHash]
		for creator, units := range parentFloor {
			merged[creator] = mergeMaximal(p, merged[creator], units)
		}
	}
	merged[u.Creator] = mergeMaximal(p, merged[u.Creator], []*unit.Unit{u})
	return merged
}

// mergeMaximal combines two lists of units from the same creator, keeping
// only the elements not below some other element of the combined set
// (i.e. the maxima under Below, restricted to the given lists).
func mergeMaximal(p *Poset, a, b []*unit.Unit) []*unit.Unit {
	combined := append(append([]*unit.Unit(nil), a...), b...)
	var maxima []*unit.Unit
	for i, candidate := range combined {
		dominated := false
		for j, other := range combined {
			if i == j {
				continue
			}
			if candidate.Hash() == other.Hash() {
				if i > j {
					dominated = true // de-duplicate, keep first occurrence
				}
				continue
			}
			if p.belowLocked(candidate.Hash(), other.Hash()) {
				dominated = true
				break
			}
		}
		if !dominated {
			maxima = append(maxima, candidate)
		}
	}
	return maxima
}
