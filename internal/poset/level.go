package poset

import "github.com/aleph-zero-go/alephnode/pkg/unit"

// computeLevel implements the level rule: a dealing unit is at level 0;
// otherwise let L be the max level of U's parents, and P the set of prime
// units at level L visible below U. If |P| >= nCorrect, U is at L+1,
// otherwise U stays at L.
//
// Must run with p.mu held, after U's parents are indexed but before U
// itself is.
func computeLevel(p *Poset, u *unit.Unit) int {
	if u.IsDealing() {
		return 0
	}

	maxParentLevel := 0
	for i, ph := range u.Parents {
		pu, ok := p.units[ph]
		if !ok {
			continue
		}
		if i == 0 || pu.Level > maxParentLevel {
			maxParentLevel = pu.Level
		}
	}

	visible := visiblePrimesAtLevel(p, u, maxParentLevel)
	if len(visible) >= p.nCorrect {
		return maxParentLevel + 1
	}
	return maxParentLevel
}

// visiblePrimesAtLevel returns, per creator, one prime unit at the given
// level that is below U (reachable through U's parents), using the
// parents' floors rather than U's own (not yet computed).
func visiblePrimesAtLevel(p *Poset, u *unit.Unit, level int) map[uint32]*unit.Unit {
	seen := make(map[uint32]*unit.Unit)
	for _, ph := range u.Parents {
		pf := p.floors[ph]
		for creator, maxima := range pf {
			if _, ok := seen[creator]; ok {
				continue
			}
			for _, m := range maxima {
				if found := firstPrimeAtOrBelow(p, m, level); found != nil {
					seen[creator] = found
					break
				}
			}
		}
	}
	return seen
}

// firstPrimeAtOrBelow walks down from start along its own creator's chain
// looking for a prime unit at exactly the given level. Returns nil if
// start's creator never reaches that level at or below start.
func firstPrimeAtOrBelow(p *Poset, start *unit.Unit, level int) *unit.Unit {
	cur := start
	for cur != nil {
		if cur.Level < level {
			return nil
		}
		if cur.Level == level && cur.IsPrime {
			return cur
		}
		pred, ok := cur.SelfPredecessor()
		if !ok {
			return nil
		}
		predUnit, ok := p.units[pred]
		if !ok {
			return nil
		}
		cur = predUnit
	}
	return nil
}

// computeIsPrime reports whether U is the lowest-height unit of its
// creator at its own level, i.e. its self-predecessor is at a strictly
// lower level (or U is a dealing unit, always prime at level 0).
func computeIsPrime(p *Poset, u *unit.Unit) bool {
	pred, ok := u.SelfPredecessor()
	if !ok {
		return true
	}
	predUnit, ok := p.units[pred]
	if !ok {
		return false
	}
	return predUnit.Level < u.Level
}
