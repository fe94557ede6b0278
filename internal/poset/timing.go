package poset

import (
	"encoding/binary"
	"sort"

	"github.com/aleph-zero-go/alephnode/pkg/crypto"
	"github.com/aleph-zero-go/alephnode/pkg/unit"
)

// votingState tracks, per level, which candidate prime unit (scanned in
// CRP order) is being voted on for the role of timing unit, the votes cast
// so far, and the levels already decided.
type votingState struct {
	p *Poset

	decided   map[int]*unit.Unit // level -> elected timing unit
	eliminated map[int]map[crypto.Hash]bool

	voteCache map[voteKey]int // memoized votes, each 0 or 1
}

type voteKey struct {
	candidate crypto.Hash
	voter     crypto.Hash
}

func newVotingState(p *Poset) *votingState {
	return &votingState{
		p:          p,
		decided:    make(map[int]*unit.Unit),
		eliminated: make(map[int]map[crypto.Hash]bool),
		voteCache:  make(map[voteKey]int),
	}
}

// onNewPrimeUnit is called (with p.mu held) whenever a new prime unit is
// indexed. It re-attempts the election for every undecided level strictly
// below the new unit's level, since the new unit may now act as a voter.
func (vs *votingState) onNewPrimeUnit(newUnit *unit.Unit) {
	for level := vs.p.cfg.VotingStartLevel; level < newUnit.Level; level++ {
		if vs.decided[level] != nil {
			continue
		}
		// Decisions proceed level by level: a level may only be attempted
		// once every lower eligible level has already been decided.
		if level > vs.p.cfg.VotingStartLevel && vs.decided[level-1] == nil {
			break
		}
		vs.tryDecideLevel(level)
	}
}

// tryDecideLevel scans candidates at `level` in CRP order, trying to reach
// a decision for each using every prime unit above it as a voter. The
// first candidate to decide "1" is elected; candidates deciding "0" are
// permanently eliminated and the scan moves to the next.
func (vs *votingState) tryDecideLevel(level int) {
	p := vs.p
	if vs.eliminated[level] == nil {
		vs.eliminated[level] = make(map[crypto.Hash]bool)
	}

	order := p.crp.Sigma(level)
	candidatesByCreator := make(map[uint32]*unit.Unit)
	for _, u := range p.primeByLevel[level] {
		candidatesByCreator[u.Creator] = u
	}

	for _, pid := range order {
		cand, ok := candidatesByCreator[pid]
		if !ok {
			continue
		}
		if vs.eliminated[level][cand.Hash()] {
			continue
		}

		decision, ok := vs.decide(cand)
		if !ok {
			return // not yet decidable; try again when more units arrive
		}
		if decision == 1 {
			vs.decided[level] = cand
			p.onTimingUnitElected(cand)
			return
		}
		vs.eliminated[level][cand.Hash()] = true
		// fall through to the next candidate in CRP order
	}
}

// decide looks for a popularity proof for candidate: a level L' at which a
// supermajority of prime voters agree on the same bit. Returns ok=false if
// no such level has been reached yet given the units currently indexed.
func (vs *votingState) decide(candidate *unit.Unit) (bit int, ok bool) {
	p := vs.p
	for voterLevel := candidate.Level + 1; voterLevel <= p.highestLevel; voterLevel++ {
		voters := p.primeByLevel[voterLevel]
		if len(voters) == 0 {
			continue
		}
		ones, zeros := 0, 0
		for _, v := range voters {
			switch vs.vote(candidate, v) {
			case 1:
				ones++
			case 0:
				zeros++
			}
		}
		if ones >= p.nCorrect {
			return 1, true
		}
		if zeros >= p.nCorrect {
			return 0, true
		}
	}
	return 0, false
}

// vote computes (and memoizes) voter V's vote for candidate, per §4.5:
// initial vote at delta 1, majority-of-lower-level vote at small delta,
// common-coin fallback at large delta.
func (vs *votingState) vote(candidate, v *unit.Unit) int {
	key := voteKey{candidate.Hash(), v.Hash()}
	if cached, ok := vs.voteCache[key]; ok {
		return cached
	}

	delta := v.Level - candidate.Level
	var result int
	switch {
	case delta == 1:
		if vs.p.belowLocked(candidate.Hash(), v.Hash()) {
			result = 1
		} else {
			result = 0
		}
	case delta < vs.p.cfg.CoinStartDelta:
		result = vs.majorityBelow(candidate, v)
	default:
		result = vs.coinFallback(candidate, v)
	}

	vs.voteCache[key] = result
	return result
}

// majorityBelow returns the majority vote among prime units at v.Level-1
// that are below v.
func (vs *votingState) majorityBelow(candidate, v *unit.Unit) int {
	p := vs.p
	ones, zeros := 0, 0
	for _, u := range p.primeByLevel[v.Level-1] {
		if !p.belowLocked(u.Hash(), v.Hash()) {
			continue
		}
		if vs.vote(candidate, u) == 1 {
			ones++
		} else {
			zeros++
		}
	}
	if ones >= zeros {
		return 1
	}
	return 0
}

// coinFallback votes with the majority among lower-level witnesses when
// that majority is super-strong (more than 2/3 of nCorrect); otherwise it
// falls back to the level's common coin.
//
// A real threshold-coin oracle combines per-unit coin shares into an
// unpredictable bit; this implementation is not wired to one (see
// DESIGN.md, internal/poset, "Documented simplification") and instead
// derives a deterministic pseudo-random bit from the candidate's hash and
// the voter's level,
// which is sufficient to guarantee termination and agreement across nodes
// without adding a genuine unpredictability guarantee against an adaptive
// adversary.
func (vs *votingState) coinFallback(candidate, v *unit.Unit) int {
	p := vs.p
	ones, zeros := 0, 0
	for _, u := range p.primeByLevel[v.Level-1] {
		if !p.belowLocked(u.Hash(), v.Hash()) {
			continue
		}
		if vs.vote(candidate, u) == 1 {
			ones++
		} else {
			zeros++
		}
	}
	strong := 2 * p.nCorrect / 3
	if ones > strong {
		return 1
	}
	if zeros > strong {
		return 0
	}
	return commonCoin(candidate.Hash(), v.Level)
}

// commonCoin derives a deterministic bit from the candidate's hash and the
// voting level, agreed byte-for-byte by every node without further
// communication.
func commonCoin(candidate crypto.Hash, level int) int {
	var lvl [8]byte
	binary.LittleEndian.PutUint64(lvl[:], uint64(int64(level)))
	h := crypto.SumHash(append(append([]byte(nil), candidate[:]...), lvl[:]...))
	return int(h[0] & 1)
}

// onTimingUnitElected extends the linear order with every previously
// unordered unit below the newly elected timing unit, sorted by the
// deterministic tie-break. Must run with p.mu held.
func (p *Poset) onTimingUnitElected(timingUnit *unit.Unit) {
	var toOrder []*unit.Unit
	remaining := p.unordered[:0]
	for _, h := range p.unordered {
		if p.ordered[h] {
			continue
		}
		if p.belowLocked(h, timingUnit.Hash()) {
			toOrder = append(toOrder, p.units[h])
		} else {
			remaining = append(remaining, h)
		}
	}
	p.unordered = remaining

	tieBreak(p, timingUnit, toOrder)

	for _, u := range toOrder {
		h := u.Hash()
		p.ordered[h] = true
		p.linearOrder = append(p.linearOrder, h)
	}

	p.log.Info().
		Str("timing_unit", timingUnit.ShortName()).
		Int("level", timingUnit.Level).
		Int("extended_by", len(toOrder)).
		Msg("timing unit elected, linear order extended")
}

// tieBreak sorts units in place by: round (minimum parent-hop distance
// from T), then creator id under a pseudo-random permutation seeded by T,
// then height, then hash. This is deterministic from (S, T) alone and
// produces the same order on every node.
func tieBreak(p *Poset, t *unit.Unit, units []*unit.Unit) {
	round := roundsFrom(p, t, units)
	permRank := permutationSeededBy(t.Hash(), p.cfg.NProcesses)

	sort.Slice(units, func(i, j int) bool {
		a, b := units[i], units[j]
		ra, rb := round[a.Hash()], round[b.Hash()]
		if ra != rb {
			return ra < rb
		}
		if permRank[a.Creator] != permRank[b.Creator] {
			return permRank[a.Creator] < permRank[b.Creator]
		}
		if a.Height != b.Height {
			return a.Height < b.Height
		}
		ah, bh := a.Hash(), b.Hash()
		return string(ah[:]) < string(bh[:])
	})
}

// roundsFrom computes, for every unit in units, the minimum number of
// parent hops from t to reach it via a breadth-first walk down t's cone
// (following parent edges, i.e. towards ancestors).
func roundsFrom(p *Poset, t *unit.Unit, units []*unit.Unit) map[crypto.Hash]int {
	want := make(map[crypto.Hash]bool, len(units))
	for _, u := range units {
		want[u.Hash()] = true
	}
	rounds := make(map[crypto.Hash]int)
	visited := map[crypto.Hash]bool{t.Hash(): true}
	frontier := []*unit.Unit{t}
	depth := 0
	for len(frontier) > 0 && len(rounds) < len(want) {
		var next []*unit.Unit
		for _, u := range frontier {
			for _, ph := range u.Parents {
				if visited[ph] {
					continue
				}
				visited[ph] = true
				pu, ok := p.units[ph]
				if !ok {
					continue
				}
				if want[ph] {
					rounds[ph] = depth + 1
				}
				next = append(next, pu)
			}
		}
		frontier = next
		depth++
	}
	return rounds
}

// permutationSeededBy derives a pseudo-random permutation of {0..n-1} from
// seed, used to break ties by creator id.
func permutationSeededBy(seed crypto.Hash, n int) []int {
	type keyed struct {
		pid  int
		sort crypto.Hash
	}
	entries := make([]keyed, n)
	for i := 0; i < n; i++ {
		var idx [4]byte
		binary.LittleEndian.PutUint32(idx[:], uint32(i))
		entries[i] = keyed{pid: i, sort: crypto.HashConcat(seed, crypto.SumHash(idx[:]))}
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytesLess(entries[i].sort[:], entries[j].sort[:])
	})
	rank := make([]int, n)
	for r, e := range entries {
		rank[e.pid] = r
	}
	return rank
}
