// Package poset implements the DAG index, compliance rules, level rule and
// timing-unit election that together form a node's view of the shared
// history of units.
package poset

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aleph-zero-go/alephnode/pkg/crypto"
	"github.com/aleph-zero-go/alephnode/pkg/unit"
)

// Hash aliases crypto.Hash for callers that only import this package.
type Hash = crypto.Hash

// Config holds the poset-wide constants that must be fixed and agreed
// across the committee before any unit is created.
type Config struct {
	NProcesses          int
	VotingStartLevel    int
	CoinStartDelta      int
	ThresholdStartLevel int
	UseThresholdCoin    bool
}

// Poset is a mutable index over signed units, keyed by the committee's
// public keys. It is safe for concurrent use: every mutating and most
// reading operations take the internal lock, since the creator loop, the
// sync dispatcher and the listener pool all touch the same poset from
// separate goroutines.
type Poset struct {
	mu sync.RWMutex

	cfg       Config
	pubKeys   [][]byte
	crp       *CRP
	nCorrect  int
	log       zerolog.Logger

	units map[Hash]*unit.Unit

	// chainByCreator[c][h] lists every unit created by c at height h. Size
	// >1 at any height marks c a forker.
	chainByCreator map[uint32]map[int][]*unit.Unit
	maximal        map[uint32][]*unit.Unit
	forkers        map[uint32]bool

	floors map[Hash]map[uint32][]*unit.Unit

	primeByLevel map[int][]*unit.Unit
	highestLevel int

	voting      *votingState
	linearOrder []Hash
	ordered     map[Hash]bool
	unordered   []Hash
}

// New builds an empty poset for a committee of the given public keys.
func New(cfg Config, pubKeys [][]byte, log zerolog.Logger) *Poset {
	f := (cfg.NProcesses - 1) / 3
	p := &Poset{
		cfg:            cfg,
		pubKeys:        pubKeys,
		crp:            NewCRP(pubKeys),
		nCorrect:       cfg.NProcesses - f,
		log:            log,
		units:          make(map[Hash]*unit.Unit),
		chainByCreator: make(map[uint32]map[int][]*unit.Unit),
		maximal:        make(map[uint32][]*unit.Unit),
		forkers:        make(map[uint32]bool),
		floors:         make(map[Hash]map[uint32][]*unit.Unit),
		primeByLevel:   make(map[int][]*unit.Unit),
		ordered:        make(map[Hash]bool),
	}
	p.voting = newVotingState(p)
	return p
}

// NCorrect returns N-f, the supermajority threshold used by the level rule
// and the timing-unit election.
func (p *Poset) NCorrect() int { return p.nCorrect }

// Has reports whether a unit with the given hash is already indexed.
func (p *Poset) Has(h Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.units[h]
	return ok
}

// Get returns the unit with the given hash, if indexed.
func (p *Poset) Get(h Hash) (*unit.Unit, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u, ok := p.units[h]
	return u, ok
}

// HighestLevel returns the highest level reached by any unit in the poset.
func (p *Poset) HighestLevel() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.highestLevel
}

// IsForker reports whether creator c is known to have forked.
func (p *Poset) IsForker(c uint32) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.forkers[c]
}

// MaximalUnits returns the current tips by creator c. A length greater than
// one means c is a forker.
func (p *Poset) MaximalUnits(c uint32) []*unit.Unit {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*unit.Unit(nil), p.maximal[c]...)
}

// Tips returns one maximal unit per non-forking creator plus every tip of
// every forker, i.e. the full candidate-parent set for a new unit.
func (p *Poset) Tips() []*unit.Unit {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var tips []*unit.Unit
	for _, us := range p.maximal {
		tips = append(tips, us...)
	}
	return tips
}

// PrimeUnitsByLevel returns the prime units at level L across all creators.
func (p *Poset) PrimeUnitsByLevel(level int) []*unit.Unit {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*unit.Unit(nil), p.primeByLevel[level]...)
}

// LinearOrder returns the hashes decided so far, in order.
func (p *Poset) LinearOrder() []Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Hash(nil), p.linearOrder...)
}

// AddUnit inserts U into the poset. The caller must already have checked
// U's compliance with CheckCompliance; AddUnit only re-derives height,
// level, floor and primality and is a no-op if U's hash is already present.
func (p *Poset) AddUnit(u *unit.Unit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addUnitLocked(u)
}

func (p *Poset) addUnitLocked(u *unit.Unit) error {
	h := u.Hash()
	if _, ok := p.units[h]; ok {
		return nil // idempotent
	}

	if pred, ok := u.SelfPredecessor(); ok {
		predUnit, ok := p.units[pred]
		if !ok {
			return fmt.Errorf("add unit %s: self-predecessor %s not present", u.ShortName(), pred.Short())
		}
		u.Height = predUnit.Height + 1
	} else {
		u.Height = 0
	}

	u.Level = computeLevel(p, u)
	u.IsPrime = computeIsPrime(p, u)

	p.units[h] = u
	p.indexChain(u)
	p.updateMaximal(u)
	p.floors[h] = computeFloor(p, u)

	if u.IsPrime {
		p.primeByLevel[u.Level] = append(p.primeByLevel[u.Level], u)
		if u.Level > p.highestLevel {
			p.highestLevel = u.Level
		}
	}
	p.unordered = append(p.unordered, h)

	p.log.Debug().
		Str("unit", u.ShortName()).
		Int("height", u.Height).
		Int("level", u.Level).
		Bool("prime", u.IsPrime).
		Msg("unit added to poset")

	if u.IsPrime {
		p.voting.onNewPrimeUnit(u)
	}
	return nil
}

func (p *Poset) indexChain(u *unit.Unit) {
	byHeight, ok := p.chainByCreator[u.Creator]
	if !ok {
		byHeight = make(map[int][]*unit.Unit)
		p.chainByCreator[u.Creator] = byHeight
	}
	byHeight[u.Height] = append(byHeight[u.Height], u)
	if len(byHeight[u.Height]) > 1 && !p.forkers[u.Creator] {
		p.forkers[u.Creator] = true
		p.log.Warn().Uint32("creator", u.Creator).Msg("creator marked as forker")
	}
}

func (p *Poset) updateMaximal(u *unit.Unit) {
	tips := p.maximal[u.Creator]
	if pred, ok := u.SelfPredecessor(); ok {
		kept := tips[:0]
		for _, t := range tips {
			if t.Hash() != pred {
				kept = append(kept, t)
			}
		}
		tips = kept
	}
	tips = append(tips, u)
	p.maximal[u.Creator] = tips
}

// Below reports whether V is an ancestor of W, or V==W. It uses the floor
// cache: V is below W iff V is in W's floor list for V's creator, or V is
// below one of the units in that list.
func (p *Poset) Below(v, w Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.belowLocked(v, w)
}

func (p *Poset) belowLocked(v, w Hash) bool {
	if v == w {
		return true
	}
	vu, ok := p.units[v]
	if !ok {
		return false
	}
	wFloor, ok := p.floors[w]
	if !ok {
		return false
	}
	for _, f := range wFloor[vu.Creator] {
		if f.Hash() == v {
			return true
		}
		if p.belowLocked(v, f.Hash()) {
			return true
		}
	}
	return false
}
