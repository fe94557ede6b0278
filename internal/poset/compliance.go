package poset

import (
	"errors"
	"fmt"

	"github.com/aleph-zero-go/alephnode/pkg/unit"
)

// ComplianceError reports which of the seven compliance rules rejected a
// unit, carrying the rule number for logging and test assertions.
type ComplianceError struct {
	Rule int
	Unit string
	Msg  string
}

func (e *ComplianceError) Error() string {
	return fmt.Sprintf("unit %s fails compliance rule %d: %s", e.Unit, e.Rule, e.Msg)
}

var errUnknownCreator = errors.New("creator id out of committee range")

// CheckCompliance validates U against all seven rules before it may be
// passed to AddUnit. Signatures are checked against p.pubKeys, the
// committee's public keys indexed by process id.
func (p *Poset) CheckCompliance(u *unit.Unit) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.checkComplianceLocked(u)
}

func (p *Poset) checkComplianceLocked(u *unit.Unit) error {
	if int(u.Creator) >= len(p.pubKeys) {
		return errUnknownCreator
	}

	// Rule 1: signature.
	if !u.Verify(p.pubKeys[u.Creator]) {
		return &ComplianceError{1, u.ShortName(), "signature does not verify"}
	}

	if err := p.checkStructuralLocked(u); err != nil {
		return err
	}

	// Rule 7: threshold coin share.
	if p.cfg.UseThresholdCoin {
		if err := p.checkCoinShare(u); err != nil {
			return err
		}
	}

	return nil
}

// CheckCandidateParents validates rules 2-6 (parent presence, distinct
// parent creators, self-predecessor, expand-primes, forker-muting) against
// a trial unit that carries a candidate parent set but no signature yet.
// It is used by the creator package to test candidate parent sets one tip
// at a time while greedily building a new unit, before the unit is signed
// and the full CheckCompliance (including the rule 1 signature check) can
// run against it.
func (p *Poset) CheckCandidateParents(u *unit.Unit) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if int(u.Creator) >= len(p.pubKeys) {
		return errUnknownCreator
	}
	return p.checkStructuralLocked(u)
}

// checkStructuralLocked runs rules 2-6, the parent-set checks that don't
// depend on U's own signature.
func (p *Poset) checkStructuralLocked(u *unit.Unit) error {
	// Rule 2: parent presence.
	for _, ph := range u.Parents {
		if _, ok := p.units[ph]; !ok {
			return &ComplianceError{2, u.ShortName(), fmt.Sprintf("parent %s missing", ph.Short())}
		}
	}

	// Rule 3: distinct parent creators.
	seenCreators := make(map[uint32]bool, len(u.Parents))
	for _, ph := range u.Parents {
		pu := p.units[ph]
		if seenCreators[pu.Creator] {
			return &ComplianceError{3, u.ShortName(), "duplicate parent creator"}
		}
		seenCreators[pu.Creator] = true
	}

	// Rule 4: self-predecessor.
	if err := p.checkSelfPredecessor(u); err != nil {
		return err
	}

	// Rule 5: expand-primes.
	if err := p.checkExpandPrimes(u); err != nil {
		return err
	}

	// Rule 6: forker-muting.
	return p.checkForkerMuting(u)
}

// checkSelfPredecessor enforces rule 4: the first parent must be the
// unique non-forked predecessor by U.Creator at height U.Height-1, and
// accepting U must not introduce a previously unknown fork by a
// non-forker.
func (p *Poset) checkSelfPredecessor(u *unit.Unit) error {
	if u.IsDealing() {
		if existing := p.chainByCreator[u.Creator]; len(existing[0]) > 0 && !p.forkers[u.Creator] {
			return &ComplianceError{4, u.ShortName(), "second dealing unit from a non-forker"}
		}
		return nil
	}

	pred, _ := u.SelfPredecessor()
	predUnit, ok := p.units[pred]
	if !ok {
		return &ComplianceError{4, u.ShortName(), "self-predecessor missing"}
	}
	if predUnit.Creator != u.Creator {
		return &ComplianceError{4, u.ShortName(), "first parent is not by the same creator"}
	}

	if !p.forkers[u.Creator] {
		existing := p.chainByCreator[u.Creator][predUnit.Height+1]
		for _, e := range existing {
			if e.Hash() != pred && e.Hash() != u.Hash() {
				// Another unit already occupies this height via a different
				// self-predecessor: accepting U would introduce a fork we
				// were the first to observe.
				return &ComplianceError{4, u.ShortName(), "introduces previously unknown fork"}
			}
		}
	}
	return nil
}

// checkExpandPrimes enforces rule 5: walking the parent list in order,
// each subsequent parent must introduce at least one new visible prime
// unit at the current max parent level seen so far; a parent at a
// strictly higher level resets the visible set.
func (p *Poset) checkExpandPrimes(u *unit.Unit) error {
	if len(u.Parents) <= 1 {
		return nil
	}
	visible := make(map[uint32]bool)
	maxLevel := -1
	for i, ph := range u.Parents {
		pu := p.units[ph]
		if i == 0 {
			maxLevel = pu.Level
			p.collectVisiblePrimes(pu, maxLevel, visible)
			continue
		}
		if pu.Level > maxLevel {
			maxLevel = pu.Level
			visible = make(map[uint32]bool)
			p.collectVisiblePrimes(pu, maxLevel, visible)
			continue
		}
		before := len(visible)
		p.collectVisiblePrimes(pu, maxLevel, visible)
		if len(visible) == before {
			return &ComplianceError{5, u.ShortName(), "redundant parent adds no new prime witness"}
		}
	}
	return nil
}

func (p *Poset) collectVisiblePrimes(from *unit.Unit, level int, into map[uint32]bool) {
	for creator, maxima := range p.floors[from.Hash()] {
		for _, m := range maxima {
			if firstPrimeAtOrBelow(p, m, level) != nil {
				into[creator] = true
				break
			}
		}
	}
}

// checkForkerMuting enforces rule 6: U must not have as a parent any unit
// whose creator is known, from the lower cone of U's parents, to be a
// forker.
func (p *Poset) checkForkerMuting(u *unit.Unit) error {
	coneFloor := make(map[uint32][]*unit.Unit)
	for _, ph := range u.Parents {
		for creator, maxima := range p.floors[ph] {
			coneFloor[creator] = mergeMaximal(p, coneFloor[creator], maxima)
		}
	}
	forkersInCone := make(map[uint32]bool)
	for creator, maxima := range coneFloor {
		if len(maxima) > 1 {
			forkersInCone[creator] = true
		}
	}
	for _, ph := range u.Parents {
		pu := p.units[ph]
		if forkersInCone[pu.Creator] {
			return &ComplianceError{6, u.ShortName(), fmt.Sprintf("parent creator %d muted as forker", pu.Creator)}
		}
	}
	return nil
}

// checkCoinShare enforces rule 7: once U is prime at or beyond the
// threshold start level, it must carry the creator's coin share.
func (p *Poset) checkCoinShare(u *unit.Unit) error {
	if u.Level < p.cfg.ThresholdStartLevel {
		return nil
	}
	if !computeIsPrime(p, u) {
		return nil
	}
	if len(u.CoinShare) == 0 {
		return &ComplianceError{7, u.ShortName(), "missing threshold-coin share"}
	}
	return nil
}
