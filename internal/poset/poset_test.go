package poset

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/aleph-zero-go/alephnode/pkg/crypto"
	"github.com/aleph-zero-go/alephnode/pkg/unit"
)

type testCommittee struct {
	keys []*crypto.PrivateKey
	pubs [][]byte
}

func newTestCommittee(t *testing.T, n int) *testCommittee {
	t.Helper()
	tc := &testCommittee{}
	for i := 0; i < n; i++ {
		k, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("GenerateKey() error: %v", err)
		}
		tc.keys = append(tc.keys, k)
		tc.pubs = append(tc.pubs, k.PublicKey())
	}
	return tc
}

func (tc *testCommittee) newPoset(t *testing.T) *Poset {
	t.Helper()
	cfg := Config{
		NProcesses:          len(tc.keys),
		VotingStartLevel:    3,
		CoinStartDelta:      3,
		ThresholdStartLevel: 1 << 30,
		UseThresholdCoin:    false,
	}
	return New(cfg, tc.pubs, zerolog.Nop())
}

func (tc *testCommittee) build(t *testing.T, creator uint32, parents []*unit.Unit) *unit.Unit {
	t.Helper()
	var parentHashes []unit.Hash
	for _, p := range parents {
		parentHashes = append(parentHashes, p.Hash())
	}
	u := &unit.Unit{Creator: creator, Parents: parentHashes}
	if err := u.Sign(tc.keys[creator]); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	return u
}

func (tc *testCommittee) addOrFatal(t *testing.T, p *Poset, u *unit.Unit) {
	t.Helper()
	if err := p.CheckCompliance(u); err != nil {
		t.Fatalf("CheckCompliance(%s) error: %v", u.ShortName(), err)
	}
	if err := p.AddUnit(u); err != nil {
		t.Fatalf("AddUnit(%s) error: %v", u.ShortName(), err)
	}
}

// TestDealingUnitsAreLevelZeroPrime mirrors test_poset_floor.py's
// trivial_single_level scenario: every dealing unit starts its own chain
// at level 0 and is prime.
func TestDealingUnitsAreLevelZeroPrime(t *testing.T) {
	tc := newTestCommittee(t, 4)
	p := tc.newPoset(t)

	var dealing []*unit.Unit
	for c := uint32(0); c < 4; c++ {
		u := tc.build(t, c, nil)
		tc.addOrFatal(t, p, u)
		dealing = append(dealing, u)
	}

	for _, u := range dealing {
		if u.Level != 0 {
			t.Errorf("dealing unit %s level = %d, want 0", u.ShortName(), u.Level)
		}
		if !u.IsPrime {
			t.Errorf("dealing unit %s should be prime", u.ShortName())
		}
	}
}

// TestSimpleTower mirrors test_poset_floor.py's simple_tower: each process
// builds a unit with all four dealing units as parents; each such unit's
// floor must contain exactly the unit itself for its own creator, and one
// maximal dealing unit per other creator.
func TestSimpleTower(t *testing.T) {
	tc := newTestCommittee(t, 4)
	p := tc.newPoset(t)

	var dealing []*unit.Unit
	for c := uint32(0); c < 4; c++ {
		u := tc.build(t, c, nil)
		tc.addOrFatal(t, p, u)
		dealing = append(dealing, u)
	}

	// Build U_c = creator c's unit with self-predecessor first, then every
	// other dealing unit, for every creator.
	for c := uint32(0); c < 4; c++ {
		parents := []*unit.Unit{dealing[c]}
		for other := uint32(0); other < 4; other++ {
			if other != c {
				parents = append(parents, dealing[other])
			}
		}
		u := tc.build(t, c, parents)
		tc.addOrFatal(t, p, u)

		if u.Level != 1 {
			t.Errorf("tower unit by creator %d level = %d, want 1 (n_correct reached)", c, u.Level)
		}
		floor := p.floors[u.Hash()]
		if len(floor) != 4 {
			t.Fatalf("tower unit by creator %d floor has %d creators, want 4", c, len(floor))
		}
		for other := uint32(0); other < 4; other++ {
			if len(floor[other]) != 1 {
				t.Errorf("tower unit by creator %d floor[%d] has %d entries, want 1", c, other, len(floor[other]))
			}
		}
	}
}

// TestSecondForkBranchRejected checks rule 4: once a non-forker has a unit
// on top of its dealing unit, a second unit by the same creator on that same
// self-predecessor fails compliance, so the fork never enters the poset.
func TestSecondForkBranchRejected(t *testing.T) {
	tc := newTestCommittee(t, 4)
	p := tc.newPoset(t)

	var dealing []*unit.Unit
	for c := uint32(0); c < 4; c++ {
		u := tc.build(t, c, nil)
		tc.addOrFatal(t, p, u)
		dealing = append(dealing, u)
	}

	// Creator 0 forks: two distinct units built directly on its dealing unit.
	forkA := tc.build(t, 0, []*unit.Unit{dealing[0], dealing[1]})
	tc.addOrFatal(t, p, forkA)

	forkB := tc.build(t, 0, []*unit.Unit{dealing[0], dealing[2]})
	if err := p.CheckCompliance(forkB); err == nil {
		t.Fatal("expected compliance rejection for a second fork branch from a non-forker")
	}
}

// TestLinearOrderIsPrefixStable checks invariant 8: once units are
// appended to the linear order they are never removed or reordered by
// further insertions.
func TestLinearOrderIsPrefixStable(t *testing.T) {
	tc := newTestCommittee(t, 4)
	p := tc.newPoset(t)

	var dealing []*unit.Unit
	for c := uint32(0); c < 4; c++ {
		u := tc.build(t, c, nil)
		tc.addOrFatal(t, p, u)
		dealing = append(dealing, u)
	}

	before := append([]unit.Hash(nil), p.LinearOrder()...)

	for c := uint32(0); c < 4; c++ {
		parents := []*unit.Unit{dealing[c]}
		for other := uint32(0); other < 4; other++ {
			if other != c {
				parents = append(parents, dealing[other])
			}
		}
		tc.addOrFatal(t, p, tc.build(t, c, parents))
	}

	after := p.LinearOrder()
	for i, h := range before {
		if after[i] != h {
			t.Fatalf("linear order prefix changed at index %d", i)
		}
	}
}

// TestTimingDecisionAtLevelThree builds a full-mesh DAG up to level 4 (every
// unit in a round references every process's previous-round tip, so all 4
// creators are visible and the level rule advances by one each round) and
// checks the headline consensus behavior end to end: a level-3 timing unit
// gets elected, and the linear order is extended by exactly its cone, sorted
// by the documented round/creator-permutation/height/hash tie-break.
func TestTimingDecisionAtLevelThree(t *testing.T) {
	tc := newTestCommittee(t, 4)
	p := tc.newPoset(t)

	var dealing []*unit.Unit
	tips := make([]*unit.Unit, 4)
	for c := uint32(0); c < 4; c++ {
		u := tc.build(t, c, nil)
		tc.addOrFatal(t, p, u)
		tips[c] = u
		dealing = append(dealing, u)
	}

	for round := 1; round <= 4; round++ {
		next := make([]*unit.Unit, 4)
		for c := uint32(0); c < 4; c++ {
			parents := []*unit.Unit{tips[c]}
			for other := uint32(0); other < 4; other++ {
				if other != c {
					parents = append(parents, tips[other])
				}
			}
			u := tc.build(t, c, parents)
			tc.addOrFatal(t, p, u)
			next[c] = u
		}
		tips = next
		for _, u := range tips {
			if u.Level != round {
				t.Fatalf("round %d unit by creator %d level = %d, want %d", round, u.Creator, u.Level, round)
			}
		}
	}

	if p.HighestLevel() < 4 {
		t.Fatalf("HighestLevel() = %d, want >= 4", p.HighestLevel())
	}

	timingUnit := p.voting.decided[3]
	if timingUnit == nil {
		t.Fatal("expected a level-3 timing unit to be elected once level-4 units exist")
	}

	order := p.LinearOrder()
	if len(order) == 0 {
		t.Fatal("expected the linear order to be extended once a level-3 timing unit was elected")
	}

	ordered := make(map[unit.Hash]bool, len(order))
	for _, h := range order {
		ordered[h] = true
	}
	for _, d := range dealing {
		if !ordered[d.Hash()] {
			t.Errorf("dealing unit %s should be in the linear order below the level-3 timing unit", d.ShortName())
		}
	}

	// Recompute the tie-break order over exactly the units the extension
	// appended and check it matches what onTimingUnitElected produced.
	appended := make([]*unit.Unit, len(order))
	for i, h := range order {
		appended[i] = p.units[h]
	}
	want := append([]*unit.Unit(nil), appended...)
	tieBreak(p, timingUnit, want)
	for i := range want {
		if want[i].Hash() != appended[i].Hash() {
			t.Fatalf("linear order does not match the documented tie-break order at index %d", i)
		}
	}
}
