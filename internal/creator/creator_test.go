package creator

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aleph-zero-go/alephnode/internal/poset"
	"github.com/aleph-zero-go/alephnode/pkg/crypto"
	"github.com/aleph-zero-go/alephnode/pkg/unit"
)

func newTestPoset(t *testing.T, n int) (*poset.Poset, []*crypto.PrivateKey) {
	t.Helper()
	var keys []*crypto.PrivateKey
	var pubs [][]byte
	for i := 0; i < n; i++ {
		k, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("GenerateKey() error: %v", err)
		}
		keys = append(keys, k)
		pubs = append(pubs, k.PublicKey())
	}
	cfg := poset.Config{NProcesses: n, VotingStartLevel: 3, CoinStartDelta: 3, ThresholdStartLevel: 1 << 30}
	return poset.New(cfg, pubs, zerolog.Nop()), keys
}

func addDealing(t *testing.T, p *poset.Poset, keys []*crypto.PrivateKey) []*unit.Unit {
	t.Helper()
	var dealing []*unit.Unit
	for c, k := range keys {
		u := &unit.Unit{Creator: uint32(c)}
		if err := u.Sign(k); err != nil {
			t.Fatalf("Sign() error: %v", err)
		}
		if err := p.CheckCompliance(u); err != nil {
			t.Fatalf("CheckCompliance() error: %v", err)
		}
		if err := p.AddUnit(u); err != nil {
			t.Fatalf("AddUnit() error: %v", err)
		}
		dealing = append(dealing, u)
	}
	return dealing
}

func TestCreateUnit_FirstUnitIsDealing(t *testing.T) {
	p, keys := newTestPoset(t, 4)
	c := New(Config{NParents: 4, CreateDelay: time.Second, StepSize: 0.1}, 0, p, keys[0], zerolog.Nop())

	u, err := c.CreateUnit(nil)
	if err != nil {
		t.Fatalf("CreateUnit() error: %v", err)
	}
	if !u.IsDealing() {
		t.Error("first unit created by a process should be a dealing unit")
	}
}

func TestCreateUnit_PicksUpOtherTips(t *testing.T) {
	p, keys := newTestPoset(t, 4)
	addDealing(t, p, keys)

	c := New(Config{NParents: 4, CreateDelay: time.Second, StepSize: 0.1}, 0, p, keys[0], zerolog.Nop())
	u, err := c.CreateUnit([][]byte{[]byte("tx")})
	if err != nil {
		t.Fatalf("CreateUnit() error: %v", err)
	}
	// A lone self-predecessor would already satisfy len(u.Parents) == 0 being
	// false; assert we actually picked up the other three processes' dealing
	// units as parents, not just our own.
	if len(u.Parents) != 4 {
		t.Fatalf("expected all 4 dealing units (self + 3 others) as parents, got %d", len(u.Parents))
	}
	pred, ok := u.SelfPredecessor()
	if !ok {
		t.Fatal("expected a self-predecessor")
	}
	if pred != u.Parents[0] {
		t.Error("self-predecessor must be the first parent")
	}
	// With all 4 dealing units as parents, n_correct (3 of 4) distinct
	// creators are visible at level 0, so the new unit must reach level 1.
	if u.Level != 1 {
		t.Errorf("u.Level = %d, want 1 (n_correct reached over 4 dealing units)", u.Level)
	}
}

func TestAdaptiveDelay_SpeedsUpWhenSlow(t *testing.T) {
	p, keys := newTestPoset(t, 4)
	addDealing(t, p, keys)

	cfg := Config{NParents: 4, CreateDelay: time.Second, StepSize: 0.5, AdaptiveDelay: true}
	c := New(cfg, 0, p, keys[0], zerolog.Nop())

	c.recordLevel(0)
	c.recordLevel(0)
	initial := c.Delay()
	c.recordLevel(2) // l2=0 <= l0-2=0 ⇒ advancing too slowly ⇒ delay decreases
	if c.Delay() >= initial {
		t.Errorf("delay should decrease when advancing slowly: before=%v after=%v", initial, c.Delay())
	}
}

func TestAdaptiveDelay_SlowsDownWhenFast(t *testing.T) {
	p, keys := newTestPoset(t, 4)
	addDealing(t, p, keys)

	cfg := Config{NParents: 4, CreateDelay: time.Second, StepSize: 0.5, AdaptiveDelay: true}
	c := New(cfg, 0, p, keys[0], zerolog.Nop())

	c.recordLevel(0)
	c.recordLevel(1)
	initial := c.Delay()
	c.recordLevel(1) // l1 == l0 ⇒ producing too fast ⇒ delay increases
	if c.Delay() <= initial {
		t.Errorf("delay should increase when producing too fast: before=%v after=%v", initial, c.Delay())
	}
}
