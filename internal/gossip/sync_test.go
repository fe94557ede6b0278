package gossip

import (
	"testing"

	"github.com/aleph-zero-go/alephnode/pkg/crypto"
	"github.com/aleph-zero-go/alephnode/pkg/unit"
)

func mustSign(t *testing.T, u *unit.Unit, key *crypto.PrivateKey) *unit.Unit {
	t.Helper()
	if err := u.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	return u
}

func TestTopoSort_OrdersParentsBeforeChildren(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	dealing := mustSign(t, &unit.Unit{Creator: 0}, key)
	child := mustSign(t, &unit.Unit{Creator: 0, Parents: []unit.Hash{dealing.Hash()}}, key)
	grandchild := mustSign(t, &unit.Unit{Creator: 0, Parents: []unit.Hash{child.Hash()}}, key)

	ordered, err := topoSort([]*unit.Unit{grandchild, dealing, child})
	if err != nil {
		t.Fatalf("topoSort() error: %v", err)
	}
	if len(ordered) != 3 {
		t.Fatalf("ordered length = %d, want 3", len(ordered))
	}

	pos := make(map[unit.Hash]int, 3)
	for i, u := range ordered {
		pos[u.Hash()] = i
	}
	if pos[dealing.Hash()] >= pos[child.Hash()] {
		t.Error("dealing unit should precede its child in topological order")
	}
	if pos[child.Hash()] >= pos[grandchild.Hash()] {
		t.Error("child should precede grandchild in topological order")
	}
}

func TestTopoSort_IndependentUnitsBothIncluded(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	a := mustSign(t, &unit.Unit{Creator: 0}, key)
	b := mustSign(t, &unit.Unit{Creator: 1}, key)

	ordered, err := topoSort([]*unit.Unit{a, b})
	if err != nil {
		t.Fatalf("topoSort() error: %v", err)
	}
	if len(ordered) != 2 {
		t.Fatalf("ordered length = %d, want 2", len(ordered))
	}
}
