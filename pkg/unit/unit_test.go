package unit

import (
	"bytes"
	"testing"

	"github.com/aleph-zero-go/alephnode/pkg/crypto"
)

func signedDealingUnit(t *testing.T, creator uint32) (*Unit, *crypto.PrivateKey) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	u := &Unit{
		Creator: creator,
		Txs:     [][]byte{[]byte("tx1"), []byte("tx2")},
	}
	if err := u.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	return u, key
}

func TestUnit_BytesParseRoundtrip(t *testing.T) {
	u, _ := signedDealingUnit(t, 2)
	data := u.Bytes()

	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if parsed.Creator != u.Creator {
		t.Errorf("Creator = %d, want %d", parsed.Creator, u.Creator)
	}
	if len(parsed.Txs) != len(u.Txs) {
		t.Fatalf("Txs length = %d, want %d", len(parsed.Txs), len(u.Txs))
	}
	for i := range u.Txs {
		if !bytes.Equal(parsed.Txs[i], u.Txs[i]) {
			t.Errorf("Txs[%d] = %q, want %q", i, parsed.Txs[i], u.Txs[i])
		}
	}
	if !bytes.Equal(parsed.Signature, u.Signature) {
		t.Error("Signature mismatch after roundtrip")
	}
	if parsed.Hash() != u.Hash() {
		t.Error("Hash mismatch after roundtrip")
	}
}

func TestUnit_SignVerify(t *testing.T) {
	u, key := signedDealingUnit(t, 0)
	if !u.Verify(key.PublicKey()) {
		t.Error("unit should verify against its signer's public key")
	}
}

func TestUnit_VerifyFailsWithWrongKey(t *testing.T) {
	u, _ := signedDealingUnit(t, 0)
	other, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	if u.Verify(other.PublicKey()) {
		t.Error("unit should not verify against an unrelated key")
	}
}

func TestUnit_HashChangesWithParents(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	dealing, _ := signedDealingUnit(t, 0)

	child := &Unit{Creator: 0, Parents: []Hash{dealing.Hash()}}
	if err := child.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	if child.Hash() == dealing.Hash() {
		t.Error("child unit should hash differently from its parent")
	}
	if child.IsDealing() {
		t.Error("unit with a parent should not be a dealing unit")
	}
	pred, ok := child.SelfPredecessor()
	if !ok || pred != dealing.Hash() {
		t.Error("SelfPredecessor should return the first parent")
	}
}

func TestUnit_DealingHasNoSelfPredecessor(t *testing.T) {
	u, _ := signedDealingUnit(t, 1)
	if !u.IsDealing() {
		t.Error("unit with no parents should be a dealing unit")
	}
	if _, ok := u.SelfPredecessor(); ok {
		t.Error("dealing unit should have no self-predecessor")
	}
}

func TestUnit_EmptyCoinShareRoundtrips(t *testing.T) {
	u, _ := signedDealingUnit(t, 0)
	parsed, err := Parse(u.Bytes())
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(parsed.CoinShare) != 0 {
		t.Errorf("CoinShare = %v, want empty", parsed.CoinShare)
	}
}

func TestUnit_CoinShareRoundtrips(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	u := &Unit{Creator: 3, CoinShare: []byte("share-bytes")}
	if err := u.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	parsed, err := Parse(u.Bytes())
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if !bytes.Equal(parsed.CoinShare, u.CoinShare) {
		t.Errorf("CoinShare = %q, want %q", parsed.CoinShare, u.CoinShare)
	}
}
