// Package unit defines the Unit value object: the signed, immutable node
// of the poset DAG.
package unit

import (
	"fmt"

	"github.com/aleph-zero-go/alephnode/pkg/crypto"
)

// Hash aliases crypto.Hash so callers of this package don't need a second
// import for unit hashes.
type Hash = crypto.Hash

// Unit is a signed poset node. Two or more parents mean it belongs to more
// than one process's view; the first parent is always the creator's own
// self-predecessor, except for dealing units, which have no parents at all.
//
// Height, Level and IsPrime are derived once the unit is inserted into a
// poset and are not part of the signed payload; the unit's floor is kept by
// the poset, not on the unit.
type Unit struct {
	Creator   uint32   // 0..N-1
	Parents   []Hash   // first entry is the self-predecessor, if any
	Txs       [][]byte // opaque transaction payload
	CoinShare []byte   // threshold-coin share, nil unless USE_TCOIN
	Signature []byte   // 64-byte Schnorr signature over SigningBytes()

	hash    *Hash // memoized
	Height  int
	Level   int
	IsPrime bool
}

// IsDealing reports whether the unit has no parents.
func (u *Unit) IsDealing() bool {
	return len(u.Parents) == 0
}

// SelfPredecessor returns the creator's previous unit hash, or the zero
// hash for a dealing unit.
func (u *Unit) SelfPredecessor() (Hash, bool) {
	if u.IsDealing() {
		return Hash{}, false
	}
	return u.Parents[0], true
}

// Hash returns the unit's identity: the BLAKE3 hash of its canonical
// serialization including the signature. Memoized since units are
// immutable once signed.
func (u *Unit) Hash() Hash {
	if u.hash != nil {
		return *u.hash
	}
	h := crypto.SumHash(u.Bytes())
	u.hash = &h
	return h
}

// ShortName renders the unit for log lines: creator id and the first 8 hex
// chars of its hash, e.g. "3/af1349b9".
func (u *Unit) ShortName() string {
	return fmt.Sprintf("%d/%s", u.Creator, u.Hash().Short())
}

// SigningBytes returns the canonical bytes signed by the creator: every
// field except the signature itself.
func (u *Unit) SigningBytes() []byte {
	return encode(u, false)
}

// Bytes returns the full canonical serialization, signature included. This
// is what gets hashed to produce the unit's identity and what travels on
// the wire during sync.
func (u *Unit) Bytes() []byte {
	return encode(u, true)
}

// Verify checks the unit's signature against the given creator public key.
func (u *Unit) Verify(pubKey []byte) bool {
	if len(u.Signature) == 0 {
		return false
	}
	h := crypto.SumHash(u.SigningBytes())
	return crypto.VerifySignature(h[:], u.Signature, pubKey)
}

// Sign computes the signature over SigningBytes() and sets it on the unit.
// Invalidates any memoized hash, since the signature is part of Bytes().
func (u *Unit) Sign(signer crypto.Signer) error {
	h := crypto.SumHash(u.SigningBytes())
	sig, err := signer.Sign(h[:])
	if err != nil {
		return fmt.Errorf("sign unit: %w", err)
	}
	u.Signature = sig
	u.hash = nil
	return nil
}
