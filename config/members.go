package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/aleph-zero-go/alephnode/pkg/crypto"
)

// MemberEntry is one committee member's entry in the members file: a
// signing-key seed (hex) and the gossip address it listens on.
type MemberEntry struct {
	SigningKeySeed string `json:"signing_key_seed"`
	Address        string `json:"address"`
}

// Committee is the loaded, canonically-ordered committee: every member's
// signing-key seed, public key and address, sorted by ascending hex of
// public key so that every node derives an identical process-id assignment
// from the same members file.
type Committee struct {
	Seeds     [][]byte
	PubKeys   [][]byte
	Addresses []string
}

// N returns the committee size.
func (c *Committee) N() int { return len(c.PubKeys) }

// LoadCommittee reads a members file and sorts it into canonical order.
// The sort is ascending by hex-encoded public key, matching the committee
// ordering used throughout the poset (creator ids are indices into this
// sorted order), so every node that loads the same file computes the same
// process ids.
func LoadCommittee(path string) (*Committee, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read members file: %w", err)
	}

	var entries []MemberEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse members file: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("members file has no entries")
	}

	type member struct {
		seed    []byte
		pub     []byte
		addr    string
		pubHex  string
	}
	members := make([]member, len(entries))
	for i, e := range entries {
		seed, err := hex.DecodeString(e.SigningKeySeed)
		if err != nil {
			return nil, fmt.Errorf("member %d: bad signing key seed: %w", i, err)
		}
		priv, err := crypto.PrivateKeyFromBytes(seed)
		if err != nil {
			return nil, fmt.Errorf("member %d: derive key: %w", i, err)
		}
		pub := priv.PublicKey()
		members[i] = member{seed: seed, pub: pub, addr: e.Address, pubHex: hex.EncodeToString(pub)}
	}

	sort.Slice(members, func(i, j int) bool { return members[i].pubHex < members[j].pubHex })

	c := &Committee{
		Seeds:     make([][]byte, len(members)),
		PubKeys:   make([][]byte, len(members)),
		Addresses: make([]string, len(members)),
	}
	for i, m := range members {
		c.Seeds[i] = m.seed
		c.PubKeys[i] = m.pub
		c.Addresses[i] = m.addr
	}
	return c, nil
}

// FindProcessID returns the canonical process id of the member whose
// address equals myAddr.
func (c *Committee) FindProcessID(myAddr string) (uint32, error) {
	for i, a := range c.Addresses {
		if a == myAddr {
			return uint32(i), nil
		}
	}
	return 0, fmt.Errorf("address %q not found in members file", myAddr)
}
