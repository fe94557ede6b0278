package poset

import (
	"encoding/binary"
	"sort"

	"github.com/aleph-zero-go/alephnode/pkg/crypto"
)

// CRP is the Common Random Permutation: a permutation of {0..N-1} that
// depends only on a level and the committee's public keys. It is
// deterministic and produces the same order on every correct node, since
// it is derived purely from data every node already has at startup.
type CRP struct {
	n       int
	pubKeys [][]byte
}

// NewCRP builds a CRP over the committee's public keys, indexed by process
// id (pubKeys[i] is process i's key).
func NewCRP(pubKeys [][]byte) *CRP {
	cp := make([][]byte, len(pubKeys))
	for i, k := range pubKeys {
		cp[i] = append([]byte(nil), k...)
	}
	return &CRP{n: len(pubKeys), pubKeys: cp}
}

// Sigma returns the permutation of process ids for the given level:
// Sigma(level)[r] is the process id at rank r, where processes are ranked by
// ascending hash(level ‖ pubkey[i]).
func (c *CRP) Sigma(level int) []uint32 {
	type keyed struct {
		pid  uint32
		sort crypto.Hash
	}
	entries := make([]keyed, c.n)
	var lvl [8]byte
	binary.LittleEndian.PutUint64(lvl[:], uint64(int64(level)))
	for pid, pk := range c.pubKeys {
		buf := make([]byte, 0, len(lvl)+len(pk))
		buf = append(buf, lvl[:]...)
		buf = append(buf, pk...)
		entries[pid] = keyed{pid: uint32(pid), sort: crypto.SumHash(buf)}
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytesLess(entries[i].sort[:], entries[j].sort[:])
	})
	perm := make([]uint32, c.n)
	for rank, e := range entries {
		perm[rank] = e.pid
	}
	return perm
}

func bytesLess(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
