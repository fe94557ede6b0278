package gossip

import (
	"github.com/libp2p/go-libp2p/core/protocol"
)

// SyncProtocol is the libp2p stream protocol carrying the pull-sync
// exchange described in spec §4.7: a tips summary followed by a stream of
// missing units, in both directions.
const SyncProtocol = protocol.ID("/alephnode/sync/1.0.0")

// maxWireMessageBytes bounds a single JSON-framed message read from a
// sync stream, guarding against a misbehaving or malicious peer.
const maxWireMessageBytes = 32 * 1024 * 1024

// TipsSummary maps creator id to the height of that creator's highest
// known tip. -1 means the sender knows no unit at all from that creator.
type TipsSummary map[uint32]int

// unitRecord is the wire form of a unit.Unit: the full canonical bytes,
// transmitted as-is so the receiver can call unit.Parse directly.
type unitRecord struct {
	Bytes []byte `json:"bytes"`
}

// syncMessage is one frame of the sync stream. Exactly one of its fields
// is populated per frame; Done marks the end of the unit stream in either
// direction.
type syncMessage struct {
	Tips  TipsSummary `json:"tips,omitempty"`
	Unit  *unitRecord `json:"unit,omitempty"`
	Done  bool        `json:"done,omitempty"`
	Abort string      `json:"abort,omitempty"`
}
