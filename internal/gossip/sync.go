package gossip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/rs/zerolog"

	"github.com/aleph-zero-go/alephnode/internal/poset"
	"github.com/aleph-zero-go/alephnode/pkg/unit"
)

// syncStreamTimeout bounds how long either side waits on a single sync.
const syncStreamTimeout = 30 * time.Second

// Syncer drives both roles of the bidirectional pull-sync protocol of
// spec §4.7 over a single libp2p stream per sync.
type Syncer struct {
	node  *Node
	poset *poset.Poset
	log   zerolog.Logger
}

// NewSyncer attaches a Syncer to a node and the poset it keeps in sync.
func NewSyncer(n *Node, p *poset.Poset, log zerolog.Logger) *Syncer {
	return &Syncer{node: n, poset: p, log: log}
}

// RegisterHandler installs the responder side of the protocol on the
// host: receive the initiator's tips summary, reply with ours, send what
// they're missing, then receive what we're missing from them.
func (s *Syncer) RegisterHandler() {
	s.node.Host().SetStreamHandler(SyncProtocol, func(stream network.Stream) {
		defer stream.Close()
		_ = stream.SetDeadline(time.Now().Add(syncStreamTimeout))
		if err := s.respond(stream); err != nil {
			s.log.Debug().Err(err).Str("peer", stream.Conn().RemotePeer().String()).Msg("sync (responder) aborted")
		}
	})
}

// SyncWith performs one sync as the initiator against peer m, per
// spec §4.7 steps 1-6.
func (s *Syncer) SyncWith(ctx context.Context, m Member) (received int, sent int, err error) {
	if err := s.node.Connect(ctx, m); err != nil {
		return 0, 0, fmt.Errorf("sync: connect to process %d: %w", m.ProcessID, err)
	}

	stream, err := s.node.Host().NewStream(ctx, m.PeerID, SyncProtocol)
	if err != nil {
		return 0, 0, fmt.Errorf("sync: open stream to process %d: %w", m.ProcessID, err)
	}
	defer stream.Close()
	_ = stream.SetDeadline(time.Now().Add(syncStreamTimeout))

	enc := json.NewEncoder(stream)
	dec := json.NewDecoder(io.LimitReader(stream, maxWireMessageBytes))

	// Step 2: send our tips summary.
	ourTips := s.poset.TipsSummary()
	if err := enc.Encode(syncMessage{Tips: ourTips}); err != nil {
		return 0, 0, fmt.Errorf("sync: send tips summary: %w", err)
	}

	// Step 3a: receive the responder's tips summary.
	var theirTipsMsg syncMessage
	if err := dec.Decode(&theirTipsMsg); err != nil {
		return 0, 0, fmt.Errorf("sync: read tips summary: %w", err)
	}

	// Step 3b/4: receive the stream of units we're missing.
	received, err = s.receiveUnits(dec)
	if err != nil {
		return received, 0, fmt.Errorf("sync: receive units: %w", err)
	}

	// Step 5: send what the responder is missing, based on their summary.
	sent, err = s.sendMissing(enc, theirTipsMsg.Tips)
	if err != nil {
		return received, sent, fmt.Errorf("sync: send units: %w", err)
	}

	return received, sent, nil
}

// respond implements the responder side: read the initiator's summary,
// reply with ours, send what they're missing, then receive what we're
// missing from them.
func (s *Syncer) respond(stream network.Stream) error {
	enc := json.NewEncoder(stream)
	dec := json.NewDecoder(io.LimitReader(stream, maxWireMessageBytes))

	var theirTipsMsg syncMessage
	if err := dec.Decode(&theirTipsMsg); err != nil {
		return fmt.Errorf("read tips summary: %w", err)
	}

	ourTips := s.poset.TipsSummary()
	if err := enc.Encode(syncMessage{Tips: ourTips}); err != nil {
		return fmt.Errorf("send tips summary: %w", err)
	}

	if _, err := s.sendMissing(enc, theirTipsMsg.Tips); err != nil {
		return fmt.Errorf("send units: %w", err)
	}

	if _, err := s.receiveUnits(dec); err != nil {
		return fmt.Errorf("receive units: %w", err)
	}
	return nil
}

// sendMissing sends every unit this poset has that the peer's tips
// summary suggests it lacks, in dependency order, followed by a Done
// frame.
func (s *Syncer) sendMissing(enc *json.Encoder, peerTips TipsSummary) (int, error) {
	var missing []*unit.Unit
	for _, creator := range s.poset.Creators() {
		peerHeight, ok := peerTips[creator]
		if !ok {
			peerHeight = -1
		}
		missing = append(missing, s.poset.UnitsAbove(creator, peerHeight)...)
	}

	ordered, err := topoSort(missing)
	if err != nil {
		return 0, err
	}

	for _, u := range ordered {
		if err := enc.Encode(syncMessage{Unit: &unitRecord{Bytes: u.Bytes()}}); err != nil {
			return 0, fmt.Errorf("encode unit %s: %w", u.ShortName(), err)
		}
	}
	if err := enc.Encode(syncMessage{Done: true}); err != nil {
		return 0, fmt.Errorf("encode done frame: %w", err)
	}
	return len(ordered), nil
}

// receiveUnits reads units until a Done or Abort frame. A batch in which
// some parent is neither already in the poset nor in the batch is discarded
// whole, before anything is inserted. Otherwise each unit is
// compliance-checked and inserted in the order received (the sender already
// put them in dependency order); the first unit that fails ends the sync,
// and the units inserted before it stay in the poset.
func (s *Syncer) receiveUnits(dec *json.Decoder) (int, error) {
	var batch []*unit.Unit
	for {
		var msg syncMessage
		if err := dec.Decode(&msg); err != nil {
			return 0, fmt.Errorf("decode frame: %w", err)
		}
		if msg.Abort != "" {
			return 0, fmt.Errorf("peer aborted sync: %s", msg.Abort)
		}
		if msg.Done {
			break
		}
		if msg.Unit == nil {
			continue
		}
		u, err := unit.Parse(msg.Unit.Bytes)
		if err != nil {
			return 0, fmt.Errorf("parse received unit: %w", err)
		}
		batch = append(batch, u)
	}

	inBatch := make(map[unit.Hash]bool, len(batch))
	for _, u := range batch {
		inBatch[u.Hash()] = true
	}
	for _, u := range batch {
		for _, ph := range u.Parents {
			if !inBatch[ph] && !s.poset.Has(ph) {
				return 0, fmt.Errorf("received unit %s has dangling parent %s, batch discarded", u.ShortName(), ph.Short())
			}
		}
	}

	inserted := 0
	for _, u := range batch {
		if s.poset.Has(u.Hash()) {
			continue
		}
		if err := s.poset.CheckCompliance(u); err != nil {
			return inserted, fmt.Errorf("received unit %s rejected: %w", u.ShortName(), err)
		}
		if err := s.poset.AddUnit(u); err != nil {
			return inserted, fmt.Errorf("insert received unit %s: %w", u.ShortName(), err)
		}
		inserted++
	}
	return inserted, nil
}

// topoSort orders units so that every unit appears after all of its
// parents that are also present in the same batch. Units whose parents
// are not in the batch are assumed already known to the receiver.
func topoSort(units []*unit.Unit) ([]*unit.Unit, error) {
	byHash := make(map[unit.Hash]*unit.Unit, len(units))
	for _, u := range units {
		byHash[u.Hash()] = u
	}

	inDegree := make(map[unit.Hash]int, len(units))
	children := make(map[unit.Hash][]unit.Hash)
	for _, u := range units {
		h := u.Hash()
		for _, p := range u.Parents {
			if _, ok := byHash[p]; ok {
				inDegree[h]++
				children[p] = append(children[p], h)
			}
		}
	}

	var queue []unit.Hash
	for _, u := range units {
		h := u.Hash()
		if inDegree[h] == 0 {
			queue = append(queue, h)
		}
	}

	var ordered []*unit.Unit
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		ordered = append(ordered, byHash[h])
		for _, c := range children[h] {
			inDegree[c]--
			if inDegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}

	if len(ordered) != len(units) {
		return nil, fmt.Errorf("topoSort: cycle or dangling reference among %d units", len(units))
	}
	return ordered, nil
}
