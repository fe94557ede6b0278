// Package gossip implements the sync-based gossip engine: peer
// connections over libp2p streams, peer selection, and the bidirectional
// pull-sync protocol of spec §4.7.
package gossip

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/rs/zerolog"

	"github.com/aleph-zero-go/alephnode/pkg/crypto"
)

// peerstoreTTL is how long we keep a committee member's dial address
// cached. The committee never changes membership at runtime, so this is
// effectively permanent; libp2p just requires a finite TTL.
const peerstoreTTL = 365 * 24 * time.Hour

// Member describes one committee member's known address, for dialing
// during sync. Committee membership is fixed by the startup files of
// spec §6 — there is no discovery protocol.
type Member struct {
	ProcessID uint32
	Host      string // IP or DNS name
	Port      int
	PeerID    peer.ID
}

// Node wraps a libp2p host configured for a fixed, pre-known committee:
// TCP transport, Noise security, Yamux stream multiplexing. No GossipSub,
// no Kademlia DHT, no mDNS — see DESIGN.md.
type Node struct {
	host    host.Host
	self    uint32
	members []Member
	log     zerolog.Logger
}

// DeriveIdentity derives a stable libp2p Ed25519 identity from a
// committee member's signing-key seed, so every node can compute every
// other member's peer ID from the seeds listed in the members file, with no
// separate identity-announcement step.
func DeriveIdentity(seed []byte) (libp2pcrypto.PrivKey, error) {
	digest := crypto.SumHash(seed)
	priv, _, err := libp2pcrypto.GenerateEd25519Key(bytes.NewReader(digest[:]))
	if err != nil {
		return nil, fmt.Errorf("derive libp2p identity: %w", err)
	}
	return priv, nil
}

// New starts a libp2p host bound to listenPort, identified by identity,
// and resolves the peer ID of every other committee member from their
// signing-key seeds, so Connect can address them directly without a
// discovery protocol.
func New(self uint32, identity libp2pcrypto.PrivKey, listenPort int, committeeSeeds [][]byte, hosts []string, log zerolog.Logger) (*Node, error) {
	members := make([]Member, len(committeeSeeds))
	for i, seed := range committeeSeeds {
		priv, err := DeriveIdentity(seed)
		if err != nil {
			return nil, err
		}
		pid, err := peer.IDFromPrivateKey(priv)
		if err != nil {
			return nil, fmt.Errorf("gossip: derive peer id for process %d: %w", i, err)
		}
		members[i] = Member{ProcessID: uint32(i), Host: hosts[i], Port: listenPort, PeerID: pid}
	}

	listenAddr, err := multiaddr.NewMultiaddr(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", listenPort))
	if err != nil {
		return nil, fmt.Errorf("gossip: listen multiaddr: %w", err)
	}

	h, err := libp2p.New(
		libp2p.Identity(identity),
		libp2p.ListenAddrs(listenAddr),
	)
	if err != nil {
		return nil, fmt.Errorf("gossip: create libp2p host: %w", err)
	}

	n := &Node{host: h, self: self, members: members, log: log}
	for _, m := range members {
		if m.ProcessID == self {
			continue
		}
		addr, err := multiaddr.NewMultiaddr(fmt.Sprintf("/ip4/%s/tcp/%d", m.Host, m.Port))
		if err != nil {
			log.Warn().Err(err).Uint32("peer", m.ProcessID).Msg("bad committee member address, skipping")
			continue
		}
		h.Peerstore().AddAddr(m.PeerID, addr, peerstoreTTL)
	}
	return n, nil
}

// Host exposes the underlying libp2p host for stream registration.
func (n *Node) Host() host.Host { return n.host }

// Self returns our own process id.
func (n *Node) Self() uint32 { return n.self }

// Peers returns every committee member other than ourselves.
func (n *Node) Peers() []Member {
	var out []Member
	for _, m := range n.members {
		if m.ProcessID != n.self {
			out = append(out, m)
		}
	}
	return out
}

// Connect dials a committee member if we are not already connected.
func (n *Node) Connect(ctx context.Context, m Member) error {
	if n.host.Network().Connectedness(m.PeerID) == network.Connected {
		return nil
	}
	return n.host.Connect(ctx, peer.AddrInfo{ID: m.PeerID})
}

// Close shuts down the host.
func (n *Node) Close() error {
	return n.host.Close()
}
