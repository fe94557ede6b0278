package gossip

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PeerSelection chooses which committee member to sync with next.
type PeerSelection string

const (
	// UniformRandom picks uniformly among all peers other than ourselves.
	UniformRandom PeerSelection = "uniform-random"
	// NonRecentRandom prefers peers we haven't synced with in the last
	// N/3 dispatches, falling back to UniformRandom if none qualify.
	NonRecentRandom PeerSelection = "non-recent-random"
)

// DispatcherConfig holds the pacing and peer-selection parameters of
// spec §4.7 and §6.
type DispatcherConfig struct {
	Selection     PeerSelection
	SyncInitDelay time.Duration
	SyncsLimit    int // 0 means unlimited
}

// Dispatcher launches syncs against committee members, spaced by
// SyncInitDelay, using the configured peer-selection policy.
type Dispatcher struct {
	cfg     DispatcherConfig
	node    *Node
	syncer  *Syncer
	log     zerolog.Logger
	rand    *rand.Rand

	mu      sync.Mutex
	history []uint32 // most recently synced-with process ids, newest last
}

// NewDispatcher builds a Dispatcher for the given node and syncer.
func NewDispatcher(cfg DispatcherConfig, n *Node, s *Syncer, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:    cfg,
		node:   n,
		syncer: s,
		log:    log,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run launches syncs until ctx is cancelled or SyncsLimit is reached.
// Each dispatch picks a peer per the configured policy, runs one sync,
// then sleeps for SyncInitDelay before the next.
func (d *Dispatcher) Run(ctx context.Context) {
	count := 0
	for {
		if d.cfg.SyncsLimit > 0 && count >= d.cfg.SyncsLimit {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.cfg.SyncInitDelay):
		}

		peer, ok := d.choosePeer()
		if !ok {
			continue
		}

		received, sent, err := d.syncer.SyncWith(ctx, peer)
		if err != nil {
			d.log.Warn().Err(err).Uint32("peer", peer.ProcessID).Msg("sync failed")
		} else {
			d.log.Debug().
				Uint32("peer", peer.ProcessID).
				Int("received", received).
				Int("sent", sent).
				Msg("sync completed")
		}
		d.recordSync(peer.ProcessID)
		count++
	}
}

func (d *Dispatcher) choosePeer() (Member, bool) {
	peers := d.node.Peers()
	if len(peers) == 0 {
		return Member{}, false
	}

	if d.cfg.Selection == NonRecentRandom {
		if candidate, ok := d.nonRecentCandidate(peers); ok {
			return candidate, true
		}
	}
	return peers[d.rand.Intn(len(peers))], true
}

// nonRecentCandidate picks uniformly among peers absent from the last
// N/3 entries of sync history, where N is the number of committee
// members we know about.
func (d *Dispatcher) nonRecentCandidate(peers []Member) (Member, bool) {
	d.mu.Lock()
	n := len(peers) + 1 // +1 for ourselves
	window := n / 3
	var recent map[uint32]bool
	if window > 0 {
		start := len(d.history) - window
		if start < 0 {
			start = 0
		}
		recent = make(map[uint32]bool, len(d.history)-start)
		for _, pid := range d.history[start:] {
			recent[pid] = true
		}
	}
	d.mu.Unlock()

	var candidates []Member
	for _, p := range peers {
		if !recent[p.ProcessID] {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return Member{}, false
	}
	return candidates[d.rand.Intn(len(candidates))], true
}

func (d *Dispatcher) recordSync(pid uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = append(d.history, pid)
	if len(d.history) > 1024 {
		d.history = d.history[len(d.history)-1024:]
	}
}
