// Package process wires the poset, creator, gossip engine and
// transaction source into the single running node described by spec §5:
// a creator loop, a sync dispatcher and a listener pool sharing one
// poset, synchronized by its internal lock.
package process

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aleph-zero-go/alephnode/internal/creator"
	"github.com/aleph-zero-go/alephnode/internal/gossip"
	"github.com/aleph-zero-go/alephnode/internal/poset"
	"github.com/aleph-zero-go/alephnode/internal/txsource"
)

// Limits holds the termination constants from spec §6: a process stops
// cleanly after reaching either bound, with exit code 0.
type Limits struct {
	UnitsLimit int // 0 means unlimited
	LevelLimit int // 0 means unlimited
}

// Process is a single committee member's running node.
type Process struct {
	self uint32

	poset      *poset.Poset
	creator    *creator.Creator
	node       *gossip.Node
	syncer     *gossip.Syncer
	dispatcher *gossip.Dispatcher
	txSource   txsource.Source
	txQueue    chan [][]byte

	limits Limits
	txpu   int
	dumpTo string

	log zerolog.Logger

	keepSyncing atomic.Bool
	unitsBuilt  atomic.Int64
}

// Config gathers everything needed to build a Process.
type Config struct {
	Self       uint32
	Poset      *poset.Poset
	Creator    *creator.Creator
	Node       *gossip.Node
	Syncer     *gossip.Syncer
	Dispatcher *gossip.Dispatcher
	TxSource   txsource.Source
	Limits     Limits
	TxPerUnit  int
	DumpPath   string
	Log        zerolog.Logger
}

// New builds a Process from its already-constructed components.
func New(cfg Config) *Process {
	p := &Process{
		self:       cfg.Self,
		poset:      cfg.Poset,
		creator:    cfg.Creator,
		node:       cfg.Node,
		syncer:     cfg.Syncer,
		dispatcher: cfg.Dispatcher,
		txSource:   cfg.TxSource,
		txQueue:    txsource.NewQueue(),
		limits:     cfg.Limits,
		txpu:       cfg.TxPerUnit,
		dumpTo:     cfg.DumpPath,
		log:        cfg.Log,
	}
	p.keepSyncing.Store(true)
	return p
}

// Run starts the gossip listener, the sync dispatcher, the transaction
// source and the creator loop, blocking until ctx is cancelled or a
// configured limit is reached. It mirrors the original driver's
// create_add/dispatch_syncs/start_listeners split, realized here as three
// cooperating goroutines over one mutex-guarded poset.
func (p *Process) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.syncer.RegisterHandler()

	go p.dispatcher.Run(ctx)
	go p.txSource.Run(ctx, p.txQueue)

	p.log.Info().
		Uint32("process_id", p.self).
		Msg("process started")

	err := p.createLoop(ctx)

	p.keepSyncing.Store(false)
	if p.dumpTo != "" {
		if dumpErr := p.dumpPoset(); dumpErr != nil {
			p.log.Error().Err(dumpErr).Msg("failed to write poset debug dump")
		}
	}
	if closeErr := p.node.Close(); closeErr != nil {
		p.log.Warn().Err(closeErr).Msg("error closing gossip node")
	}
	return err
}

// createLoop repeatedly builds a unit, waits out the adaptive delay, and
// checks the UnitsLimit/LevelLimit termination conditions from spec §6.
func (p *Process) createLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		txs := p.drainTxs()
		start := time.Now()
		u, err := p.creator.CreateUnit(txs)
		if err != nil {
			p.log.Warn().Err(err).Msg("failed to create unit, retrying after delay")
		} else {
			p.unitsBuilt.Add(1)
			p.log.Debug().
				Str("unit", u.ShortName()).
				Dur("took", time.Since(start)).
				Msg("create_unit")

			if p.limits.UnitsLimit > 0 && int(p.unitsBuilt.Load()) >= p.limits.UnitsLimit {
				p.log.Info().Int64("units", p.unitsBuilt.Load()).Msg("reached units limit, stopping")
				return nil
			}
			if p.limits.LevelLimit > 0 && p.poset.HighestLevel() >= p.limits.LevelLimit {
				p.log.Info().Int("level", p.poset.HighestLevel()).Msg("reached level limit, stopping")
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.creator.Delay()):
		}
	}
}

// drainTxs pulls whole batches from the queue without blocking until at
// least TxPerUnit transactions are collected or the queue is empty; the last
// batch can take the total past TxPerUnit. A quiet tx source never stalls
// unit production.
func (p *Process) drainTxs() [][]byte {
	var txs [][]byte
	for len(txs) < p.txpu {
		select {
		case batch := <-p.txQueue:
			txs = append(txs, batch...)
		default:
			return txs
		}
	}
	return txs
}

func (p *Process) dumpPoset() error {
	f, err := os.Create(p.dumpTo)
	if err != nil {
		return fmt.Errorf("create dump file: %w", err)
	}
	defer f.Close()
	return p.poset.Dump(f)
}
