// Alephnode committee member daemon.
//
// Usage:
//
//	alephd --members=<file> --my-ip=<address>  Run as a committee member
//	alephd --help                               Show help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aleph-zero-go/alephnode/config"
	"github.com/aleph-zero-go/alephnode/internal/creator"
	"github.com/aleph-zero-go/alephnode/internal/gossip"
	alog "github.com/aleph-zero-go/alephnode/internal/log"
	"github.com/aleph-zero-go/alephnode/internal/poset"
	"github.com/aleph-zero-go/alephnode/internal/process"
	"github.com/aleph-zero-go/alephnode/internal/txsource"
	"github.com/aleph-zero-go/alephnode/pkg/crypto"
)

func main() {
	// ── 1. Load config (defaults → flags) ───────────────────────────────
	cfg, flags, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Init logger ───────────────────────────────────────────────────
	if err := alog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger := alog.WithComponent("main")

	// ── 3. Load committee ────────────────────────────────────────────────
	committee, err := config.LoadCommittee(flags.MembersFile)
	if err != nil {
		logger.Fatal().Err(err).Str("path", flags.MembersFile).Msg("failed to load committee")
	}
	cfg.ProcessID, err = committee.FindProcessID(flags.MyIP)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve our own process id")
	}

	logger = alog.WithProcessID(cfg.ProcessID)

	// N_PARENTS defaults to the committee size N (spec §4.6); --n-parents
	// overrides it explicitly (ApplyFlags would have set a nonzero value).
	if cfg.NParents == 0 {
		cfg.NParents = committee.N()
	}

	logger.Info().
		Int("committee_size", committee.N()).
		Int("n_parents", cfg.NParents).
		Str("my_ip", flags.MyIP).
		Msg("committee loaded")

	ourSeed := committee.Seeds[cfg.ProcessID]
	signer, err := crypto.PrivateKeyFromBytes(ourSeed)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to derive our signing key")
	}
	defer signer.Zero()

	// ── 4. Build poset ───────────────────────────────────────────────────
	p := poset.New(poset.Config{
		NProcesses:          committee.N(),
		VotingStartLevel:    cfg.VotingStartLevel,
		CoinStartDelta:      cfg.CoinStartDelta,
		ThresholdStartLevel: cfg.ThresholdStartLevel(),
		UseThresholdCoin:    cfg.UseThresholdCoin,
	}, committee.PubKeys, alog.Poset)

	// ── 5. Build creator ─────────────────────────────────────────────────
	c := creator.New(creator.Config{
		NParents:      cfg.NParents,
		CreateDelay:   cfg.CreateDelay,
		StepSize:      cfg.StepSize,
		AdaptiveDelay: cfg.AdaptiveDelay,
	}, cfg.ProcessID, p, signer, alog.Creator)

	// ── 6. Build gossip node ─────────────────────────────────────────────
	identity, err := gossip.DeriveIdentity(ourSeed)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to derive gossip identity")
	}

	hosts := make([]string, committee.N())
	for i, addr := range committee.Addresses {
		hosts[i] = hostOf(addr)
	}

	node, err := gossip.New(cfg.ProcessID, identity, cfg.ListenPort, committee.Seeds, hosts, alog.Gossip)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start gossip node")
	}

	syncer := gossip.NewSyncer(node, p, alog.Gossip)
	dispatcher := gossip.NewDispatcher(gossip.DispatcherConfig{
		Selection:     gossip.PeerSelection(cfg.PeerSelection),
		SyncInitDelay: cfg.SyncInitDelay,
		SyncsLimit:    cfg.SyncsLimit,
	}, node, syncer, alog.Gossip)

	logger.Info().
		Str("peer_id", node.Host().ID().String()).
		Int("port", cfg.ListenPort).
		Msg("gossip node started")

	// ── 7. Build transaction source ──────────────────────────────────────
	var txSource txsource.Source
	switch cfg.TxSource {
	case config.TxSourceListener:
		txSource = &txsource.TCPListener{Addr: cfg.TxListenAddr, Log: alog.TxSource}
	default:
		txSource = &txsource.Generator{
			BatchSize: cfg.GeneratorBatchSize,
			TxPerUnit: cfg.TxPerUnit,
			Seed:      cfg.GeneratorSeed + int64(cfg.ProcessID),
			Interval:  cfg.CreateDelay,
		}
	}

	// ── 8. Wire the process driver ───────────────────────────────────────
	proc := process.New(process.Config{
		Self:       cfg.ProcessID,
		Poset:      p,
		Creator:    c,
		Node:       node,
		Syncer:     syncer,
		Dispatcher: dispatcher,
		TxSource:   txSource,
		Limits: process.Limits{
			UnitsLimit: cfg.UnitsLimit,
			LevelLimit: cfg.LevelLimit,
		},
		TxPerUnit: cfg.TxPerUnit,
		DumpPath:  cfg.DumpPath,
		Log:       alog.Process,
	})

	// ── 9. Run until a shutdown signal or a configured limit ────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- proc.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
		<-runErrCh
	case err := <-runErrCh:
		if err != nil {
			logger.Error().Err(err).Msg("process exited with error")
		}
	}

	// Give goroutines a moment to unwind network connections cleanly.
	time.Sleep(100 * time.Millisecond)
	logger.Info().Msg("goodbye")
}

// hostOf strips the port from a "host:port" address, since gossip.New takes
// the listen port separately.
func hostOf(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}
