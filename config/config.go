// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol parameters: set from defaults and command-line flags, and
//     required to be identical across every member. They are not read from
//     the committee file, and nothing here checks that members agree.
//   - Node settings: runtime configuration, can vary per node.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

// TxSourceKind selects which built-in transaction source a node runs.
type TxSourceKind string

const (
	// TxSourceGenerator emits synthetic transactions on a fixed interval.
	TxSourceGenerator TxSourceKind = "generator"
	// TxSourceListener accepts transactions over a local TCP socket.
	TxSourceListener TxSourceKind = "listener"
)

// Config holds node-specific runtime configuration plus the protocol
// parameters (spec §6), both built from defaults and command-line flags.
// Protocol parameters must match across every member of the committee;
// node settings may vary.
type Config struct {
	// Core
	DataDir       string
	MembersFile   string
	ProcessID     uint32 // our own index into the committee, from -my-ip match
	ListenPort    int
	DumpPath      string // written on termination if non-empty

	// Protocol parameters (spec §6), identical across the committee.
	NParents             int
	UseThresholdCoin     bool
	VotingStartLevel     int
	CoinStartDelta       int // ThresholdStartLevel = VotingStartLevel + CoinStartDelta
	CreateDelay          time.Duration
	StepSize             float64
	AdaptiveDelay        bool
	SyncInitDelay        time.Duration
	PeerSelection        string // "uniform-random" or "non-recent-random"
	TxPerUnit            int
	LevelLimit           int // 0 = unlimited
	UnitsLimit           int // 0 = unlimited
	SyncsLimit           int // 0 = unlimited

	// Transaction source.
	TxSource     TxSourceKind
	TxListenAddr string // used when TxSource == TxSourceListener
	GeneratorBatchSize int
	GeneratorSeed      int64

	// Logging
	Log LogConfig
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
	File  string
	JSON  bool
}

// ThresholdStartLevel is the level at which rule 7 (coin share required)
// begins to apply.
func (c *Config) ThresholdStartLevel() int {
	return c.VotingStartLevel + c.CoinStartDelta
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.alephnode
//	macOS:   ~/Library/Application Support/Alephnode
//	Windows: %APPDATA%\Alephnode
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".alephnode"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Alephnode")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Alephnode")
		}
		return filepath.Join(home, "AppData", "Roaming", "Alephnode")
	default:
		return filepath.Join(home, ".alephnode")
	}
}

// NodeDataDir returns this process's own data subdirectory, keyed by
// process id so that a local multi-node test run doesn't collide.
func (c *Config) NodeDataDir() string {
	return filepath.Join(c.DataDir, "process-"+strconv.FormatUint(uint64(c.ProcessID), 10))
}
