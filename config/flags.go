package config

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// Flags holds parsed command-line flags.
type Flags struct {
	Help    bool
	Version bool

	DataDir     string
	MembersFile string
	MyIP        string
	ListenPort  int
	DumpPath    string

	NParents         int
	UseThresholdCoin bool
	CreateDelayMs    int
	SyncInitDelayMs  int
	PeerSelection    string
	TxPerUnit        int
	LevelLimit       int
	UnitsLimit       int
	SyncsLimit       int

	TxSource     string
	TxListenAddr string

	LogLevel string
	LogFile  string
	LogJSON  bool

	SetUseThresholdCoin bool
	SetLogJSON          bool
}

// ParseFlags parses command-line flags.
func ParseFlags() *Flags {
	f := &Flags{}
	fs := flag.NewFlagSet("alephnode", flag.ContinueOnError)

	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")

	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.MembersFile, "members", "", "Committee members file (signing keys + addresses)")
	fs.StringVar(&f.MyIP, "my-ip", "", "This node's address as it appears in the members file")
	fs.IntVar(&f.ListenPort, "port", 0, "Gossip listen port")
	fs.StringVar(&f.DumpPath, "dump", "", "Write a poset debug dump to this path on termination")

	fs.IntVar(&f.NParents, "n-parents", 0, "Maximum parents per created unit")
	fs.BoolVar(&f.UseThresholdCoin, "use-tcoin", false, "Require threshold-coin shares past the threshold start level")
	fs.IntVar(&f.CreateDelayMs, "create-delay-ms", 0, "Initial delay between created units, in milliseconds")
	fs.IntVar(&f.SyncInitDelayMs, "sync-delay-ms", 0, "Delay between sync dispatches, in milliseconds")
	fs.StringVar(&f.PeerSelection, "peer-selection", "", "Peer selection policy: uniform-random or non-recent-random")
	fs.IntVar(&f.TxPerUnit, "txpu", 0, "Transactions packed per created unit")
	fs.IntVar(&f.LevelLimit, "level-limit", 0, "Stop after reaching this poset level (0 = unlimited)")
	fs.IntVar(&f.UnitsLimit, "units-limit", 0, "Stop after creating this many units (0 = unlimited)")
	fs.IntVar(&f.SyncsLimit, "syncs-limit", 0, "Stop after this many sync dispatches (0 = unlimited)")

	fs.StringVar(&f.TxSource, "tx-source", "", "Transaction source: generator or listener")
	fs.StringVar(&f.TxListenAddr, "tx-listen", "", "Listen address for the listener transaction source")

	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() { printUsage() }

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	f.SetUseThresholdCoin = isFlagSet(fs, "use-tcoin")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	return f
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.MembersFile != "" {
		cfg.MembersFile = f.MembersFile
	}
	if f.ListenPort != 0 {
		cfg.ListenPort = f.ListenPort
	}
	if f.DumpPath != "" {
		cfg.DumpPath = f.DumpPath
	}

	if f.NParents != 0 {
		cfg.NParents = f.NParents
	}
	if f.SetUseThresholdCoin {
		cfg.UseThresholdCoin = f.UseThresholdCoin
	}
	if f.CreateDelayMs != 0 {
		cfg.CreateDelay = time.Duration(f.CreateDelayMs) * time.Millisecond
	}
	if f.SyncInitDelayMs != 0 {
		cfg.SyncInitDelay = time.Duration(f.SyncInitDelayMs) * time.Millisecond
	}
	if f.PeerSelection != "" {
		cfg.PeerSelection = f.PeerSelection
	}
	if f.TxPerUnit != 0 {
		cfg.TxPerUnit = f.TxPerUnit
	}
	if f.LevelLimit != 0 {
		cfg.LevelLimit = f.LevelLimit
	}
	if f.UnitsLimit != 0 {
		cfg.UnitsLimit = f.UnitsLimit
	}
	if f.SyncsLimit != 0 {
		cfg.SyncsLimit = f.SyncsLimit
	}

	if f.TxSource != "" {
		cfg.TxSource = TxSourceKind(f.TxSource)
	}
	if f.TxListenAddr != "" {
		cfg.TxListenAddr = f.TxListenAddr
	}

	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	usage := `Alephnode - asynchronous BFT consensus committee member

Usage:
  alephd --members=<file> --my-ip=<address> [options]
  alephd --help

Commands:
  --help, -h      Show this help message
  --version       Show version information

Core Options:
  --datadir       Data directory (default: ~/.alephnode)
  --members       Committee members file (signing keys + addresses)
  --my-ip         This node's address as it appears in the members file
  --port          Gossip listen port (default: 17000)
  --dump          Write a poset debug dump to this path on termination

Protocol Options:
  --n-parents        Maximum parents per created unit (default: committee size N)
  --use-tcoin        Require threshold-coin shares past the threshold start level
  --create-delay-ms  Initial delay between created units, ms (default: 200)
  --sync-delay-ms    Delay between sync dispatches, ms (default: 100)
  --peer-selection   uniform-random or non-recent-random (default: non-recent-random)
  --txpu             Transactions packed per created unit (default: 10)
  --level-limit      Stop after reaching this poset level
  --units-limit      Stop after creating this many units
  --syncs-limit      Stop after this many sync dispatches

Transaction Source Options:
  --tx-source     generator or listener (default: generator)
  --tx-listen     Listen address for the listener source

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: stdout)
  --log-json      Output logs as JSON

Examples:
  # Start the member listed as 10.0.0.1:17000 in committee.json; every
  # member is dialed at this node's own --port, so members run on
  # separate hosts
  alephd --members=committee.json --my-ip=10.0.0.1:17000

Note:
  Protocol parameters must be identical across every committee member;
  passing mismatched values produces a committee that cannot reach
  agreement.
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("alephd version 0.1.0")
		os.Exit(0)
	}

	cfg := Default()
	ApplyFlags(cfg, flags)

	if flags.MembersFile == "" {
		return nil, nil, fmt.Errorf("--members is required")
	}
	if flags.MyIP == "" {
		return nil, nil, fmt.Errorf("--my-ip is required")
	}

	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}
