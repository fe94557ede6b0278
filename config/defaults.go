package config

import "time"

// Default returns the default node configuration. Every protocol parameter
// here matches the reference values of spec §6; a committee only works if
// every member runs with the same protocol-parameter values.
func Default() *Config {
	return &Config{
		DataDir:    DefaultDataDir(),
		ListenPort: 17000,

		// 0 means "use the committee size N", matching spec §4.6's default;
		// the concrete value isn't known until the committee file is
		// loaded, so cmd/alephd resolves it right after that (see main.go).
		NParents:         0,
		UseThresholdCoin: false,
		VotingStartLevel: 3,
		CoinStartDelta:   3,
		CreateDelay:      200 * time.Millisecond,
		StepSize:         0.1,
		AdaptiveDelay:    true,
		SyncInitDelay:    100 * time.Millisecond,
		PeerSelection:    "non-recent-random",
		TxPerUnit:        10,
		LevelLimit:       0,
		UnitsLimit:       0,
		SyncsLimit:       0,

		TxSource:           TxSourceGenerator,
		GeneratorBatchSize: 10,
		GeneratorSeed:      1,

		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
