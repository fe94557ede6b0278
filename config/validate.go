package config

import "fmt"

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.ListenPort < 0 || cfg.ListenPort > 65535 {
		return fmt.Errorf("port must be in range [0, 65535]")
	}
	// 0 is a valid, unresolved NParents: it means "use the committee size",
	// resolved once the committee file is loaded (see cmd/alephd/main.go).
	if cfg.NParents < 0 {
		return fmt.Errorf("n-parents must be non-negative")
	}
	if cfg.TxPerUnit < 0 {
		return fmt.Errorf("txpu must be non-negative")
	}
	if cfg.PeerSelection != "uniform-random" && cfg.PeerSelection != "non-recent-random" {
		return fmt.Errorf("peer-selection must be uniform-random or non-recent-random")
	}
	if cfg.TxSource != TxSourceGenerator && cfg.TxSource != TxSourceListener {
		return fmt.Errorf("tx-source must be generator or listener")
	}
	if cfg.TxSource == TxSourceListener && cfg.TxListenAddr == "" {
		return fmt.Errorf("tx-listen is required when tx-source=listener")
	}
	if cfg.CoinStartDelta < 0 {
		return fmt.Errorf("coin-start-delta must be non-negative")
	}
	return nil
}
