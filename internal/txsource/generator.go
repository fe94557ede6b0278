package txsource

import (
	"context"
	"encoding/binary"
	"math/rand"
	"time"
)

// Generator is the synthetic built-in transaction source: every Interval it
// emits one batch of TxPerUnit random-looking transactions, seeded for
// reproducible test runs. BatchSize is not used by Run.
type Generator struct {
	BatchSize int
	TxPerUnit int
	Seed      int64
	Interval  time.Duration
}

// Run implements Source.
func (g *Generator) Run(ctx context.Context, out chan<- [][]byte) {
	r := rand.New(rand.NewSource(g.Seed))
	interval := g.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var counter uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch := make([][]byte, 0, g.TxPerUnit)
			for i := 0; i < g.TxPerUnit; i++ {
				batch = append(batch, randomTx(r, &counter))
			}
			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}
}

// randomTx produces an 8-byte monotonic counter followed by random
// padding, so generated transactions are both unique and reproducible
// given the same seed.
func randomTx(r *rand.Rand, counter *uint64) []byte {
	*counter++
	buf := make([]byte, 8+16)
	binary.LittleEndian.PutUint64(buf[:8], *counter)
	r.Read(buf[8:])
	return buf
}
