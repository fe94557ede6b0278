package poset

import (
	"bufio"
	"fmt"
	"io"
)

// DumpFormat is the header line identifying the debug dump layout.
const DumpFormat = "format dump-nofork-level-timing"

// Dump writes the poset as a line-oriented debug artifact: a format
// header, then per-unit records of (name, creator), (parents), (level),
// (is_timing). This is never read back; it exists only to let an operator
// inspect a terminated node's final view of the DAG.
func (p *Poset) Dump(w io.Writer) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, DumpFormat); err != nil {
		return err
	}

	timingUnits := make(map[Hash]bool)
	for _, u := range p.voting.decided {
		timingUnits[u.Hash()] = true
	}

	for h, u := range p.units {
		if _, err := fmt.Fprintf(bw, "%s %d\n", u.ShortName(), u.Creator); err != nil {
			return err
		}
		parents := make([]string, len(u.Parents))
		for i, ph := range u.Parents {
			parents[i] = ph.Short()
		}
		if _, err := fmt.Fprintf(bw, "%v\n", parents); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(bw, "%d\n", u.Level); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(bw, "%v\n", timingUnits[h]); err != nil {
			return err
		}
	}
	return bw.Flush()
}
