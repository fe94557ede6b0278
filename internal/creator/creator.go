// Package creator builds new units for our own process: selecting parents
// that advance the poset, pacing production with an adaptive delay, and
// signing the result.
package creator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aleph-zero-go/alephnode/internal/poset"
	"github.com/aleph-zero-go/alephnode/pkg/crypto"
	"github.com/aleph-zero-go/alephnode/pkg/unit"
)

// ErrNoParents is returned when parent selection ends with an empty parent
// list. A process with no unit of its own yet gets a parentless dealing unit
// instead of this error.
var ErrNoParents = errors.New("creator: no candidate parents available")

// Config holds the pacing parameters from spec §4.6 and §6.
type Config struct {
	NParents      int
	CreateDelay   time.Duration
	StepSize      float64 // e.g. 0.1
	AdaptiveDelay bool
}

// Creator produces units on behalf of a single committee member.
type Creator struct {
	mu sync.Mutex

	cfg    Config
	self   uint32
	poset  *poset.Poset
	signer crypto.Signer
	log    zerolog.Logger

	delay      time.Duration
	lastLevels []int // most recent 3 levels of our own units, oldest first
}

// New builds a Creator for process `self`, signing with `signer`.
func New(cfg Config, self uint32, p *poset.Poset, signer crypto.Signer, log zerolog.Logger) *Creator {
	return &Creator{
		cfg:    cfg,
		self:   self,
		poset:  p,
		signer: signer,
		log:    log,
		delay:  cfg.CreateDelay,
	}
}

// Delay returns the current adaptive create-delay.
func (c *Creator) Delay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delay
}

// CreateUnit builds, signs and inserts a new unit by process `self`,
// carrying the given transaction batch. If our process has no unit in the
// poset yet, the new unit is our dealing unit, with no parents.
func (c *Creator) CreateUnit(txs [][]byte) (*unit.Unit, error) {
	parents, err := c.selectParents()
	if err != nil {
		return nil, err
	}

	u := &unit.Unit{
		Creator: c.self,
		Parents: parents,
		Txs:     txs,
	}
	if err := u.Sign(c.signer); err != nil {
		return nil, fmt.Errorf("creator: sign unit: %w", err)
	}

	if err := c.poset.CheckCompliance(u); err != nil {
		return nil, fmt.Errorf("creator: own unit failed compliance: %w", err)
	}
	if err := c.poset.AddUnit(u); err != nil {
		return nil, fmt.Errorf("creator: insert own unit: %w", err)
	}

	c.recordLevel(u.Level)
	c.log.Debug().
		Str("unit", u.ShortName()).
		Int("level", u.Level).
		Int("parents", len(parents)).
		Int("txs", len(txs)).
		Msg("created unit")

	return u, nil
}

// selectParents implements §4.6 step 1-3: our self-predecessor is forced
// first, then candidate tips are added greedily, each required to pass the
// expand-primes rule, up to NParents.
func (c *Creator) selectParents() ([]unit.Hash, error) {
	ownTips := c.poset.MaximalUnits(c.self)

	if len(ownTips) == 0 {
		// No self-predecessor yet: our own dealing unit, parentless by
		// the level-0 exception, regardless of what else is in the poset.
		return nil, nil
	}
	if len(ownTips) > 1 {
		return nil, fmt.Errorf("creator: process %d is a forker, refusing to create further units", c.self)
	}
	self := ownTips[0]

	parents := []unit.Hash{self.Hash()}
	candidate := &unit.Unit{Creator: c.self, Parents: parents}

	for _, tip := range c.poset.Tips() {
		if tip.Creator == c.self {
			continue
		}
		if c.poset.IsForker(tip.Creator) {
			continue
		}
		if len(parents) >= c.cfg.NParents {
			break
		}
		trial := append(append([]unit.Hash(nil), parents...), tip.Hash())
		candidate.Parents = trial
		// candidate is unsigned at this point, so CheckCompliance's rule 1
		// would reject it outright; CheckCandidateParents runs only the
		// structural rules (2-6) that a trial parent set can satisfy.
		if err := c.poset.CheckCandidateParents(candidate); err != nil {
			continue // this tip doesn't expand primes or is otherwise unusable
		}
		parents = trial
	}

	if len(parents) == 0 {
		return nil, ErrNoParents
	}
	return parents, nil
}

// recordLevel tracks the last three levels produced by this process and
// adjusts the create-delay per §4.6's adaptive-delay rule.
func (c *Creator) recordLevel(level int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastLevels = append(c.lastLevels, level)
	if len(c.lastLevels) > 3 {
		c.lastLevels = c.lastLevels[len(c.lastLevels)-3:]
	}
	if !c.cfg.AdaptiveDelay || len(c.lastLevels) < 3 {
		return
	}

	l2, l1, l0 := c.lastLevels[0], c.lastLevels[1], c.lastLevels[2]
	factor := 1 + c.cfg.StepSize
	switch {
	case l1 == l0:
		c.delay = time.Duration(float64(c.delay) * factor)
		c.log.Debug().Dur("delay", c.delay).Msg("producing too fast, increasing create delay")
	case l2 <= l0-2:
		c.delay = time.Duration(float64(c.delay) / factor)
		c.log.Debug().Dur("delay", c.delay).Msg("advancing slowly, decreasing create delay")
	}
}
