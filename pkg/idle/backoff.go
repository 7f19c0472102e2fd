package idle

import (
	"fmt"
	"runtime"
	"time"
)

type backoffTier int

const (
	tierNotIdle backoffTier = iota
	tierSpinning
	tierYielding
	tierParking
)

// Backoff escalates through spin, yield and park tiers across consecutive
// empty cycles. Escalation is strictly one-way until work arrives or Reset
// is called: spins up to maxSpins, then yields up to maxYields, then parks
// starting at minPark and doubling each cycle until capped at maxPark.
//
// A Backoff belongs to a single goroutine; its tier state is unsynchronized.
type Backoff struct {
	maxSpins  int64
	maxYields int64
	minPark   time.Duration
	maxPark   time.Duration

	tier       backoffTier
	spins      int64
	yields     int64
	parkPeriod time.Duration
}

// NewBackoff validates the tier bounds and builds the strategy.
func NewBackoff(maxSpins, maxYields int64, minPark, maxPark time.Duration) (*Backoff, error) {
	if maxSpins < 0 || maxYields < 0 {
		return nil, fmt.Errorf("%w: spin and yield counts must be non-negative", ErrInvalidConfig)
	}
	if minPark <= 0 {
		return nil, fmt.Errorf("%w: min park period must be positive", ErrInvalidConfig)
	}
	if maxPark < minPark {
		return nil, fmt.Errorf("%w: max park period %v below min %v", ErrInvalidConfig, maxPark, minPark)
	}
	return &Backoff{
		maxSpins:   maxSpins,
		maxYields:  maxYields,
		minPark:    minPark,
		maxPark:    maxPark,
		tier:       tierNotIdle,
		parkPeriod: minPark,
	}, nil
}

func (b *Backoff) Idle(workCount int) {
	if workCount > 0 {
		b.Reset()
		return
	}

	switch b.tier {
	case tierNotIdle:
		b.tier = tierSpinning
		b.spins++
	case tierSpinning:
		// Spin tier returns immediately so the caller's loop stays hot.
		b.spins++
		if b.spins > b.maxSpins {
			b.tier = tierYielding
			b.yields = 0
		}
	case tierYielding:
		b.yields++
		if b.yields > b.maxYields {
			b.tier = tierParking
			b.parkPeriod = b.minPark
		} else {
			runtime.Gosched()
		}
	case tierParking:
		time.Sleep(b.parkPeriod)
		b.parkPeriod <<= 1
		if b.parkPeriod > b.maxPark {
			b.parkPeriod = b.maxPark
		}
	}
}

// Reset returns the strategy to the spin tier with the park period re-armed.
func (b *Backoff) Reset() {
	b.spins = 0
	b.yields = 0
	b.parkPeriod = b.minPark
	b.tier = tierNotIdle
}
