// Package idle provides waiting strategies for duty-cycle loops.
//
// A Strategy decides how a loop behaves when one pass produced no work:
// burn the core, yield the processor, sleep a fixed bound, or escalate
// through spin, yield and park tiers. Strategies are owned by exactly one
// goroutine; none of them fail and none of them perform observable I/O.
package idle

import (
	"errors"
	"fmt"
	"time"
)

// Strategy is one waiting policy for an otherwise-busy loop.
//
// Idle with workCount > 0 records that the caller just did useful work: the
// strategy resets any escalation state and returns immediately. With
// workCount <= 0 the strategy performs exactly one bounded waiting step.
// Reset returns the strategy to its most aggressive tier without waiting.
type Strategy interface {
	Idle(workCount int)
	Reset()
}

// Sentinel errors for strategy construction.
var (
	ErrUnknownStrategy = errors.New("unknown idle strategy")
	ErrInvalidConfig   = errors.New("invalid idle configuration")
)

// Strategy names accepted by FromConfig.
const (
	NameBusySpin = "busy-spin"
	NameYielding = "yielding"
	NameSleeping = "sleeping"
	NameBackoff  = "backoff"
	NameNoOp     = "noop"
)

// Defaults applied by FromConfig and Default. Park periods are sized for the
// platform sleep granularity rather than for sub-microsecond timers.
const (
	DefaultMaxSpins    = 10
	DefaultMaxYields   = 5
	DefaultMinPark     = 50 * time.Microsecond
	DefaultMaxPark     = time.Millisecond
	DefaultSleepPeriod = time.Millisecond
)

// Config selects and tunes a strategy by name. Zero fields take the package
// defaults.
type Config struct {
	Strategy    string
	MaxSpins    int64
	MaxYields   int64
	MinPark     time.Duration
	MaxPark     time.Duration
	SleepPeriod time.Duration
}

// FromConfig builds the named strategy with defaults applied. An empty name
// selects the default backoff strategy. Controllable strategies are built
// with NewControllable directly since they need a shared status word.
func FromConfig(cfg Config) (Strategy, error) {
	if cfg.MaxSpins == 0 {
		cfg.MaxSpins = DefaultMaxSpins
	}
	if cfg.MaxYields == 0 {
		cfg.MaxYields = DefaultMaxYields
	}
	if cfg.MinPark == 0 {
		cfg.MinPark = DefaultMinPark
	}
	if cfg.MaxPark == 0 {
		cfg.MaxPark = DefaultMaxPark
	}
	if cfg.SleepPeriod == 0 {
		cfg.SleepPeriod = DefaultSleepPeriod
	}

	switch cfg.Strategy {
	case NameBusySpin:
		return NewBusySpin(), nil
	case NameYielding:
		return NewYielding(), nil
	case NameSleeping:
		return NewSleeping(cfg.SleepPeriod), nil
	case NameNoOp:
		return NewNoOp(), nil
	case NameBackoff, "":
		return NewBackoff(cfg.MaxSpins, cfg.MaxYields, cfg.MinPark, cfg.MaxPark)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Strategy)
	}
}

// Default returns a backoff strategy with the package defaults. It never
// fails; the defaults satisfy the backoff constructor.
func Default() Strategy {
	s, err := NewBackoff(DefaultMaxSpins, DefaultMaxYields, DefaultMinPark, DefaultMaxPark)
	if err != nil {
		panic(fmt.Sprintf("idle: default backoff construction: %v", err))
	}
	return s
}

// KnownStrategies lists the names FromConfig accepts.
func KnownStrategies() []string {
	return []string{NameBackoff, NameBusySpin, NameNoOp, NameSleeping, NameYielding}
}

// IsKnown reports whether name is accepted by FromConfig. The empty name is
// known; it selects the default.
func IsKnown(name string) bool {
	switch name {
	case "", NameBusySpin, NameYielding, NameSleeping, NameBackoff, NameNoOp:
		return true
	}
	return false
}
