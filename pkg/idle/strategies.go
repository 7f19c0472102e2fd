package idle

import (
	"runtime"
	"time"
)

// BusySpin returns from every empty cycle immediately so the caller's loop
// stays on the CPU. Lowest latency, one core pinned at 100%.
type BusySpin struct{}

func NewBusySpin() *BusySpin {
	return &BusySpin{}
}

func (*BusySpin) Idle(int) {}

func (*BusySpin) Reset() {}

// Yielding gives the processor up to another runnable goroutine on every
// empty cycle.
type Yielding struct{}

func NewYielding() *Yielding {
	return &Yielding{}
}

func (*Yielding) Idle(workCount int) {
	if workCount > 0 {
		return
	}
	runtime.Gosched()
}

func (*Yielding) Reset() {}

// Sleeping sleeps a fixed bounded period on every empty cycle. The period
// never escalates, so worst-case reaction latency equals the period.
type Sleeping struct {
	period time.Duration
}

// NewSleeping builds a sleeping strategy. Non-positive periods take the
// package default.
func NewSleeping(period time.Duration) *Sleeping {
	if period <= 0 {
		period = DefaultSleepPeriod
	}
	return &Sleeping{period: period}
}

func (s *Sleeping) Idle(workCount int) {
	if workCount > 0 {
		return
	}
	time.Sleep(s.period)
}

func (*Sleeping) Reset() {}

// Period returns the fixed sleep period.
func (s *Sleeping) Period() time.Duration {
	return s.period
}

// NoOp does nothing at all. For invoker embeddings where the surrounding
// loop already waits.
type NoOp struct{}

func NewNoOp() *NoOp {
	return &NoOp{}
}

func (*NoOp) Idle(int) {}

func (*NoOp) Reset() {}
