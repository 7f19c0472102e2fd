package idle

import (
	"runtime"
	"sync/atomic"
	"time"
)

// ControlStatus selects the behavior of a Controllable strategy. The status
// word is written by one controlling goroutine (a config watcher, an admin
// endpoint) and read by the idling goroutine on every empty cycle.
type ControlStatus int64

const (
	StatusNoOp ControlStatus = iota
	StatusBusySpin
	StatusYield
	StatusPark
)

// StatusForName maps a strategy name to a control status. Unknown names
// report false.
func StatusForName(name string) (ControlStatus, bool) {
	switch name {
	case NameNoOp:
		return StatusNoOp, true
	case NameBusySpin:
		return StatusBusySpin, true
	case NameYielding:
		return StatusYield, true
	case NameSleeping, NameBackoff:
		return StatusPark, true
	}
	return StatusNoOp, false
}

// Controllable reads a shared status word each empty cycle and behaves as
// the selected fixed strategy. Out-of-range values behave as yield.
type Controllable struct {
	status     *atomic.Int64
	parkPeriod time.Duration
}

// NewControllable builds a controllable strategy around status. A nil status
// gets a private word initialized to StatusYield; non-positive park periods
// take the package default sleep period.
func NewControllable(status *atomic.Int64, parkPeriod time.Duration) *Controllable {
	if status == nil {
		status = &atomic.Int64{}
		status.Store(int64(StatusYield))
	}
	if parkPeriod <= 0 {
		parkPeriod = DefaultSleepPeriod
	}
	return &Controllable{status: status, parkPeriod: parkPeriod}
}

func (c *Controllable) Idle(workCount int) {
	if workCount > 0 {
		return
	}

	switch ControlStatus(c.status.Load()) {
	case StatusNoOp:
	case StatusBusySpin:
		// Stay hot.
	case StatusPark:
		time.Sleep(c.parkPeriod)
	case StatusYield:
		runtime.Gosched()
	default:
		runtime.Gosched()
	}
}

func (*Controllable) Reset() {}

// Status returns the current control status.
func (c *Controllable) Status() ControlStatus {
	return ControlStatus(c.status.Load())
}
