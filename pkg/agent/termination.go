package agent

import "sync/atomic"

// TerminationSignal is a settable stop flag shared between a runner and the
// code that shuts it down. Any goroutine may call Request at any time; the
// runner reads the flag at the top of every duty cycle. The flag only ever
// moves from unset to set.
//
// Several runners may share one signal so a single Request stops them all.
type TerminationSignal struct {
	requested atomic.Bool
}

// NewTerminationSignal returns an unset signal.
func NewTerminationSignal() *TerminationSignal {
	return &TerminationSignal{}
}

// Request asks every runner bound to this signal to stop. Idempotent.
func (s *TerminationSignal) Request() {
	s.requested.Store(true)
}

// Requested reports whether a stop has been requested.
func (s *TerminationSignal) Requested() bool {
	return s.requested.Load()
}
