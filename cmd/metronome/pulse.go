package main

import (
	"time"

	"metronome/pkg/config"
	"metronome/pkg/logx"
)

// pulseAgent is the built-in demo agent: it reports one unit of work per
// interval and idles between beats. It exists to exercise the supervisor
// shell; real agents replace it in library use.
type pulseAgent struct {
	role     string
	interval time.Duration
	logger   *logx.Logger
	lastBeat time.Time
	beats    uint64
}

func newPulseAgent(role string, interval time.Duration) *pulseAgent {
	if interval <= 0 {
		interval = config.DefaultInterval
	}
	return &pulseAgent{
		role:     role,
		interval: interval,
		logger:   logx.NewLogger(role),
	}
}

func (p *pulseAgent) OnStart() error {
	p.lastBeat = time.Now()
	p.logger.Info("💓 Pulse started (interval %s)", p.interval)
	return nil
}

// DoWork reports one beat per elapsed interval and zero work otherwise,
// leaving all waiting to the runner's idle strategy.
func (p *pulseAgent) DoWork() (int, error) {
	now := time.Now()
	if now.Sub(p.lastBeat) < p.interval {
		return 0, nil
	}

	p.lastBeat = now
	p.beats++
	p.logger.Debug("💓 Beat %d", p.beats)
	return 1, nil
}

func (p *pulseAgent) OnClose() error {
	p.logger.Info("Pulse closed after %d beats", p.beats)
	return nil
}

func (p *pulseAgent) RoleName() string {
	return p.role
}
