package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromRecorder implements the Recorder interface using Prometheus metrics.
type PromRecorder struct {
	cyclesTotal   *prometheus.CounterVec
	workTotal     *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	restartsTotal *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	runnerState   *prometheus.GaugeVec
}

// NewPromRecorder creates a Prometheus-based metrics recorder registered on
// the default registry. Build it once per process.
func NewPromRecorder() *PromRecorder {
	return &PromRecorder{
		cyclesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metronome_cycles_total",
				Help: "Total number of duty cycles by role and outcome",
			},
			[]string{"role", "outcome"},
		),
		workTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metronome_work_items_total",
				Help: "Total work items reported by agents",
			},
			[]string{"role"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metronome_errors_total",
				Help: "Total duty-cycle errors by kind, including clean termination requests",
			},
			[]string{"role", "kind"},
		),
		restartsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metronome_restarts_total",
				Help: "Total supervisor restarts by role",
			},
			[]string{"role"},
		),
		cycleDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "metronome_cycle_duration_seconds",
				Help:    "Duration of DoWork calls in seconds",
				Buckets: prometheus.ExponentialBuckets(0.000001, 10, 8),
			},
			[]string{"role"},
		),
		runnerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "metronome_runner_state",
				Help: "Runner lifecycle state: 0=INIT 1=RUNNING 2=CLOSING 3=CLOSED",
			},
			[]string{"role"},
		),
	}
}

// ObserveCycle records one completed duty cycle.
func (p *PromRecorder) ObserveCycle(role string, workCount int, duration time.Duration) {
	outcome := OutcomeIdled
	if workCount > 0 {
		outcome = OutcomeWorked
		p.workTotal.WithLabelValues(role).Add(float64(workCount))
	}
	p.cyclesTotal.WithLabelValues(role, outcome).Inc()
	p.cycleDuration.WithLabelValues(role).Observe(duration.Seconds())
}

// IncError increments the error counter for a role by kind.
func (p *PromRecorder) IncError(role, kind string) {
	p.errorsTotal.WithLabelValues(role, kind).Inc()
}

// SetState publishes the runner lifecycle state as a numeric gauge.
func (p *PromRecorder) SetState(role, state string) {
	p.runnerState.WithLabelValues(role).Set(stateValue(state))
}

// IncRestart increments the restart counter for a role.
func (p *PromRecorder) IncRestart(role string) {
	p.restartsTotal.WithLabelValues(role).Inc()
}

// stateValue maps lifecycle state names onto the gauge encoding. Unknown
// states map to -1 so they stand out on a dashboard.
func stateValue(state string) float64 {
	switch state {
	case "INIT":
		return 0
	case "RUNNING":
		return 1
	case "CLOSING":
		return 2
	case "CLOSED":
		return 3
	default:
		return -1
	}
}
