// Package metrics wires Moore FSM transitions into Prometheus, trimmed
// from pkg/observability/prometheus/metrics.go down to the two series a
// transition routine can actually report: how many were attempted and how
// long each attempt took.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus series a Machine reports into. Construct
// one with New and pass its Hook to fsm.WithMetricsHook.
type Metrics struct {
	transitionsTotal    *prometheus.CounterVec
	transitionDuration  *prometheus.HistogramVec
}

// New registers fsm_transitions_total and fsm_transition_duration_seconds
// against registerer. Pass prometheus.DefaultRegisterer for the global
// registry, or a fresh prometheus.NewRegistry() in tests to avoid
// colliding with other Metrics instances.
func New(registerer prometheus.Registerer) *Metrics {
	return &Metrics{
		transitionsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsm_transitions_total",
				Help: "Total number of attempted FSM transitions.",
			},
			[]string{"from", "to", "result"},
		),
		transitionDuration: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fsm_transition_duration_seconds",
				Help:    "Time spent on an attempted FSM transition, including its entry function, in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"from", "to"},
		),
	}
}

// Hook returns a func(from, to string, err error) suitable for
// fsm.WithMetricsHook. It only counts transitions and does not time them,
// since fsm.WithMetricsHook only reports the outcome, not a start time;
// TimedHook records durations.
func (m *Metrics) Hook() func(from, to string, err error) {
	return func(from, to string, err error) {
		result := "ok"
		if err != nil {
			result = "error"
		}
		m.transitionsTotal.WithLabelValues(from, to, result).Inc()
	}
}

// TimedHook returns a function matching fsm.WithTraceHook's shape: it is
// called when a transition attempt begins, and its return value is called
// with the outcome once the attempt finishes, counting it and observing
// the time in between. Use this instead of Hook when duration matters. A
// Machine holds a single trace hook, so passing TimedHook to
// fsm.WithTraceHook takes the place of a tracing.Tracer's Hook.
func (m *Metrics) TimedHook() func(from, to string) func(err error) {
	return func(from, to string) func(err error) {
		start := time.Now()
		return func(err error) {
			result := "ok"
			if err != nil {
				result = "error"
			}
			m.transitionsTotal.WithLabelValues(from, to, result).Inc()
			m.transitionDuration.WithLabelValues(from, to).Observe(time.Since(start).Seconds())
		}
	}
}
